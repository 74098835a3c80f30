package clickhouse

import (
	"HopSpectra/internal/config"
	"HopSpectra/internal/factory"
	"HopSpectra/internal/report"
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    RunID           String,
    Flow            String,
    Report          String,
    CreatedAt       DateTime,
    BatchIndex      UInt32,
    Policy          LowCardinality(String),
    OffsetUnits     UInt64,
    MeanDelay       UInt64,
    StdDevDelay     Float64,
    MinLinkCapacity Float64,
    MaxLinkCapacity Float64,
    QueueCapacity   UInt64,
    HopCount        UInt32,
    DropRatio       Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(CreatedAt)
ORDER BY (RunID, Report, BatchIndex);
`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef) (report.Writer, error) {
		return NewWriter(def.ClickHouse)
	})
}

// Writer inserts the summary rows of trace reports into ClickHouse.
// Speedtest reports have no summary rows and are skipped.
type Writer struct {
	conn  driver.Conn
	table string
}

// NewWriter connects to ClickHouse and makes sure the summary table exists.
func NewWriter(cfg config.ClickHouseConfig) (*Writer, error) {
	table := cfg.Table
	if table == "" {
		table = "trace_summary"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name: %q", table)
	}

	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), fmt.Sprintf(createTableStatement, table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &Writer{conn: conn, table: table}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// rows converts the summary rows of r into insert values in table column
// order.
func rows(r *report.Report) [][]any {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	out := make([][]any, 0, len(r.Rows))
	for i, row := range r.Rows {
		out = append(out, []any{
			r.RunID,
			r.Flow,
			r.Name,
			createdAt,
			uint32(i),
			r.Policy,
			row.Offset,
			row.MeanDelay,
			row.StdDevDelay,
			row.MinLinkCapacity,
			row.MaxLinkCapacity,
			row.QueueCapacity,
			row.HopCount,
			row.DropRatio,
		})
	}
	return out
}

// Write inserts the summary rows of r in one batch.
func (w *Writer) Write(r *report.Report) error {
	if r.Kind != report.KindTrace {
		return nil
	}
	values := rows(r)
	if len(values) == 0 {
		return nil // Nothing to write
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, v := range values {
		if err := batch.Append(v...); err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d summary rows to ClickHouse for report '%s'", len(values), r.Name)
	return nil
}

// Close closes the ClickHouse connection.
func (w *Writer) Close() error {
	return w.conn.Close()
}
