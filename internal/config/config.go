package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClockConfig selects the unit every timestamp of a run is expressed in.
type ClockConfig struct {
	Unit string `yaml:"unit"`
}

// FlowDef defines a single measured flow from the config file.
type FlowDef struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	From          uint32 `yaml:"from"`
	To            uint32 `yaml:"to"`
	Remote        string `yaml:"remote"`
	TrackAtDevice bool   `yaml:"track_at_device"`
}

// TracerConfig holds the probe flows and how their records are summarized.
type TracerConfig struct {
	BatchSize     int       `yaml:"batch_size"`
	Accumulation  string    `yaml:"accumulation"`
	ProbeInterval string    `yaml:"probe_interval"`
	ProbeSize     int       `yaml:"probe_size"`
	Strict        bool      `yaml:"strict"`
	Debug         bool      `yaml:"debug"`
	MailboxSize   int       `yaml:"mailbox_size"`
	Flows         []FlowDef `yaml:"flows"`
}

// BusyTimeConfig holds the sliding window of the busy-time trackers.
type BusyTimeConfig struct {
	Window string `yaml:"window"`
}

// CSVConfig holds settings for the CSV report writer.
type CSVConfig struct {
	RootPath string `yaml:"root_path"`
}

// DumpConfig holds settings for the raw record dump writer.
type DumpConfig struct {
	RootPath string `yaml:"root_path"`
	Encoding string `yaml:"encoding"`
	Compress bool   `yaml:"compress"`
}

// ClickHouseConfig holds settings for the ClickHouse writer.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// WriterDef defines a single report writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	CSV        CSVConfig        `yaml:"csv"`
	Dump       DumpConfig       `yaml:"dump"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ReportConfig holds all report writers.
type ReportConfig struct {
	Writers []WriterDef `yaml:"writers"`
}

// TransportConfig holds the NATS connection used between relays and the
// collector.
type TransportConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// APIConfig holds the HTTP ingest settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// CaptureConfig selects where a relay reads frames from. Exactly one of
// File and Interface is set.
type CaptureConfig struct {
	File      string `yaml:"file"`
	Interface string `yaml:"interface"`
	Snaplen   int    `yaml:"snaplen"`
}

// RelayConfig holds the settings of a relay tap.
type RelayConfig struct {
	NodeID      uint32        `yaml:"node_id"`
	Mode        string        `yaml:"mode"`
	LinkRateBps uint64        `yaml:"link_rate_bps"`
	QueueLimit  int           `yaml:"queue_limit"`
	RecordPath  string        `yaml:"record_path"`
	Capture     CaptureConfig `yaml:"capture"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Clock     ClockConfig     `yaml:"clock"`
	Tracer    TracerConfig    `yaml:"tracer"`
	BusyTime  BusyTimeConfig  `yaml:"busytime"`
	Report    ReportConfig    `yaml:"report"`
	Transport TransportConfig `yaml:"transport"`
	API       APIConfig       `yaml:"api"`
	Relay     RelayConfig     `yaml:"relay"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filePath, err)
	}
	return &cfg, nil
}

// Validate fills in defaults and rejects values the rest of the system
// cannot work with.
func (c *Config) Validate() error {
	if c.Clock.Unit == "" {
		c.Clock.Unit = "us"
	}
	if c.Tracer.BatchSize == 0 {
		c.Tracer.BatchSize = 10
	}
	if c.Tracer.BatchSize < 0 {
		return fmt.Errorf("tracer.batch_size must be positive, got %d", c.Tracer.BatchSize)
	}
	if c.Tracer.Accumulation == "" {
		c.Tracer.Accumulation = "sum"
	}
	if c.Tracer.ProbeInterval == "" {
		c.Tracer.ProbeInterval = "20ms"
	}
	if _, err := time.ParseDuration(c.Tracer.ProbeInterval); err != nil {
		return fmt.Errorf("tracer.probe_interval: %w", err)
	}
	if c.Tracer.ProbeSize == 0 {
		c.Tracer.ProbeSize = 64
	}
	if c.Tracer.MailboxSize <= 0 {
		c.Tracer.MailboxSize = 1024
	}
	names := make(map[string]bool, len(c.Tracer.Flows))
	for i := range c.Tracer.Flows {
		f := &c.Tracer.Flows[i]
		if f.Name == "" {
			f.Name = fmt.Sprintf("flow-%d", i+1)
		}
		if names[f.Name] {
			return fmt.Errorf("duplicate flow name: %s", f.Name)
		}
		names[f.Name] = true
		if f.Kind == "" {
			f.Kind = "trace"
		}
		if f.Kind != "trace" && f.Kind != "speedtest" {
			return fmt.Errorf("flow %s: unknown kind %s", f.Name, f.Kind)
		}
	}

	if c.BusyTime.Window == "" {
		c.BusyTime.Window = "100ms"
	}
	if _, err := time.ParseDuration(c.BusyTime.Window); err != nil {
		return fmt.Errorf("busytime.window: %w", err)
	}

	if c.Transport.Subject == "" {
		c.Transport.Subject = "hopspectra.events"
	}
	if c.Relay.Mode == "" {
		c.Relay.Mode = "hop"
	}
	if c.Relay.Mode != "hop" && c.Relay.Mode != "receive" {
		return fmt.Errorf("relay.mode must be hop or receive, got %s", c.Relay.Mode)
	}
	if c.Relay.QueueLimit <= 0 {
		c.Relay.QueueLimit = 1000
	}
	if c.Relay.Capture.Snaplen <= 0 {
		c.Relay.Capture.Snaplen = 262144
	}
	for i := range c.Report.Writers {
		w := &c.Report.Writers[i]
		if w.Type == "dump" && w.Dump.Encoding == "" {
			w.Dump.Encoding = "gob"
		}
		if w.Type == "clickhouse" && w.ClickHouse.Table == "" {
			w.ClickHouse.Table = "trace_summary"
		}
	}
	return nil
}

// ProbeInterval returns the parsed probe interval.
func (c *Config) ProbeInterval() time.Duration {
	d, _ := time.ParseDuration(c.Tracer.ProbeInterval)
	return d
}

// BusyWindow returns the parsed busy-time window.
func (c *Config) BusyWindow() time.Duration {
	d, _ := time.ParseDuration(c.BusyTime.Window)
	return d
}

// EnabledWriters returns the writer definitions with enabled set.
func (c *Config) EnabledWriters() []WriterDef {
	var out []WriterDef
	for _, w := range c.Report.Writers {
		if w.Enabled {
			out = append(out, w)
		}
	}
	return out
}
