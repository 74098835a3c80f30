package aggregator

import (
	"fmt"
	"strings"
)

// Policy selects how the per-hop queue depths of one record are folded into
// a single queue value.
type Policy int

const (
	// Sum adds the queue depth of every hop.
	Sum Policy = iota
	// Bottleneck takes the queue depth at the hop with the lowest link
	// utilization.
	Bottleneck
	// SumToBottleneck adds queue depths from the first hop up to and
	// including the bottleneck hop.
	SumToBottleneck
)

func (p Policy) String() string {
	switch p {
	case Sum:
		return "sum"
	case Bottleneck:
		return "bottleneck"
	case SumToBottleneck:
		return "sum_to_bottleneck"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts the names used in the config file.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sum", "":
		return Sum, nil
	case "bottleneck":
		return Bottleneck, nil
	case "sum_to_bottleneck", "sum-to-bottleneck", "sumtobottleneck":
		return SumToBottleneck, nil
	default:
		return Sum, fmt.Errorf("unknown queue accumulation policy: %s", name)
	}
}

// bottleneckIndex returns the index of the minimum link utilization. Ties go
// to the first index.
func bottleneckIndex(links []float64) int {
	at := 0
	for i := 1; i < len(links); i++ {
		if links[i] < links[at] {
			at = i
		}
	}
	return at
}

// queueValue applies p to one record's hop samples.
func (p Policy) queueValue(links []float64, queues []uint64) uint64 {
	if len(queues) == 0 {
		return 0
	}
	switch p {
	case Bottleneck:
		at := bottleneckIndex(links)
		if at >= len(queues) {
			return queues[len(queues)-1]
		}
		return queues[at]
	case SumToBottleneck:
		at := bottleneckIndex(links)
		if at >= len(queues) {
			at = len(queues) - 1
		}
		var total uint64
		for i := 0; i <= at; i++ {
			total += queues[i]
		}
		return total
	default:
		var total uint64
		for _, q := range queues {
			total += q
		}
		return total
	}
}
