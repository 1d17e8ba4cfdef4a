package acquisition

import (
	"time"

	"github.com/ecowatt/gateway/internal/buffer"
)

// Sample is the acquisition scheduler's view of one observation; it is
// the same type the sample buffer and codec operate on.
type Sample = buffer.Sample

// Config is the acquisition scheduler's tunable parameters. A config
// apply takes effect at the start of the next poll cycle, never mid-cycle.
type Config struct {
	PollingInterval   time.Duration
	MinimumRegisters  []uint8
	BackgroundPolling bool
}

// DefaultConfig mirrors the teacher's DefaultConfig-per-package
// convention: safe, working values a gateway can start with before any
// remote configuration update has arrived.
func DefaultConfig() Config {
	return Config{
		PollingInterval:   time.Second,
		MinimumRegisters:  nil,
		BackgroundPolling: true,
	}
}

// Statistics is the scheduler's running counters, reset only by an
// explicit call to ResetStatistics.
type Statistics struct {
	TotalPolls      uint64
	SuccessfulPolls uint64
	FailedPolls     uint64
	LastError       string
	LastPollTime    time.Time
}

// SampleCallback is invoked once per successfully acquired sample, in
// registration order, synchronously from the polling goroutine.
type SampleCallback func(Sample)

// ErrorCallback is invoked once per adapter failure, in registration
// order, synchronously from the polling goroutine.
type ErrorCallback func(error)

// ReportFunc receives the compressed payload and the samples it was
// derived from on every periodic drain. It is the scheduler's hand-off
// to the (external) uplink path.
type ReportFunc func(compressed []byte, samples []Sample)
