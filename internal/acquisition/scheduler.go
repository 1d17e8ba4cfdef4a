// Package acquisition drives the periodic poll loop: reading inverter
// registers through a protocol.Adapter, filling the sample buffer,
// fanning out callbacks, tracking statistics, and periodically draining
// the buffer through the delta codec to produce a report.
package acquisition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecowatt/gateway/internal/buffer"
	"github.com/ecowatt/gateway/internal/codec"
	"github.com/ecowatt/gateway/internal/errors"
	"github.com/ecowatt/gateway/internal/logger"
	"github.com/ecowatt/gateway/internal/protocol"
	"github.com/ecowatt/gateway/internal/registry"
)

// DrainInterval is the cadence at which the buffer is snapshotted,
// compressed, reported, and cleared, measured independently of the poll
// interval.
const DrainInterval = 15 * time.Second

// DiagnosticsRecorder is the narrow interface the scheduler uses to
// persist operational statistics for post-hoc diagnosis. It is optional
// and never consulted from the hot polling path beyond a single
// best-effort call per cycle.
type DiagnosticsRecorder interface {
	Record(ctx context.Context, stats Statistics) error
}

// Scheduler is the acquisition poll loop. The zero value is not usable;
// construct with New.
type Scheduler struct {
	adapter   protocol.Adapter
	registers *registry.Holder
	buf       *buffer.Ring
	report    ReportFunc
	diag      DiagnosticsRecorder

	cfg atomic.Value // Config

	mu              sync.Mutex
	sampleCallbacks []SampleCallback
	errorCallbacks  []ErrorCallback
	running         bool
	cancel          context.CancelFunc
	done            chan struct{}

	statsMu sync.Mutex
	stats   Statistics
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithDiagnostics attaches an optional recorder of per-cycle statistics.
func WithDiagnostics(d DiagnosticsRecorder) Option {
	return func(s *Scheduler) { s.diag = d }
}

// WithReportFunc attaches the hand-off to the (external) uplink path.
func WithReportFunc(f ReportFunc) Option {
	return func(s *Scheduler) { s.report = f }
}

// New constructs a Scheduler bound to adapter and the register table held
// by registers (read through the holder so remote config updates are
// visible from the next cycle onward).
func New(adapter protocol.Adapter, registers *registry.Holder, opts ...Option) *Scheduler {
	s := &Scheduler{
		adapter:   adapter,
		registers: registers,
		buf:       buffer.New(),
	}
	s.cfg.Store(DefaultConfig())

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Config returns the current effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg.Load().(Config)
}

// SetPollingInterval changes the poll cadence, effective from the next
// cycle.
func (s *Scheduler) SetPollingInterval(d time.Duration) {
	cfg := s.Config()
	cfg.PollingInterval = d
	s.cfg.Store(cfg)
}

// SetMinimumRegisters changes the always-polled address set, effective
// from the next cycle.
func (s *Scheduler) SetMinimumRegisters(addrs []uint8) {
	cfg := s.Config()
	cfg.MinimumRegisters = addrs
	s.cfg.Store(cfg)
}

// ConfigureRegisters atomically replaces the register map. Readers of
// the holder — this scheduler and the remote config handler — only ever
// see a complete table, never a torn one.
func (s *Scheduler) ConfigureRegisters(registers []registry.RegisterConfig) {
	s.registers.Store(registry.NewTable(registers))
}

// AddSampleCallback registers a callback fired, in registration order,
// once per successfully acquired sample.
func (s *Scheduler) AddSampleCallback(cb SampleCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleCallbacks = append(s.sampleCallbacks, cb)
}

// AddErrorCallback registers a callback fired, in registration order,
// once per adapter failure.
func (s *Scheduler) AddErrorCallback(cb ErrorCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCallbacks = append(s.errorCallbacks, cb)
}

// Start launches the poll loop in a background goroutine. Idempotent: a
// second Start while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.run(runCtx)
	}()
}

// Stop cancels the poll loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context) {
	drainTicker := time.NewTicker(DrainInterval)
	defer drainTicker.Stop()

	cfg := s.Config()
	pollTicker := time.NewTicker(cfg.PollingInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			s.poll(ctx)

			if next := s.Config(); next.PollingInterval != cfg.PollingInterval {
				cfg = next
				pollTicker.Stop()
				pollTicker = time.NewTicker(cfg.PollingInterval)
			}
		case <-drainTicker.C:
			s.drainAndReport()
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	table := s.registers.Load()
	cfg := s.Config()
	addrs := mergeAddresses(table.Addresses(), cfg.MinimumRegisters)

	acquired := 0
	for _, addr := range addrs {
		ts := time.Now()

		values, err := s.adapter.ReadRegisters(ctx, addr, 1)
		if err != nil {
			s.emitError(err)
			continue
		}
		if len(values) == 0 {
			continue
		}

		sample := buildSample(ts, addr, values[0], table)
		s.buf.Push(sample)
		s.emitSample(sample)
		acquired++
	}

	s.updateStatistics(acquired)
}

func buildSample(ts time.Time, addr uint8, raw uint16, table *registry.Table) buffer.Sample {
	name, unit := "Unknown", ""
	var gain float32

	if cfg, ok := table.Lookup(addr); ok {
		name, unit, gain = cfg.Name, cfg.Unit, cfg.Gain
	}

	signed := int32(int16(raw))

	scaled := float64(signed)
	if gain != 0 {
		scaled = float64(signed) / float64(gain)
	}

	return buffer.Sample{
		Timestamp:       ts,
		RegisterAddress: addr,
		RegisterName:    name,
		RawValue:        signed,
		ScaledValue:     scaled,
		Unit:            unit,
	}
}

func (s *Scheduler) emitSample(sample buffer.Sample) {
	s.mu.Lock()
	callbacks := append([]SampleCallback(nil), s.sampleCallbacks...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		s.invokeSampleCallback(cb, sample)
	}
}

func (s *Scheduler) invokeSampleCallback(cb SampleCallback, sample buffer.Sample) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("sample callback panicked; continuing poll cycle")
		}
	}()
	cb(sample)
}

func (s *Scheduler) emitError(err error) {
	logger.Warn().Err(err).Msg("register read failed")

	s.mu.Lock()
	callbacks := append([]ErrorCallback(nil), s.errorCallbacks...)
	s.mu.Unlock()

	for _, cb := range callbacks {
		s.invokeErrorCallback(cb, err)
	}
}

func (s *Scheduler) invokeErrorCallback(cb ErrorCallback, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("error callback panicked; continuing poll cycle")
		}
	}()
	cb(err)
}

func (s *Scheduler) updateStatistics(acquired int) {
	s.statsMu.Lock()
	s.stats.TotalPolls++
	if acquired > 0 {
		s.stats.SuccessfulPolls++
		s.stats.LastError = ""
	} else {
		s.stats.FailedPolls++
		s.stats.LastError = errors.GetErrorMessage(ErrNoSamples)
	}
	s.stats.LastPollTime = time.Now()
	snapshot := s.stats
	s.statsMu.Unlock()

	if s.diag != nil {
		if err := s.diag.Record(context.Background(), snapshot); err != nil {
			logger.Warn().Err(err).Msg("failed to record acquisition diagnostics")
		}
	}
}

// Statistics returns a snapshot of the running counters.
func (s *Scheduler) Statistics() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// ResetStatistics zeroes the running counters.
func (s *Scheduler) ResetStatistics() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats = Statistics{}
}

func (s *Scheduler) drainAndReport() {
	samples := s.buf.Snapshot()
	compressed := codec.Compress(samples)

	if err := codec.SelfCheck(samples, compressed); err != nil {
		logger.ErrorWithCode(err.(errors.Error)).Msg("codec self-check failed; discarding drained payload")
		s.buf.Clear()
		return
	}

	if s.report != nil {
		s.report(compressed, samples)
	}

	s.buf.Clear()
}

// ReadSingle bypasses the poll loop to read one register directly.
func (s *Scheduler) ReadSingle(ctx context.Context, addr uint8) (buffer.Sample, error) {
	values, err := s.adapter.ReadRegisters(ctx, addr, 1)
	if err != nil {
		return buffer.Sample{}, err
	}
	if len(values) == 0 {
		return buffer.Sample{}, errors.New().New(ErrNoSamples)
	}

	return buildSample(time.Now(), addr, values[0], s.registers.Load()), nil
}

// ReadMultiple bypasses the poll loop to read several registers
// directly, in the order given.
func (s *Scheduler) ReadMultiple(ctx context.Context, addrs []uint8) ([]buffer.Sample, error) {
	samples := make([]buffer.Sample, 0, len(addrs))
	for _, addr := range addrs {
		sample, err := s.ReadSingle(ctx, addr)
		if err != nil {
			s.emitError(err)
			continue
		}
		samples = append(samples, sample)
	}

	return samples, nil
}

// PerformWrite bypasses the poll loop to write one register directly.
func (s *Scheduler) PerformWrite(ctx context.Context, addr uint8, value uint16) error {
	return s.adapter.WriteRegister(ctx, addr, value)
}
