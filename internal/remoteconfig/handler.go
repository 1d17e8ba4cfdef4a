// Package remoteconfig implements the pull-based, nonce-identified
// remote configuration protocol: periodically pulling a configuration
// update, applying whatever is acceptable, and acknowledging every
// proposed field as accepted, rejected, or unchanged.
package remoteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ecowatt/gateway/internal/acquisition"
	"github.com/ecowatt/gateway/internal/httpclient"
	"github.com/ecowatt/gateway/internal/logger"
	"github.com/ecowatt/gateway/internal/registry"
	"github.com/google/uuid"
)

// PullInterval is the default cadence of the periodic pull.
const PullInterval = 60 * time.Second

const (
	minSamplingIntervalMS = 1000
	maxSamplingIntervalMS = 3_600_000
)

// Scheduler is the narrow slice of acquisition.Scheduler the handler
// needs, kept as an interface so tests can supply a fake without pulling
// in the whole poll loop.
type Scheduler interface {
	Config() acquisition.Config
	SetPollingInterval(time.Duration)
	SetMinimumRegisters([]uint8)
}

// Handler runs the periodic pull/apply/ack cycle.
type Handler struct {
	client    httpclient.Client
	baseURL   string
	registers *registry.Holder
	scheduler Scheduler
	onUpdate  func()
}

// New constructs a Handler. baseURL + "/api/inverter/config" is polled;
// baseURL + "/api/inverter/config/ack" receives the acknowledgment.
func New(client httpclient.Client, baseURL string, registers *registry.Holder, scheduler Scheduler) *Handler {
	return &Handler{client: client, baseURL: baseURL, registers: registers, scheduler: scheduler}
}

// OnUpdate registers a callback fired once per cycle in which at least
// one parameter was accepted.
func (h *Handler) OnUpdate(f func()) {
	h.onUpdate = f
}

// Run pulls and applies configuration updates every PullInterval until
// ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Pull(ctx)
		}
	}
}

type cloudConfigDoc struct {
	Nonce        *uint32              `json:"nonce"`
	ConfigUpdate *configUpdatePayload `json:"config_update"`
}

type configUpdatePayload struct {
	SamplingInterval *float64          `json:"sampling_interval"`
	Registers        []json.RawMessage `json:"registers"`
}

// Pull performs one pull/apply/ack cycle. Transport and protocol errors
// are logged and swallowed; the handler retries on its next tick.
func (h *Handler) Pull(ctx context.Context) {
	correlationID := uuid.NewString()

	resp, err := h.client.Get(ctx, h.baseURL+"/api/inverter/config")
	if err != nil {
		logger.Warn().Err(err).Str("correlation_id", correlationID).Msg("config pull failed")
		return
	}
	if !resp.IsSuccess() {
		logger.Warn().Int("status", resp.Status).Str("correlation_id", correlationID).Msg("config pull returned non-2xx")
		return
	}

	var doc cloudConfigDoc
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		logger.Warn().Err(err).Str("correlation_id", correlationID).Msg("config pull returned malformed JSON")
		return
	}
	if doc.ConfigUpdate == nil {
		return
	}

	req := h.materialize(doc)
	ack := h.apply(req)

	h.sendAck(ctx, ack, correlationID)

	if len(ack.ConfigAck.Accepted) > 0 && h.onUpdate != nil {
		h.onUpdate()
	}
}

func (h *Handler) materialize(doc cloudConfigDoc) Request {
	req := Request{TimestampMS: uint64(time.Now().UnixMilli())}

	if doc.Nonce != nil {
		req.Nonce = *doc.Nonce
	} else {
		req.Nonce = uint32(req.TimestampMS)
	}

	if doc.ConfigUpdate.SamplingInterval != nil {
		ms := uint32(*doc.ConfigUpdate.SamplingInterval * 1000)
		req.SamplingIntervalMS = &ms
	}

	if doc.ConfigUpdate.Registers != nil {
		table := h.registers.Load()
		req.Registers = resolveRegisters(doc.ConfigUpdate.Registers, table)
	}

	return req
}

func resolveRegisters(raw []json.RawMessage, table *registry.Table) []uint8 {
	seen := make(map[uint8]struct{})
	out := make([]uint8, 0, len(raw))

	for _, r := range raw {
		var num float64
		if err := json.Unmarshal(r, &num); err == nil {
			if num < 0 || num > math.MaxUint8 || !table.Known(uint8(num)) {
				logger.Warn().Float64("register", num).Msg("unknown register address in config update; dropping")
				continue
			}
			addr := uint8(num)
			if _, dup := seen[addr]; !dup {
				seen[addr] = struct{}{}
				out = append(out, addr)
			}
			continue
		}

		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			addr, ok := table.Resolve(name)
			if !ok {
				logger.Warn().Str("register", name).Msg("unknown register name in config update; dropping")
				continue
			}
			if _, dup := seen[addr]; !dup {
				seen[addr] = struct{}{}
				out = append(out, addr)
			}
			continue
		}

		logger.Warn().Str("raw", string(r)).Msg("unparseable register entry in config update; dropping")
	}

	return out
}

func (h *Handler) apply(req Request) Ack {
	ack := Ack{Nonce: req.Nonce, Timestamp: req.TimestampMS}

	if req.SamplingIntervalMS != nil {
		ack.ConfigAck.Accepted, ack.ConfigAck.Rejected, ack.ConfigAck.Unchanged =
			applySamplingInterval(h.scheduler, *req.SamplingIntervalMS, ack.ConfigAck.Accepted, ack.ConfigAck.Rejected, ack.ConfigAck.Unchanged)
	}

	if req.Registers != nil {
		ack.ConfigAck.Accepted, ack.ConfigAck.Rejected, ack.ConfigAck.Unchanged =
			applyRegisters(h.scheduler, req.Registers, ack.ConfigAck.Accepted, ack.ConfigAck.Rejected, ack.ConfigAck.Unchanged)
	}

	ack.AllSuccess = len(ack.ConfigAck.Rejected) == 0

	return ack
}

func applySamplingInterval(s Scheduler, newMS uint32, accepted, rejected, unchanged []AckOutcome) ([]AckOutcome, []AckOutcome, []AckOutcome) {
	current := s.Config().PollingInterval
	currentMS := uint32(current.Milliseconds())

	if currentMS == newMS {
		return accepted, rejected, append(unchanged, AckOutcome{
			Parameter: "sampling_interval", Reason: "unchanged",
		})
	}

	if newMS < minSamplingIntervalMS || newMS > maxSamplingIntervalMS {
		return accepted, append(rejected, AckOutcome{
			Parameter: "sampling_interval", OldValue: currentMS, NewValue: newMS, Reason: "out_of_bounds",
		}), unchanged
	}

	s.SetPollingInterval(time.Duration(newMS) * time.Millisecond)

	return append(accepted, AckOutcome{
		Parameter: "sampling_interval", OldValue: currentMS, NewValue: newMS, Reason: "applied",
	}), rejected, unchanged
}

func applyRegisters(s Scheduler, requested []uint8, accepted, rejected, unchanged []AckOutcome) ([]AckOutcome, []AckOutcome, []AckOutcome) {
	if len(requested) == 0 {
		return accepted, append(rejected, AckOutcome{
			Parameter: "registers", Reason: "empty_after_filter",
		}), unchanged
	}

	current := s.Config().MinimumRegisters
	if subsetOf(requested, current) {
		return accepted, rejected, append(unchanged, AckOutcome{
			Parameter: "registers", Reason: fmt.Sprintf("already contains %s", formatAddrs(requested)),
		})
	}

	merged := mergeSorted(current, requested)
	s.SetMinimumRegisters(merged)

	return append(accepted, AckOutcome{
		Parameter: "registers", OldValue: formatAddrs(current), NewValue: formatAddrs(merged), Reason: "applied",
	}), rejected, unchanged
}

func subsetOf(requested, current []uint8) bool {
	set := make(map[uint8]struct{}, len(current))
	for _, a := range current {
		set[a] = struct{}{}
	}
	for _, a := range requested {
		if _, ok := set[a]; !ok {
			return false
		}
	}
	return true
}

func mergeSorted(a, b []uint8) []uint8 {
	set := make(map[uint8]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]uint8, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func formatAddrs(addrs []uint8) string {
	s := ""
	for i, a := range addrs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", a)
	}
	return s
}

func (h *Handler) sendAck(ctx context.Context, ack Ack, correlationID string) {
	payload, err := json.Marshal(ack)
	if err != nil {
		logger.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to marshal config ack")
		return
	}

	resp, err := h.client.Post(ctx, h.baseURL+"/api/inverter/config/ack", payload, "application/json")
	if err != nil {
		logger.Warn().Err(err).Str("correlation_id", correlationID).Msg("config ack post failed")
		return
	}
	if !resp.IsSuccess() {
		logger.Warn().Int("status", resp.Status).Str("correlation_id", correlationID).Msg("config ack post returned non-2xx")
	}
}
