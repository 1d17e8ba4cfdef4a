package fota

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ecowatt/gateway/internal/errors"
	"github.com/ecowatt/gateway/internal/httpclient"
	"github.com/ecowatt/gateway/internal/logger"
)

const (
	bootStatusPendingReboot = "pending_reboot"
	bootStatusSuccess       = "success"
)

// fotaStatusPayload is the device→server shape of a progress or
// boot-status report. Fields are zero-value-omitted; only the ones
// relevant to the current state are populated by the caller.
type fotaStatusPayload struct {
	ChunkReceived uint32  `json:"chunk_received,omitempty"`
	TotalChunks   uint32  `json:"total_chunks,omitempty"`
	Progress      float64 `json:"progress,omitempty"`
	Verified      bool    `json:"verified,omitempty"`
	Rollback      bool    `json:"rollback,omitempty"`
	Error         string  `json:"error,omitempty"`
	BootStatus    string  `json:"boot_status,omitempty"`
	NewVersion    string  `json:"new_version,omitempty"`
	BootCount     int     `json:"boot_count,omitempty"`
}

type fotaStatusReport struct {
	FotaStatus fotaStatusPayload `json:"fota_status"`
}

// Config wires a Manager to its cloud endpoint, pre-shared verification
// key, and local scratch storage.
type Config struct {
	Client          httpclient.Client
	BaseURL         string
	PreSharedKey    []byte
	ScratchPath     string
	StateDir        string
	PartitionWriter PartitionWriter
	// Reboot is invoked once a new image has been activated. Left nil
	// on hosts where the process itself doesn't control reboot.
	Reboot func()
}

// Manager drives the update state machine: manifest check, chunked
// download, integrity verification, partition write, and rollback on a
// boot-loop.
type Manager struct {
	client      httpclient.Client
	baseURL     string
	key         []byte
	scratchPath string
	stateDir    string
	pw          PartitionWriter
	rebootFunc  func()
	mu          sync.Mutex
	progress    Progress
	received    []bool
	manifest    Manifest
}

// New constructs a Manager, resuming a prior in-progress download and
// running the boot-loop rollback check if one is pending.
func New(cfg Config) *Manager {
	m := &Manager{
		client:      cfg.Client,
		baseURL:     cfg.BaseURL,
		key:         cfg.PreSharedKey,
		scratchPath: cfg.ScratchPath,
		stateDir:    cfg.StateDir,
		pw:          cfg.PartitionWriter,
		rebootFunc:  cfg.Reboot,
		progress:    Progress{State: StateIdle, CurrentVersion: loadVersion(cfg.StateDir)},
	}

	if st, ok := loadState(cfg.StateDir); ok {
		m.progress = st.Progress
		m.received = st.Received
	}

	if rolledBack, err := checkRollback(cfg.StateDir, cfg.PartitionWriter); err != nil {
		logger.ErrorWithContext(err.(errors.Error), "fota", "check_rollback").Msg("rollback check failed")
	} else if rolledBack {
		m.mu.Lock()
		m.progress = Progress{State: StateRollback, CurrentVersion: loadVersion(cfg.StateDir)}
		m.mu.Unlock()

		m.postStatus(context.Background(), "", 0)

		m.mu.Lock()
		m.progress.State = StateIdle
		m.mu.Unlock()

		if m.rebootFunc != nil {
			m.rebootFunc()
		}
	}

	return m
}

// Progress returns a snapshot of the manager's current state.
func (m *Manager) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Run drives the state machine on two independent cadences: a chunk
// tick that advances the download/verify/write pipeline, and a report
// tick that posts progress to the cloud regardless of which state the
// pipeline is in.
func (m *Manager) Run(ctx context.Context) error {
	chunkTicker := time.NewTicker(ChunkInterval)
	reportTicker := time.NewTicker(ReportInterval)
	defer chunkTicker.Stop()
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-chunkTicker.C:
			m.tick(ctx)
		case <-reportTicker.C:
			m.reportProgress(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	state := m.progress.State
	m.mu.Unlock()

	var err error
	switch state {
	case StateIdle:
		_, err = m.CheckForUpdate(ctx)
	case StateDownloading:
		err = m.tickDownload(ctx)
	case StateVerifying:
		err = m.tickVerify()
	case StateWriting:
		err = m.tickWrite()
	case StateRebooting:
		m.tickReboot()
	case StateFailed, StateRollback:
		// terminal until an operator or the next manifest check clears it.
	default:
		err = errors.New().WithData(ErrInvalidState, string(state))
	}

	if err != nil {
		m.fail(err)
	}
}

// CheckForUpdate fetches the manifest and, if it names a version other
// than the one currently running, begins a download cycle.
func (m *Manager) CheckForUpdate(ctx context.Context) (bool, error) {
	manifest, err := fetchManifest(ctx, m.client, m.baseURL)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	current := m.progress.CurrentVersion
	m.mu.Unlock()

	if !manifest.Valid || manifest.Version == current {
		return false, nil
	}

	if err := truncateScratch(m.scratchPath); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.manifest = manifest
	m.received = make([]bool, manifest.TotalChunks)
	m.progress = Progress{
		State:          StateDownloading,
		CurrentVersion: current,
		NewVersion:     manifest.Version,
		TotalChunks:    manifest.TotalChunks,
		TotalBytes:     manifest.Size,
	}
	st := persistedState{Progress: m.progress, Received: m.received}
	m.mu.Unlock()

	return true, saveState(m.stateDir, st)
}

func (m *Manager) tickDownload(ctx context.Context) error {
	m.mu.Lock()
	manifest := m.manifest
	idx, done := nextMissingChunk(m.received)
	m.mu.Unlock()

	if done {
		m.mu.Lock()
		m.progress.State = StateVerifying
		m.mu.Unlock()
		return m.persist()
	}

	data, err := fetchChunk(ctx, m.client, m.baseURL, idx, m.key)
	if err != nil {
		logger.ErrorWithContext(err.(errors.Error), "fota", "fetch_chunk").Msg("chunk fetch failed")
		return nil
	}

	// A Cancel() may have landed while the fetch was in flight; discard
	// this chunk's result rather than write into a cleared download.
	if !m.stillDownloading(manifest.Version) {
		return nil
	}

	if err := writeChunkAt(m.scratchPath, idx, manifest.ChunkSize, data); err != nil {
		return err
	}

	m.mu.Lock()
	if m.progress.State != StateDownloading || m.manifest.Version != manifest.Version || int(idx) >= len(m.received) {
		m.mu.Unlock()
		return nil
	}
	m.received[idx] = true
	m.progress.ChunksReceived++
	m.progress.BytesReceived += uint32(len(data))
	received := m.progress.ChunksReceived
	m.mu.Unlock()

	if received%5 == 0 {
		return m.persist()
	}
	return nil
}

func (m *Manager) stillDownloading(version string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress.State == StateDownloading && m.manifest.Version == version
}

func (m *Manager) tickVerify() error {
	m.mu.Lock()
	manifest := m.manifest
	m.mu.Unlock()

	if err := verifyImage(m.scratchPath, manifest); err != nil {
		return err
	}

	m.mu.Lock()
	m.progress.State = StateWriting
	m.progress.Verified = true
	m.mu.Unlock()

	return m.persist()
}

func (m *Manager) tickWrite() error {
	m.mu.Lock()
	manifest := m.manifest
	m.mu.Unlock()

	if err := writeVerifiedImage(m.pw, m.scratchPath, manifest.Size); err != nil {
		return err
	}
	if err := m.pw.Activate(); err != nil {
		return errors.New().Wrap(errors.ErrStateInvalid, err)
	}
	if err := saveVersion(m.stateDir, manifest.Version); err != nil {
		return err
	}
	if err := saveBootCount(m.stateDir, 0); err != nil {
		return err
	}

	m.mu.Lock()
	m.progress.State = StateRebooting
	m.progress.CurrentVersion = manifest.Version
	m.mu.Unlock()

	if err := m.persist(); err != nil {
		return err
	}

	m.postStatus(context.Background(), bootStatusPendingReboot, 0)
	return nil
}

func (m *Manager) tickReboot() {
	if m.rebootFunc != nil {
		m.rebootFunc()
	}
}

// Cancel transitions the manager to Idle and discards any in-progress
// download, removing the scratch image. A chunk fetch already in
// flight completes, but its result is discarded by tickDownload once
// it observes the state change.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	current := m.progress.CurrentVersion
	m.progress = Progress{State: StateIdle, CurrentVersion: current}
	m.received = nil
	m.manifest = Manifest{}
	m.mu.Unlock()

	if err := os.Remove(m.scratchPath); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrResourceNotFound, err)
	}

	return clearState(m.stateDir)
}

// ConfirmBootSuccess is called by the supervisor once it has judged the
// newly-activated image healthy. It resets the boot counter, clears
// resumable state, returns the manager to Idle, and reports
// boot_status=success to the cloud.
func (m *Manager) ConfirmBootSuccess(ctx context.Context) error {
	m.mu.Lock()
	current := m.progress.CurrentVersion
	m.progress = Progress{State: StateIdle, CurrentVersion: current}
	m.mu.Unlock()

	if err := saveBootCount(m.stateDir, 0); err != nil {
		return err
	}
	if err := clearState(m.stateDir); err != nil {
		return err
	}

	m.postStatus(ctx, bootStatusSuccess, 0)
	return nil
}

func (m *Manager) fail(err error) {
	logger.Error().Err(err).Str("component", "fota").Msg("update cycle failed")

	m.mu.Lock()
	m.progress.State = StateFailed
	m.progress.ErrorMessage = err.Error()
	m.mu.Unlock()

	_ = m.persist()
}

func (m *Manager) persist() error {
	m.mu.Lock()
	st := persistedState{Progress: m.progress, Received: m.received}
	m.mu.Unlock()
	return saveState(m.stateDir, st)
}

func (m *Manager) reportProgress(ctx context.Context) {
	progress := m.Progress()

	logger.Debug().
		Str("state", string(progress.State)).
		Str("received", humanize.Bytes(uint64(progress.BytesReceived))).
		Str("total", humanize.Bytes(uint64(progress.TotalBytes))).
		Msg("fota progress")

	m.postStatus(ctx, "", 0)
}

// postStatus POSTs a fota_status report built from the manager's current
// progress, optionally carrying a boot_status and a boot_count (both
// omitted when empty or zero). The write and confirm call sites pass a
// boot_status; every current call site passes a zero boot_count.
func (m *Manager) postStatus(ctx context.Context, bootStatus string, bootCount int) {
	progress := m.Progress()

	payload := fotaStatusPayload{
		ChunkReceived: progress.ChunksReceived,
		TotalChunks:   progress.TotalChunks,
		Verified:      progress.Verified,
		Rollback:      progress.State == StateRollback,
		Error:         progress.ErrorMessage,
		NewVersion:    progress.NewVersion,
		BootStatus:    bootStatus,
		BootCount:     bootCount,
	}
	if progress.TotalChunks > 0 {
		payload.Progress = float64(progress.ChunksReceived) / float64(progress.TotalChunks) * 100
	}

	body, err := json.Marshal(fotaStatusReport{FotaStatus: payload})
	if err != nil {
		return
	}

	resp, err := m.client.Post(ctx, m.baseURL+"/api/inverter/fota/status", body, "application/json")
	if err != nil {
		logger.Warn().Err(err).Str("component", "fota").Msg("status report failed")
		return
	}
	if !resp.IsSuccess() {
		logger.Warn().Int("status", resp.Status).Str("component", "fota").Msg("status report rejected")
	}
}

// nextMissingChunk returns the lowest-indexed chunk not yet received,
// or done=true if the bitmap is complete.
func nextMissingChunk(received []bool) (idx uint32, done bool) {
	for i, ok := range received {
		if !ok {
			return uint32(i), false
		}
	}
	return 0, true
}
