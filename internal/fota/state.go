package fota

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ecowatt/gateway/internal/errors"
)

const (
	stateFileName     = "fota_state.json"
	versionFileName   = "version.txt"
	bootCountFileName = "boot_count.txt"
)

// persistedState is the on-disk resumable form of an in-progress
// download: the manager's Progress plus which chunks have landed.
type persistedState struct {
	Progress Progress `json:"progress"`
	Received []bool   `json:"chunks"`
}

// loadState reads the persisted download state. A missing or corrupt
// file is "no state to resume", not an error.
func loadState(dir string) (persistedState, bool) {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		return persistedState{}, false
	}

	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return persistedState{}, false
	}

	return st, true
}

func saveState(dir string, st persistedState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.New().Wrap(ErrStatePersistence, err)
	}

	if err := os.WriteFile(filepath.Join(dir, stateFileName), data, 0o600); err != nil {
		return errors.New().Wrap(ErrStatePersistence, err)
	}

	return nil
}

func clearState(dir string) error {
	err := os.Remove(filepath.Join(dir, stateFileName))
	if err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(ErrStatePersistence, err)
	}
	return nil
}

// loadVersion returns the currently-running firmware version, or "" if
// no version has ever been recorded.
func loadVersion(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, versionFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveVersion(dir, version string) error {
	if err := os.WriteFile(filepath.Join(dir, versionFileName), []byte(version), 0o600); err != nil {
		return errors.New().Wrap(ErrStatePersistence, err)
	}
	return nil
}

// loadBootCount returns the number of boots since the last successful
// activation, or 0 if the counter is missing or unreadable.
func loadBootCount(dir string) int {
	data, err := os.ReadFile(filepath.Join(dir, bootCountFileName))
	if err != nil {
		return 0
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return n
}

func saveBootCount(dir string, n int) error {
	if err := os.WriteFile(filepath.Join(dir, bootCountFileName), []byte(strconv.Itoa(n)), 0o600); err != nil {
		return errors.New().Wrap(ErrStatePersistence, err)
	}
	return nil
}
