package fota

import (
	"github.com/ecowatt/gateway/internal/errors"
	"github.com/ecowatt/gateway/internal/logger"
)

// checkRollback inspects boot state left over from a previous run. If
// the last recorded state was mid-activation and the device has booted
// MaxBootAttempts times without a successful boot_status report, it
// rolls the partition back and clears the counter so the device
// doesn't boot-loop forever on a bad image.
func checkRollback(stateDir string, pw PartitionWriter) (rolledBack bool, err error) {
	st, ok := loadState(stateDir)
	if !ok {
		return false, nil
	}

	if st.Progress.State != StateRebooting && st.Progress.State != StateWriting {
		return false, nil
	}

	bootCount := loadBootCount(stateDir) + 1
	if err := saveBootCount(stateDir, bootCount); err != nil {
		return false, err
	}

	if bootCount < MaxBootAttempts {
		return false, nil
	}

	logger.Error().
		Str("component", "fota").
		Str("new_version", st.Progress.NewVersion).
		Int("boot_count", bootCount).
		Msg("boot attempts exhausted, rolling back")

	target, err := pw.Rollback()
	if err != nil {
		return false, errors.New().Wrap(errors.ErrStateInvalid, err)
	}

	event := "rollback_to_previous_ota"
	if target == RollbackToFactory {
		event = "rollback_to_factory"
	}
	logger.Error().Str("component", "fota").Msg(event)

	if err := saveBootCount(stateDir, 0); err != nil {
		return false, err
	}
	if err := clearState(stateDir); err != nil {
		return false, err
	}

	return true, nil
}
