package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/ecowatt/gateway/internal/errors"
)

const (
	defaultPIDFile = "ecowatt-gateway.pid"
)

// resolve returns path if set, otherwise the default location under the
// OS temp dir.
func resolve(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), defaultPIDFile)
}

// Write writes the current process ID to path, refusing to start if
// another gateway process is already alive. This guards against two
// processes racing the same FOTA scratch image and state file. An empty
// path falls back to a default location under the OS temp dir.
func Write(path string) error {
	errFactory := errors.New()
	pid := os.Getpid()
	path = resolve(path)

	if _, err := os.Stat(path); err == nil {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		existing, err := strconv.Atoi(string(bytes))
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		process, err := os.FindProcess(existing)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		if err := process.Signal(syscall.Signal(0)); err == nil {
			return errFactory.New(errors.ErrAlreadyRunning)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file at path, or the default location if path
// is empty.
func Remove(path string) error {
	errFactory := errors.New()
	path = resolve(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
