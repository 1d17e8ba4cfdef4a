package diagnostics

import "github.com/ecowatt/gateway/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/ecowatt-gateway/diagnostics.db"
)

// Config controls whether poll-cycle diagnostics are recorded and where.
// Diagnostics are off by default: recording is for post-hoc
// troubleshooting, never read back into the live polling path.
type Config struct {
	Enabled bool
	DBPath  string
}

func DefaultConfig() Config {
	return Config{
		Enabled: false,
		DBPath:  defaultDBPath,
	}
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}
