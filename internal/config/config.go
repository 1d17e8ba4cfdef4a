// Package config loads the gateway's runtime configuration from a YAML
// file, environment variables, and command-line flags, in that order of
// increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/ecowatt/gateway/internal/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel        = "info"
	defaultConfigName      = "gateway"
	defaultConfigType      = "yaml"
	defaultPollingInterval = time.Second
	defaultPIDFile         = "/var/run/ecowatt-gateway.pid"
	defaultRegisterMapPath = "/etc/ecowatt/registers.yaml"
	defaultDiagnosticsDB   = "/var/lib/ecowatt-gateway/diagnostics.db"
	defaultStateDir        = "/var/lib/ecowatt-gateway/fota"
	defaultScratchPath     = "/var/lib/ecowatt-gateway/fota/scratch.img"
)

// Config is the fully resolved runtime configuration for one gateway
// process.
type Config struct {
	CloudBaseURL     string `mapstructure:"cloud_base_url"`
	CloudAPIKey      string `mapstructure:"cloud_api_key"`
	FOTAPresharedKey string `mapstructure:"fota_preshared_key"`

	PollingInterval time.Duration `mapstructure:"polling_interval"`
	RegisterMapPath string        `mapstructure:"register_map_path"`

	DiagnosticsEnabled bool   `mapstructure:"diagnostics_enabled"`
	DiagnosticsDBPath  string `mapstructure:"diagnostics_db_path"`

	FOTAStateDir    string `mapstructure:"fota_state_dir"`
	FOTAScratchPath string `mapstructure:"fota_scratch_path"`

	PIDFile string `mapstructure:"pid_file"`

	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`
}

// DefaultConfig returns a Config with every field at its production
// default, before flags, environment, or a config file are applied.
func DefaultConfig() Config {
	return Config{
		PollingInterval:    defaultPollingInterval,
		RegisterMapPath:    defaultRegisterMapPath,
		DiagnosticsEnabled: false,
		DiagnosticsDBPath:  defaultDiagnosticsDB,
		FOTAStateDir:       defaultStateDir,
		FOTAScratchPath:    defaultScratchPath,
		PIDFile:            defaultPIDFile,
		LogLevel:           DefaultLogLevel,
	}
}

// Load resolves configuration from /etc/ecowatt/gateway.yaml (or the
// path given by --config), environment variables prefixed GATEWAY_, and
// command-line flags, with flags taking precedence.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("gateway", pflag.ContinueOnError)

	configPath := flags.String("config", "", "path to configuration file")
	cloudBaseURL := flags.String("cloud-base-url", "", "cloud telemetry endpoint base URL")
	cloudAPIKey := flags.String("cloud-api-key", "", "cloud API key")
	fotaKey := flags.String("fota-preshared-key", "", "pre-shared key for FOTA chunk verification")
	pollingInterval := flags.Duration("polling-interval", defaultPollingInterval, "register acquisition interval")
	registerMap := flags.String("register-map", defaultRegisterMapPath, "path to the register map YAML file")
	diagnosticsEnabled := flags.Bool("diagnostics", false, "enable local diagnostics recording")
	diagnosticsDB := flags.String("diagnostics-db", defaultDiagnosticsDB, "path to the diagnostics sqlite database")
	fotaStateDir := flags.String("fota-state-dir", defaultStateDir, "directory for FOTA resume state")
	fotaScratch := flags.String("fota-scratch-path", defaultScratchPath, "path to the FOTA scratch image")
	pidFile := flags.String("pid-file", defaultPIDFile, "path to the PID file")
	debug := flags.Bool("debug", false, "enable debug logging")
	verbose := flags.Bool("verbose", false, "enable verbose logging")
	logLevel := flags.String("log-level", DefaultLogLevel, "log level: debug, info, warn, error")

	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetConfigType(defaultConfigType)
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys Unmarshal already knows about, so
	// bind every key to let the environment set values the file omits.
	for _, key := range []string{
		"cloud_base_url", "cloud_api_key", "fota_preshared_key",
		"polling_interval", "register_map_path",
		"diagnostics_enabled", "diagnostics_db_path",
		"fota_state_dir", "fota_scratch_path",
		"pid_file", "log_level", "debug", "verbose",
	} {
		_ = v.BindEnv(key)
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath("/etc/ecowatt")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "cloud-base-url":
			cfg.CloudBaseURL = *cloudBaseURL
		case "cloud-api-key":
			cfg.CloudAPIKey = *cloudAPIKey
		case "fota-preshared-key":
			cfg.FOTAPresharedKey = *fotaKey
		case "polling-interval":
			cfg.PollingInterval = *pollingInterval
		case "register-map":
			cfg.RegisterMapPath = *registerMap
		case "diagnostics":
			cfg.DiagnosticsEnabled = *diagnosticsEnabled
		case "diagnostics-db":
			cfg.DiagnosticsDBPath = *diagnosticsDB
		case "fota-state-dir":
			cfg.FOTAStateDir = *fotaStateDir
		case "fota-scratch-path":
			cfg.FOTAScratchPath = *fotaScratch
		case "pid-file":
			cfg.PIDFile = *pidFile
		case "debug":
			cfg.Debug = *debug
		case "verbose":
			cfg.Verbose = *verbose
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the fields Load cannot sanity-check on its own.
func (c Config) Validate() error {
	errFactory := errors.New()

	if c.CloudBaseURL == "" {
		return errFactory.New(errors.ErrMissingConfig)
	}

	if !zerologLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.PollingInterval <= 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}

	return nil
}

type zerologLevel string

func (l zerologLevel) IsValid() bool {
	_, err := zerolog.ParseLevel(string(l))
	return err == nil
}
