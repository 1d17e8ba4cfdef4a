package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/ecowatt/gateway/internal/acquisition"
	"github.com/ecowatt/gateway/internal/config"
	"github.com/ecowatt/gateway/internal/diagnostics"
	"github.com/ecowatt/gateway/internal/fota"
	"github.com/ecowatt/gateway/internal/httpclient"
	"github.com/ecowatt/gateway/internal/logger"
	"github.com/ecowatt/gateway/internal/pid"
	"github.com/ecowatt/gateway/internal/protocol"
	"github.com/ecowatt/gateway/internal/registry"
	"github.com/ecowatt/gateway/internal/remoteconfig"
	"golang.org/x/sync/errgroup"
)

var (
	cfg         *config.Config
	scheduler   *acquisition.Scheduler
	fotaManager *fota.Manager
)

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		logger.Fatal().Err(err).Msg("failed to acquire pid lock")
	}
}

func main() {
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	client := httpclient.New()
	if cfg.CloudAPIKey != "" {
		client.SetDefaultHeaders(map[string]string{"Authorization": cfg.CloudAPIKey})
	}

	table, err := loadRegisterTable()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load register map")
	}
	registers := registry.NewHolder(table)

	adapter := protocol.New(client, cfg.CloudBaseURL)

	var diag acquisition.DiagnosticsRecorder
	if cfg.DiagnosticsEnabled {
		recorder, err := diagnostics.New(diagnostics.Config{Enabled: true, DBPath: cfg.DiagnosticsDBPath})
		if err != nil {
			logger.Error().Err(err).Msg("failed to open diagnostics database; continuing without it")
		} else {
			diag = recorder
			defer recorder.Close()
		}
	}

	opts := []acquisition.Option{acquisition.WithReportFunc(reportSamples)}
	if diag != nil {
		opts = append(opts, acquisition.WithDiagnostics(diag))
	}
	scheduler = acquisition.New(adapter, registers, opts...)

	remoteCfg := remoteconfig.New(client, cfg.CloudBaseURL, registers, scheduler)

	fotaManager = fota.New(fota.Config{
		Client:          client,
		BaseURL:         cfg.CloudBaseURL,
		PreSharedKey:    []byte(cfg.FOTAPresharedKey),
		ScratchPath:     cfg.FOTAScratchPath,
		StateDir:        cfg.FOTAStateDir,
		PartitionWriter: fota.NewFilePartitionWriter(cfg.FOTAStateDir),
		Reboot:          rebootDevice,
	})

	// Reaching this point means the process is up and the main loop is
	// about to start: if the last boot's persisted state left FOTA
	// mid-reboot, this boot is the post-update health check.
	if fotaManager.Progress().State == fota.StateRebooting {
		if err := fotaManager.ConfirmBootSuccess(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to confirm boot success")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	scheduler.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		remoteCfg.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return fotaManager.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
}

func loadRegisterTable() (*registry.Table, error) {
	if cfg.RegisterMapPath == "" {
		return registry.NewTable(registry.DefaultInverterRegisters()), nil
	}

	if _, err := os.Stat(cfg.RegisterMapPath); os.IsNotExist(err) {
		logger.Warn().Str("path", cfg.RegisterMapPath).Msg("register map not found, using built-in defaults")
		return registry.NewTable(registry.DefaultInverterRegisters()), nil
	}

	return registry.Load(cfg.RegisterMapPath)
}

// rebootDevice restarts the host so the bootloader picks up the
// partition that fota.Manager just activated (or rolled back). If the
// reboot command itself fails, exiting anyway hands the retry to the
// process supervisor rather than leaving the manager stuck believing a
// reboot is still pending.
func rebootDevice() {
	logger.Warn().Msg("rebooting to apply firmware update")
	if err := exec.Command("reboot").Run(); err != nil {
		logger.Error().Err(err).Msg("reboot command failed; exiting for the supervisor to restart")
	}
	os.Exit(0)
}

// reportSamples is the acquisition scheduler's hand-off to the uplink
// path. The delta-compressed payload is already self-checked; this is
// where a real deployment would push it over the transport, which the
// acquisition package intentionally does not own.
func reportSamples(compressed []byte, samples []acquisition.Sample) {
	logger.Debug().Int("bytes", len(compressed)).Int("samples", len(samples)).Msg("drained acquisition buffer")
}

// handleSignals waits for a termination signal and cancels ctx, or, on
// SIGHUP, cancels an in-progress FOTA update without tearing down the
// process.
func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigs {
		if sig == syscall.SIGHUP {
			if fotaManager == nil {
				continue
			}
			if err := fotaManager.Cancel(); err != nil {
				logger.Error().Err(err).Msg("failed to cancel in-progress update")
			} else {
				logger.Info().Msg("fota update cancelled by operator signal")
			}
			continue
		}

		logger.Info().Msg("received termination signal")
		cancel()
		return
	}
}

func cleanup() {
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := pid.Remove(cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("failed to remove pid file")
	}
	logger.Info().Msg("exiting")
}
