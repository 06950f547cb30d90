package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/mnemos/pkg/cli/config"
	httpctrl "github.com/secmon-lab/mnemos/pkg/controller/http"
	"github.com/secmon-lab/mnemos/pkg/service/consent"
	"github.com/secmon-lab/mnemos/pkg/usecase"
	"github.com/secmon-lab/mnemos/pkg/utils/async"
	"github.com/secmon-lab/mnemos/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var sweepInterval time.Duration
	var repoCfg config.Repository
	var memCfg config.Memory
	var retentionCfg config.Retention

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("MNEMOS_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "Interval between background retention sweeps (0 disables)",
			Value:       time.Hour,
			Sources:     cli.EnvVars("MNEMOS_SWEEP_INTERVAL"),
			Destination: &sweepInterval,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, memCfg.Flags()...)
	flags = append(flags, retentionCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			table, err := retentionCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load retention policies")
			}

			ledger, err := consent.New(repo.Consent(), table, memCfg.RequiredConsentVersion())
			if err != nil {
				return goerr.Wrap(err, "failed to initialize consent ledger")
			}

			ucOpts, err := memCfg.UseCaseOptions()
			if err != nil {
				return goerr.Wrap(err, "invalid memory client configuration")
			}
			uc := usecase.New(repo, memCfg.Detector(), ledger, table, memCfg.Cache(), ucOpts...)

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Background retention sweep
			sweepCtx, stopSweep := context.WithCancel(ctx)
			defer stopSweep()
			if sweepInterval > 0 {
				go func() {
					ticker := time.NewTicker(sweepInterval)
					defer ticker.Stop()
					for {
						select {
						case <-sweepCtx.Done():
							return
						case <-ticker.C:
							async.Dispatch(sweepCtx, func(ctx context.Context) error {
								deleted, err := uc.Cleanup(ctx, usecase.CleanupInput{})
								if err != nil {
									return goerr.Wrap(err, "retention sweep failed")
								}
								logging.Default().Info("retention sweep completed", "deleted", deleted)
								return nil
							})
						}
					}
				}()
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				stopSweep()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
