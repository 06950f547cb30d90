package cli

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/cli/config"
	"github.com/secmon-lab/mnemos/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string, version string) error {
	var loggerCfg config.Logger
	var sentryDSN string
	var closer func()
	var sentryEnabled bool

	flags := append(loggerCfg.Flags(),
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for error reporting (disabled when empty)",
			Sources:     cli.EnvVars("MNEMOS_SENTRY_DSN"),
			Destination: &sentryDSN,
		},
	)

	app := &cli.Command{
		Name:    "mnemos",
		Usage:   "Conversation memory service with privacy-compliant retention",
		Version: version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f

			if sentryDSN != "" {
				if err := sentry.Init(sentry.ClientOptions{
					Dsn:     sentryDSN,
					Release: version,
				}); err != nil {
					return ctx, goerr.Wrap(err, "failed to initialize sentry")
				}
				sentryEnabled = true
			}

			logging.Default().Info("Starting mnemos",
				"logger", loggerCfg,
				"sentry", sentryEnabled,
			)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if sentryEnabled {
				sentry.Flush(2 * time.Second)
			}
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(),
			cmdSweep(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		if sentryEnabled {
			sentry.CaptureException(err)
		}
		return err
	}

	return nil
}
