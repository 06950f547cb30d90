package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/mnemos/pkg/cli/config"
	"github.com/secmon-lab/mnemos/pkg/service/consent"
	"github.com/secmon-lab/mnemos/pkg/usecase"
	"github.com/secmon-lab/mnemos/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSweep() *cli.Command {
	var sessionID string
	var userID string
	var repoCfg config.Repository
	var memCfg config.Memory
	var retentionCfg config.Retention

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Usage:       "Limit the sweep to one session",
			Sources:     cli.EnvVars("MNEMOS_SWEEP_SESSION_ID"),
			Destination: &sessionID,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Usage:       "Limit the sweep to one user",
			Sources:     cli.EnvVars("MNEMOS_SWEEP_USER_ID"),
			Destination: &userID,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, memCfg.Flags()...)
	flags = append(flags, retentionCfg.Flags()...)

	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete expired memories once and exit",
		Flags: flags,
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

			deleted, err := uc.Cleanup(ctx, usecase.CleanupInput{
				SessionID: sessionID,
				UserID:    userID,
			})
			if err != nil {
				return goerr.Wrap(err, "retention sweep failed")
			}

			logging.Default().Info("retention sweep completed",
				"deleted", deleted,
				"session_id", sessionID,
				"user_id", userID,
			)
			return nil
		},
	}
}
