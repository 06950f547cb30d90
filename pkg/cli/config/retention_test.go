package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemos/pkg/cli/config"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func writeRetentionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retention.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0644)).Required()
	return path
}

// configureRetention parses the flags through a throwaway command so the
// test exercises the real flag wiring
func configureRetention(t *testing.T, cfg *config.Retention, args []string) (*model.RetentionTable, error) {
	t.Helper()

	var table *model.RetentionTable
	var cfgErr error
	cmd := &cli.Command{
		Name:  "test",
		Flags: cfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			table, cfgErr = cfg.Configure()
			return nil
		},
	}
	gt.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...))).Required()
	return table, cfgErr
}

func TestRetentionConfigure(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		var cfg config.Retention
		table, err := configureRetention(t, &cfg, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, table.Policy(types.CategoryPreference).TTL).Equal(365 * 24 * time.Hour)
	})

	t.Run("data-retention-days adjusts context category", func(t *testing.T) {
		var cfg config.Retention
		table, err := configureRetention(t, &cfg, []string{"--data-retention-days", "7"})
		gt.NoError(t, err).Required()
		gt.Value(t, table.Policy(types.CategoryContext).TTL).Equal(7 * 24 * time.Hour)
		// Other categories are untouched
		gt.Value(t, table.Policy(types.CategoryFact).TTL).Equal(90 * 24 * time.Hour)
	})

	t.Run("scope ttl flags override category tiers", func(t *testing.T) {
		var cfg config.Retention
		table, err := configureRetention(t, &cfg, []string{
			"--session-memory-ttl", "24h",
			"--user-memory-ttl", "720h",
		})
		gt.NoError(t, err).Required()

		// session-memory-ttl wins over the default data-retention-days
		gt.Value(t, table.Policy(types.CategoryContext).TTL).Equal(24 * time.Hour)
		gt.Value(t, table.Policy(types.CategoryFact).TTL).Equal(720 * time.Hour)
		gt.Value(t, table.Policy(types.CategoryEntity).TTL).Equal(720 * time.Hour)
		// Consent gating of the tier is preserved
		gt.Bool(t, table.RequiresConsent(types.CategoryFact)).True()
		// preference keeps its own long retention
		gt.Value(t, table.Policy(types.CategoryPreference).TTL).Equal(365 * 24 * time.Hour)
	})

	t.Run("file entries are authoritative", func(t *testing.T) {
		path := writeRetentionFile(t, `
[[policy]]
category = "context"
ttl_days = 3
auto_delete = true

[[policy]]
category = "fact"
ttl_days = 14
auto_delete = false
requires_consent = true
`)
		var cfg config.Retention
		table, err := configureRetention(t, &cfg, []string{
			"--data-retention-days", "60",
			"--retention-config", path,
		})
		gt.NoError(t, err).Required()

		// File wins over the flag for the context category
		gt.Value(t, table.Policy(types.CategoryContext).TTL).Equal(3 * 24 * time.Hour)
		gt.Value(t, table.Policy(types.CategoryFact).TTL).Equal(14 * 24 * time.Hour)
		gt.Bool(t, table.Policy(types.CategoryFact).AutoDelete).False()
		gt.Bool(t, table.RequiresConsent(types.CategoryFact)).True()
	})

	t.Run("invalid category in file rejected", func(t *testing.T) {
		path := writeRetentionFile(t, `
[[policy]]
category = "gossip"
ttl_days = 3
`)
		var cfg config.Retention
		_, err := configureRetention(t, &cfg, []string{"--retention-config", path})
		gt.Error(t, err)
	})

	t.Run("non-positive ttl in file rejected", func(t *testing.T) {
		path := writeRetentionFile(t, `
[[policy]]
category = "context"
ttl_days = 0
`)
		var cfg config.Retention
		_, err := configureRetention(t, &cfg, []string{"--retention-config", path})
		gt.Error(t, err)
	})
}
