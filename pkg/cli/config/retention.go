package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// Retention holds CLI flags for the retention policy table
type Retention struct {
	defaultDays int
	sessionTTL  time.Duration
	userTTL     time.Duration
	configPath  string
}

// Flags returns CLI flags for retention configuration
func (r *Retention) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "data-retention-days",
			Usage:       "Retention in days for context-category memories",
			Value:       30,
			Sources:     cli.EnvVars("MNEMOS_DATA_RETENTION_DAYS"),
			Destination: &r.defaultDays,
		},
		&cli.DurationFlag{
			Name:        "session-memory-ttl",
			Usage:       "Override the retention of context-category (session tier) memories",
			Sources:     cli.EnvVars("MNEMOS_SESSION_MEMORY_TTL"),
			Destination: &r.sessionTTL,
		},
		&cli.DurationFlag{
			Name:        "user-memory-ttl",
			Usage:       "Override the retention of entity, fact and relationship (user tier) memories",
			Sources:     cli.EnvVars("MNEMOS_USER_MEMORY_TTL"),
			Destination: &r.userTTL,
		},
		&cli.StringFlag{
			Name:        "retention-config",
			Usage:       "Path to a TOML file with per-category retention policies",
			Sources:     cli.EnvVars("MNEMOS_RETENTION_CONFIG"),
			Destination: &r.configPath,
		},
	}
}

// RetentionPolicyEntry is one per-category policy in the TOML file
type RetentionPolicyEntry struct {
	Category        string `toml:"category"`
	TTLDays         int    `toml:"ttl_days"`
	AutoDelete      bool   `toml:"auto_delete"`
	RequiresConsent bool   `toml:"requires_consent"`
}

// Validate checks if the entry is valid
func (e *RetentionPolicyEntry) Validate() error {
	if !types.Category(e.Category).IsValid() {
		return goerr.New("invalid retention category", goerr.V("category", e.Category))
	}
	if e.TTLDays <= 0 {
		return goerr.New("retention ttl_days must be positive",
			goerr.V("category", e.Category),
			goerr.V("ttl_days", e.TTLDays),
		)
	}
	return nil
}

// RetentionConfig is the TOML file layout
type RetentionConfig struct {
	Policies []RetentionPolicyEntry `toml:"policy"`
}

// Configure builds the retention table. File entries are authoritative over
// the flag-level overrides: data-retention-days and session-memory-ttl adjust
// the context category, user-memory-ttl adjusts the user tier categories.
func (r *Retention) Configure() (*model.RetentionTable, error) {
	overrides := map[types.Category]model.RetentionPolicy{}

	if r.defaultDays > 0 {
		overrides[types.CategoryContext] = model.RetentionPolicy{
			TTL:        time.Duration(r.defaultDays) * 24 * time.Hour,
			AutoDelete: true,
		}
	}
	if r.sessionTTL > 0 {
		overrides[types.CategoryContext] = model.RetentionPolicy{
			TTL:        r.sessionTTL,
			AutoDelete: true,
		}
	}
	if r.userTTL > 0 {
		defaults := model.DefaultRetentionTable()
		for _, c := range []types.Category{types.CategoryEntity, types.CategoryFact, types.CategoryRelationship} {
			p := defaults.Policy(c)
			p.TTL = r.userTTL
			overrides[c] = p
		}
	}

	if r.configPath != "" {
		data, err := os.ReadFile(r.configPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read retention config", goerr.V("path", r.configPath))
		}

		var cfg RetentionConfig
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to parse retention config", goerr.V("path", r.configPath))
		}

		for i := range cfg.Policies {
			entry := &cfg.Policies[i]
			if err := entry.Validate(); err != nil {
				return nil, goerr.Wrap(err, "invalid retention config entry", goerr.V("path", r.configPath))
			}
			overrides[types.Category(entry.Category)] = model.RetentionPolicy{
				TTL:             time.Duration(entry.TTLDays) * 24 * time.Hour,
				AutoDelete:      entry.AutoDelete,
				RequiresConsent: entry.RequiresConsent,
			}
		}
	}

	table, err := model.NewRetentionTable(overrides)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build retention table")
	}
	return table, nil
}
