package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/secmon-lab/mnemos/pkg/service/contextcache"
	"github.com/secmon-lab/mnemos/pkg/service/pii"
	"github.com/secmon-lab/mnemos/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Memory holds CLI flags for the memory store client and context builder
type Memory struct {
	remoteTimeout     time.Duration
	retryAttempts     int
	defaultScope      string
	enableDetection   bool
	autoSanitize      bool
	extraKeywords     []string
	allowedCategories []string
	consentVersion    string
	cacheTTL          time.Duration
	cacheSize         int
	contextDeadline   time.Duration
}

// Flags returns CLI flags for memory client configuration
func (m *Memory) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "remote-timeout",
			Usage:       "Timeout for each memory backend call",
			Value:       10 * time.Second,
			Sources:     cli.EnvVars("MNEMOS_REMOTE_TIMEOUT"),
			Destination: &m.remoteTimeout,
		},
		&cli.IntFlag{
			Name:        "retry-attempts",
			Usage:       "Total tries per memory backend operation",
			Value:       3,
			Sources:     cli.EnvVars("MNEMOS_RETRY_ATTEMPTS"),
			Destination: &m.retryAttempts,
		},
		&cli.StringFlag{
			Name:        "default-scope",
			Usage:       "Scope applied to writes without a user (session, user or agent)",
			Value:       "session",
			Sources:     cli.EnvVars("MNEMOS_DEFAULT_SCOPE"),
			Destination: &m.defaultScope,
		},
		&cli.BoolFlag{
			Name:        "enable-pii-detection",
			Usage:       "Detect PII in memory content before persisting",
			Value:       true,
			Sources:     cli.EnvVars("MNEMOS_ENABLE_PII_DETECTION"),
			Destination: &m.enableDetection,
		},
		&cli.BoolFlag{
			Name:        "auto-sanitization",
			Usage:       "Redact detected PII instead of rejecting the write",
			Value:       true,
			Sources:     cli.EnvVars("MNEMOS_AUTO_SANITIZATION"),
			Destination: &m.autoSanitize,
		},
		&cli.StringSliceFlag{
			Name:        "sensitive-keyword",
			Usage:       "Extra sensitive keyword to redact (repeatable)",
			Sources:     cli.EnvVars("MNEMOS_SENSITIVE_KEYWORDS"),
			Destination: &m.extraKeywords,
		},
		&cli.StringSliceFlag{
			Name:        "allowed-category",
			Usage:       "Restrict accepted memory categories (repeatable, empty allows all)",
			Sources:     cli.EnvVars("MNEMOS_ALLOWED_CATEGORIES"),
			Destination: &m.allowedCategories,
		},
		&cli.StringFlag{
			Name:        "required-consent-version",
			Usage:       "Minimum consent policy version accepted as valid",
			Value:       "1.0",
			Sources:     cli.EnvVars("MNEMOS_REQUIRED_CONSENT_VERSION"),
			Destination: &m.consentVersion,
		},
		&cli.DurationFlag{
			Name:        "context-cache-ttl",
			Usage:       "TTL of cached conversation contexts",
			Value:       contextcache.DefaultTTL,
			Sources:     cli.EnvVars("MNEMOS_CONTEXT_CACHE_TTL"),
			Destination: &m.cacheTTL,
		},
		&cli.IntFlag{
			Name:        "context-cache-size",
			Usage:       "Maximum number of cached conversation contexts",
			Value:       contextcache.DefaultCapacity,
			Sources:     cli.EnvVars("MNEMOS_CONTEXT_CACHE_SIZE"),
			Destination: &m.cacheSize,
		},
		&cli.DurationFlag{
			Name:        "context-deadline",
			Usage:       "Total latency budget for building one conversation context",
			Value:       3 * time.Second,
			Sources:     cli.EnvVars("MNEMOS_CONTEXT_DEADLINE"),
			Destination: &m.contextDeadline,
		},
	}
}

// Detector builds the PII detector from the flags
func (m *Memory) Detector() *pii.Detector {
	return pii.New(
		pii.WithDetection(m.enableDetection),
		pii.WithAutoSanitization(m.autoSanitize),
		pii.WithKeywords(m.extraKeywords...),
	)
}

// Cache builds the context cache from the flags
func (m *Memory) Cache() *contextcache.Cache {
	return contextcache.New(m.cacheTTL, m.cacheSize)
}

// RequiredConsentVersion returns the minimum accepted consent version
func (m *Memory) RequiredConsentVersion() string {
	return m.consentVersion
}

// UseCaseOptions translates the flags into usecase options
func (m *Memory) UseCaseOptions() ([]usecase.Option, error) {
	scope, err := types.ParseScope(m.defaultScope)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid default scope", goerr.V("scope", m.defaultScope))
	}

	opts := []usecase.Option{
		usecase.WithRemoteTimeout(m.remoteTimeout),
		usecase.WithRetryAttempts(m.retryAttempts),
		usecase.WithContextDeadline(m.contextDeadline),
		usecase.WithDefaultScope(scope),
	}

	if len(m.allowedCategories) > 0 {
		categories := make([]types.Category, 0, len(m.allowedCategories))
		for _, c := range m.allowedCategories {
			category, err := types.ParseCategory(c)
			if err != nil {
				return nil, goerr.Wrap(err, "invalid allowed category", goerr.V("category", c))
			}
			categories = append(categories, category)
		}
		opts = append(opts, usecase.WithAllowedCategories(categories...))
	}

	return opts, nil
}
