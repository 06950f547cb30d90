package usecase

import (
	"time"

	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/secmon-lab/mnemos/pkg/service/consent"
	"github.com/secmon-lab/mnemos/pkg/service/contextcache"
	"github.com/secmon-lab/mnemos/pkg/service/pii"
)

// UseCases wires the memory store client, the conversation context builder
// and the consent operations over one repository.
type UseCases struct {
	repo     interfaces.Repository
	detector *pii.Detector
	ledger   *consent.Ledger
	table    *model.RetentionTable
	cache    *contextcache.Cache

	now               func() time.Time
	remoteTimeout     time.Duration
	retryAttempts     int
	retryBaseInterval time.Duration
	retryMaxInterval  time.Duration
	contextDeadline   time.Duration
	defaultScope      types.Scope
	allowedCategories map[types.Category]bool
	searchLimit       int
	userItemLimit     int
	topicWindow       int
}

type Option func(*UseCases)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

// WithRemoteTimeout bounds each individual backend call
func WithRemoteTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.remoteTimeout = d
	}
}

// WithRetryAttempts sets the total number of tries per backend operation
func WithRetryAttempts(n int) Option {
	return func(uc *UseCases) {
		uc.retryAttempts = n
	}
}

// WithRetryBaseInterval sets the first backoff interval. Tests shrink it to
// keep retry exhaustion fast.
func WithRetryBaseInterval(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.retryBaseInterval = d
	}
}

// WithContextDeadline bounds the total latency of building one conversation
// context
func WithContextDeadline(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.contextDeadline = d
	}
}

// WithDefaultScope sets the scope applied when no user is identified
func WithDefaultScope(s types.Scope) Option {
	return func(uc *UseCases) {
		uc.defaultScope = s
	}
}

// WithAllowedCategories restricts which categories Add accepts. Empty means
// all valid categories.
func WithAllowedCategories(categories ...types.Category) Option {
	return func(uc *UseCases) {
		uc.allowedCategories = make(map[types.Category]bool, len(categories))
		for _, c := range categories {
			uc.allowedCategories[c] = true
		}
	}
}

// New builds the use cases. detector, ledger, table and cache must be
// non-nil; the repository provides both memory and consent storage.
func New(repo interfaces.Repository, detector *pii.Detector, ledger *consent.Ledger, table *model.RetentionTable, cache *contextcache.Cache, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		detector: detector,
		ledger:   ledger,
		table:    table,
		cache:    cache,

		now:               time.Now,
		remoteTimeout:     10 * time.Second,
		retryAttempts:     3,
		retryBaseInterval: 200 * time.Millisecond,
		retryMaxInterval:  2 * time.Second,
		contextDeadline:   3 * time.Second,
		defaultScope:      types.ScopeSession,
		searchLimit:       20,
		userItemLimit:     10,
		topicWindow:       20,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

func (uc *UseCases) categoryAllowed(c types.Category) bool {
	if len(uc.allowedCategories) == 0 {
		return true
	}
	return uc.allowedCategories[c]
}
