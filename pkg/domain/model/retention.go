package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
)

// RetentionPolicy defines the lifecycle of one memory category
type RetentionPolicy struct {
	TTL             time.Duration
	AutoDelete      bool
	RequiresConsent bool
}

// RetentionTable maps categories to retention policies. It is built once at
// startup and treated as a pure lookup afterwards; there is no way to mutate
// an entry after construction.
type RetentionTable struct {
	entries map[types.Category]RetentionPolicy
}

const day = 24 * time.Hour

// Per-category entries are authoritative over the global retention default.
// Preference items keep the long 365 day retention.
var defaultPolicies = map[types.Category]RetentionPolicy{
	types.CategoryContext:      {TTL: 30 * day, AutoDelete: true, RequiresConsent: false},
	types.CategoryPreference:   {TTL: 365 * day, AutoDelete: true, RequiresConsent: true},
	types.CategoryEntity:       {TTL: 180 * day, AutoDelete: true, RequiresConsent: false},
	types.CategoryFact:         {TTL: 90 * day, AutoDelete: true, RequiresConsent: true},
	types.CategoryRelationship: {TTL: 180 * day, AutoDelete: true, RequiresConsent: true},
}

// NewRetentionTable builds a table from the defaults with optional
// per-category overrides layered on top.
func NewRetentionTable(overrides map[types.Category]RetentionPolicy) (*RetentionTable, error) {
	entries := make(map[types.Category]RetentionPolicy, len(defaultPolicies))
	for c, p := range defaultPolicies {
		entries[c] = p
	}
	for c, p := range overrides {
		if !c.IsValid() {
			return nil, goerr.Wrap(ErrInvalidInput, "unknown category in retention overrides",
				goerr.V(CategoryKey, c),
			)
		}
		if p.TTL <= 0 {
			return nil, goerr.Wrap(ErrInvalidInput, "retention TTL must be positive",
				goerr.V(CategoryKey, c),
				goerr.V("ttl", p.TTL),
			)
		}
		entries[c] = p
	}
	return &RetentionTable{entries: entries}, nil
}

// DefaultRetentionTable returns a table holding only the built-in policies
func DefaultRetentionTable() *RetentionTable {
	t, _ := NewRetentionTable(nil)
	return t
}

// Policy returns the retention policy for a category
func (t *RetentionTable) Policy(c types.Category) RetentionPolicy {
	return t.entries[c]
}

// RequiresConsent reports whether writes of the category are consent-gated
func (t *RetentionTable) RequiresConsent(c types.Category) bool {
	return t.entries[c].RequiresConsent
}

// ComputeExpiry returns createdAt plus the category's TTL
func (t *RetentionTable) ComputeExpiry(c types.Category, createdAt time.Time) time.Time {
	return createdAt.Add(t.entries[c].TTL)
}

// IsExpired reports whether the item is past its expiry at the given instant
func IsExpired(item *MemoryItem, now time.Time) bool {
	return now.After(item.ExpiresAt)
}
