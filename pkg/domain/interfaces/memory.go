package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/mnemos/pkg/domain/model"
)

// MemoryFilter narrows repository queries. Zero-value fields are ignored.
type MemoryFilter struct {
	SessionID string
	UserID    string
	Scope     string
	Category  string
}

// MemoryRepository defines the remote durable memory store operations.
// Writes are atomic per item: a failed Put never leaves a half-written
// document behind.
type MemoryRepository interface {
	// Put persists the given items and returns their IDs in input order
	Put(ctx context.Context, items []*model.MemoryItem) ([]model.MemoryID, error)

	// Search returns items matching the filter scored by relevance to the
	// query, highest score first. Expired items (relative to now) are not
	// returned.
	Search(ctx context.Context, query string, filter MemoryFilter, now time.Time, limit int) ([]*model.ScoredItem, error)

	// ListBySession returns all non-expired session-scoped items for the
	// session, newest first.
	ListBySession(ctx context.Context, sessionID string, now time.Time) ([]*model.MemoryItem, error)

	// ListByUser returns up to limit non-expired user-scoped items for the
	// user, newest first.
	ListByUser(ctx context.Context, userID string, now time.Time, limit int) ([]*model.MemoryItem, error)

	// ListCandidates returns all items matching the filter regardless of
	// expiry. Used by the retention sweep.
	ListCandidates(ctx context.Context, filter MemoryFilter) ([]*model.MemoryItem, error)

	// Delete removes the given items and returns how many existed. Deleting
	// an already-deleted item is a no-op, not an error.
	Delete(ctx context.Context, ids []model.MemoryID) (int, error)
}
