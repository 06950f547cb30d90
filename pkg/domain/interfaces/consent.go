package interfaces

import (
	"context"

	"github.com/secmon-lab/mnemos/pkg/domain/model"
)

// ConsentRepository defines persistence for per-user consent records
type ConsentRepository interface {
	// Put upserts the record for its user, last write wins
	Put(ctx context.Context, rec *model.ConsentRecord) error

	// Get retrieves the record for a user. Returns an error wrapping the
	// backend's ErrNotFound when no record exists.
	Get(ctx context.Context, userID string) (*model.ConsentRecord, error)
}
