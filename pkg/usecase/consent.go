package usecase

import (
	"context"

	"github.com/secmon-lab/mnemos/pkg/domain/model"
)

// RecordConsent stores a user's consent record
func (uc *UseCases) RecordConsent(ctx context.Context, rec *model.ConsentRecord) error {
	return uc.ledger.Record(ctx, rec)
}

// RevokeConsent withdraws all consent for the user. Stored memories are not
// deleted here; the retention sweep and explicit deletion handle that.
func (uc *UseCases) RevokeConsent(ctx context.Context, userID string) error {
	return uc.ledger.Revoke(ctx, userID)
}

// GetConsent returns the user's current consent record
func (uc *UseCases) GetConsent(ctx context.Context, userID string) (*model.ConsentRecord, error) {
	return uc.ledger.Get(ctx, userID)
}
