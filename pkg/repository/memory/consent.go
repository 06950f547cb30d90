package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
)

type consentRepository struct {
	mu      sync.RWMutex
	records map[string]*model.ConsentRecord
}

func newConsentRepository() *consentRepository {
	return &consentRepository{
		records: make(map[string]*model.ConsentRecord),
	}
}

func (r *consentRepository) Put(ctx context.Context, rec *model.ConsentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.UserID] = rec.Clone()
	return nil
}

func (r *consentRepository) Get(ctx context.Context, userID string) (*model.ConsentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[userID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "consent record not found", goerr.V(model.UserIDKey, userID))
	}
	return rec.Clone(), nil
}
