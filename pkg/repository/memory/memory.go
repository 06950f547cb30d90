package memory

import (
	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = model.ErrNotFound

// Repository is an in-memory implementation of interfaces.Repository for
// development and testing
type Repository struct {
	item    *itemRepository
	consent *consentRepository
}

var _ interfaces.Repository = &Repository{}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		item:    newItemRepository(),
		consent: newConsentRepository(),
	}
}

func (r *Repository) Memory() interfaces.MemoryRepository {
	return r.item
}

func (r *Repository) Consent() interfaces.ConsentRepository {
	return r.consent
}

func (r *Repository) Close() error {
	return nil
}
