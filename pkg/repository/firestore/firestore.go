package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = model.ErrNotFound

// Firestore is the durable remote memory backend
type Firestore struct {
	client  *firestore.Client
	item    *itemRepository
	consent *consentRepository
}

var _ interfaces.Repository = &Firestore{}

// Option configures the Firestore repository
type Option func(*Firestore)

// WithCollectionPrefix prefixes all collection names, e.g. for test isolation
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.item.collectionPrefix = prefix
		f.consent.collectionPrefix = prefix
	}
}

// New creates a Firestore-backed repository. The caller owns the returned
// repository and must call Close to release the underlying gRPC connection.
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID),
		)
	}

	f := &Firestore{
		client:  client,
		item:    newItemRepository(client),
		consent: newConsentRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Memory() interfaces.MemoryRepository {
	return f.item
}

func (f *Firestore) Consent() interfaces.ConsentRepository {
	return f.consent
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// wrapRemoteErr classifies a Firestore call failure. Deadline and
// availability errors become model.ErrBackendTimeout so the store client
// retries them; everything else is passed through wrapped.
func wrapRemoteErr(err error, msg string, values ...goerr.Option) error {
	opts := append([]goerr.Option{}, values...)
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Unavailable:
		opts = append(opts, goerr.V("cause", err.Error()))
		return goerr.Wrap(model.ErrBackendTimeout, msg, opts...)
	default:
		return goerr.Wrap(err, msg, opts...)
	}
}
