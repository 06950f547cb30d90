package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// consentDoc is the Firestore document representation of model.ConsentRecord
type consentDoc struct {
	UserID                string    `firestore:"UserID"`
	ConsentGiven          bool      `firestore:"ConsentGiven"`
	ConsentDate           time.Time `firestore:"ConsentDate"`
	ConsentVersion        string    `firestore:"ConsentVersion"`
	DataProcessing        bool      `firestore:"DataProcessing"`
	PersonalizedResponses bool      `firestore:"PersonalizedResponses"`
	RetentionConsent      bool      `firestore:"RetentionConsent"`
}

func toConsentDoc(r *model.ConsentRecord) *consentDoc {
	return &consentDoc{
		UserID:                r.UserID,
		ConsentGiven:          r.ConsentGiven,
		ConsentDate:           r.ConsentDate,
		ConsentVersion:        r.ConsentVersion,
		DataProcessing:        r.DataProcessing,
		PersonalizedResponses: r.PersonalizedResponses,
		RetentionConsent:      r.RetentionConsent,
	}
}

func fromConsentDoc(d *consentDoc) *model.ConsentRecord {
	return &model.ConsentRecord{
		UserID:                d.UserID,
		ConsentGiven:          d.ConsentGiven,
		ConsentDate:           d.ConsentDate,
		ConsentVersion:        d.ConsentVersion,
		DataProcessing:        d.DataProcessing,
		PersonalizedResponses: d.PersonalizedResponses,
		RetentionConsent:      d.RetentionConsent,
	}
}

type consentRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newConsentRepository(client *firestore.Client) *consentRepository {
	return &consentRepository{client: client}
}

func (r *consentRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "consents")
}

func (r *consentRepository) Put(ctx context.Context, rec *model.ConsentRecord) error {
	docRef := r.collection().Doc(rec.UserID)
	if _, err := docRef.Set(ctx, toConsentDoc(rec)); err != nil {
		return wrapRemoteErr(err, "failed to put consent record", goerr.V(model.UserIDKey, rec.UserID))
	}
	return nil
}

func (r *consentRepository) Get(ctx context.Context, userID string) (*model.ConsentRecord, error) {
	doc, err := r.collection().Doc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(ErrNotFound, "consent record not found", goerr.V(model.UserIDKey, userID))
		}
		return nil, wrapRemoteErr(err, "failed to get consent record", goerr.V(model.UserIDKey, userID))
	}

	var d consentDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal consent record", goerr.V(model.UserIDKey, userID))
	}
	return fromConsentDoc(&d), nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
