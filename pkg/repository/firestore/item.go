package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"google.golang.org/api/iterator"
)

// itemDoc is the Firestore document representation of model.MemoryItem
type itemDoc struct {
	ID              model.MemoryID `firestore:"ID"`
	Content         string         `firestore:"Content"`
	Category        string         `firestore:"Category"`
	Scope           string         `firestore:"Scope"`
	SessionID       string         `firestore:"SessionID"`
	UserID          string         `firestore:"UserID,omitempty"`
	ConversationID  string         `firestore:"ConversationID,omitempty"`
	CreatedAt       time.Time      `firestore:"CreatedAt"`
	ExpiresAt       time.Time      `firestore:"ExpiresAt"`
	PIIRedacted     bool           `firestore:"PIIRedacted"`
	RequiresConsent bool           `firestore:"RequiresConsent"`
}

func toItemDoc(m *model.MemoryItem) *itemDoc {
	return &itemDoc{
		ID:              m.ID,
		Content:         m.Content,
		Category:        string(m.Category),
		Scope:           string(m.Scope),
		SessionID:       m.SessionID,
		UserID:          m.UserID,
		ConversationID:  m.ConversationID,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
		PIIRedacted:     m.PIIRedacted,
		RequiresConsent: m.RequiresConsent,
	}
}

func fromItemDoc(d *itemDoc) *model.MemoryItem {
	return &model.MemoryItem{
		ID:              d.ID,
		Content:         d.Content,
		Category:        types.Category(d.Category),
		Scope:           types.Scope(d.Scope),
		SessionID:       d.SessionID,
		UserID:          d.UserID,
		ConversationID:  d.ConversationID,
		CreatedAt:       d.CreatedAt,
		ExpiresAt:       d.ExpiresAt,
		PIIRedacted:     d.PIIRedacted,
		RequiresConsent: d.RequiresConsent,
	}
}

type itemRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newItemRepository(client *firestore.Client) *itemRepository {
	return &itemRepository{client: client}
}

func (r *itemRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "memories")
}

func (r *itemRepository) Put(ctx context.Context, items []*model.MemoryItem) ([]model.MemoryID, error) {
	ids := make([]model.MemoryID, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = model.NewMemoryID()
		}
		docRef := r.collection().Doc(string(item.ID))
		if _, err := docRef.Set(ctx, toItemDoc(item)); err != nil {
			return nil, wrapRemoteErr(err, "failed to put memory item", goerr.V("memoryID", item.ID))
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (r *itemRepository) query(filter interfaces.MemoryFilter) firestore.Query {
	q := r.collection().Query
	if filter.SessionID != "" {
		q = q.Where("SessionID", "==", filter.SessionID)
	}
	if filter.UserID != "" {
		q = q.Where("UserID", "==", filter.UserID)
	}
	if filter.Scope != "" {
		q = q.Where("Scope", "==", filter.Scope)
	}
	if filter.Category != "" {
		q = q.Where("Category", "==", filter.Category)
	}
	return q
}

// collect drains a query, converting documents. Expiry is filtered locally
// against the caller's clock so no composite index on ExpiresAt is needed and
// the clock stays under the caller's control.
func (r *itemRepository) collect(ctx context.Context, q firestore.Query, dropExpiredAt *time.Time) ([]*model.MemoryItem, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	items := make([]*model.MemoryItem, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapRemoteErr(err, "failed to iterate memory items")
		}

		var d itemDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory item")
		}

		item := fromItemDoc(&d)
		if dropExpiredAt != nil && model.IsExpired(item, *dropExpiredAt) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *itemRepository) Search(ctx context.Context, query string, filter interfaces.MemoryFilter, now time.Time, limit int) ([]*model.ScoredItem, error) {
	items, err := r.collect(ctx, r.query(filter), &now)
	if err != nil {
		return nil, err
	}

	var scored []*model.ScoredItem
	for _, item := range items {
		s := model.KeywordScore(query, item.Content)
		if s <= 0 {
			continue
		}
		scored = append(scored, &model.ScoredItem{Item: item, Score: s})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.CreatedAt.After(scored[j].Item.CreatedAt)
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (r *itemRepository) ListBySession(ctx context.Context, sessionID string, now time.Time) ([]*model.MemoryItem, error) {
	q := r.collection().
		Where("SessionID", "==", sessionID).
		Where("Scope", "==", string(types.ScopeSession)).
		OrderBy("CreatedAt", firestore.Desc)
	return r.collect(ctx, q, &now)
}

func (r *itemRepository) ListByUser(ctx context.Context, userID string, now time.Time, limit int) ([]*model.MemoryItem, error) {
	q := r.collection().
		Where("UserID", "==", userID).
		Where("Scope", "==", string(types.ScopeUser)).
		OrderBy("CreatedAt", firestore.Desc)
	items, err := r.collect(ctx, q, &now)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *itemRepository) ListCandidates(ctx context.Context, filter interfaces.MemoryFilter) ([]*model.MemoryItem, error) {
	return r.collect(ctx, r.query(filter).OrderBy("CreatedAt", firestore.Desc), nil)
}

func (r *itemRepository) Delete(ctx context.Context, ids []model.MemoryID) (int, error) {
	deleted := 0
	for _, id := range ids {
		docRef := r.collection().Doc(string(id))

		if _, err := docRef.Get(ctx); err != nil {
			// Deleting an already-deleted item is a no-op
			if isNotFound(err) {
				continue
			}
			return deleted, wrapRemoteErr(err, "failed to get memory item", goerr.V("memoryID", id))
		}

		if _, err := docRef.Delete(ctx); err != nil {
			return deleted, wrapRemoteErr(err, "failed to delete memory item", goerr.V("memoryID", id))
		}
		deleted++
	}
	return deleted, nil
}
