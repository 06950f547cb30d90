package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
)

type itemRepository struct {
	mu    sync.RWMutex
	items map[model.MemoryID]*model.MemoryItem
}

func newItemRepository() *itemRepository {
	return &itemRepository{
		items: make(map[model.MemoryID]*model.MemoryItem),
	}
}

func (r *itemRepository) Put(ctx context.Context, items []*model.MemoryItem) ([]model.MemoryID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]model.MemoryID, 0, len(items))
	for _, item := range items {
		stored := item.Clone()
		if stored.ID == "" {
			stored.ID = model.NewMemoryID()
		}
		r.items[stored.ID] = stored
		ids = append(ids, stored.ID)
	}
	return ids, nil
}

func matchFilter(item *model.MemoryItem, filter interfaces.MemoryFilter) bool {
	if filter.SessionID != "" && item.SessionID != filter.SessionID {
		return false
	}
	if filter.UserID != "" && item.UserID != filter.UserID {
		return false
	}
	if filter.Scope != "" && string(item.Scope) != filter.Scope {
		return false
	}
	if filter.Category != "" && string(item.Category) != filter.Category {
		return false
	}
	return true
}

func (r *itemRepository) Search(ctx context.Context, query string, filter interfaces.MemoryFilter, now time.Time, limit int) ([]*model.ScoredItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var scored []*model.ScoredItem
	for _, item := range r.items {
		if !matchFilter(item, filter) || model.IsExpired(item, now) {
			continue
		}
		s := model.KeywordScore(query, item.Content)
		if s <= 0 {
			continue
		}
		scored = append(scored, &model.ScoredItem{Item: item.Clone(), Score: s})
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
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.MemoryItem, 0)
	for _, item := range r.items {
		if item.SessionID != sessionID || item.Scope != types.ScopeSession {
			continue
		}
		if model.IsExpired(item, now) {
			continue
		}
		result = append(result, item.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *itemRepository) ListByUser(ctx context.Context, userID string, now time.Time, limit int) ([]*model.MemoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.MemoryItem, 0)
	for _, item := range r.items {
		if item.UserID != userID || item.Scope != types.ScopeUser {
			continue
		}
		if model.IsExpired(item, now) {
			continue
		}
		result = append(result, item.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *itemRepository) ListCandidates(ctx context.Context, filter interfaces.MemoryFilter) ([]*model.MemoryItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.MemoryItem, 0)
	for _, item := range r.items {
		if matchFilter(item, filter) {
			result = append(result, item.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *itemRepository) Delete(ctx context.Context, ids []model.MemoryID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, exists := r.items[id]; exists {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}
