package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/secmon-lab/mnemos/pkg/service/contextcache"
)

// retryRemote runs op against the memory backend with exponential backoff.
// Only timeout-class failures are retried; everything else is permanent.
// When all tries are exhausted on timeouts, the failure is reported as
// model.ErrBackendUnavailable.
func retryRemote[T any](ctx context.Context, uc *UseCases, op func(ctx context.Context) (T, error)) (T, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = uc.retryBaseInterval
	expo.MaxInterval = uc.retryMaxInterval

	result, err := backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, uc.remoteTimeout)
		defer cancel()

		v, err := op(attemptCtx)
		if err == nil {
			return v, nil
		}
		if isRetryable(err) {
			return v, err
		}
		return v, backoff.Permanent(err)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(uc.retryAttempts)))

	if err != nil {
		var zero T
		if isRetryable(err) {
			return zero, goerr.Wrap(model.ErrBackendUnavailable, "memory backend retries exhausted",
				goerr.V("attempts", uc.retryAttempts),
				goerr.V("cause", err.Error()),
			)
		}
		return zero, err
	}
	return result, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, model.ErrBackendTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// consentChecker returns a predicate reporting whether a consent-gated item
// may be served. Lookups are memoized per user and category, so read paths
// filtering many items hit the ledger once per distinct pair.
func (uc *UseCases) consentChecker() func(ctx context.Context, item *model.MemoryItem) (bool, error) {
	type key struct {
		userID   string
		category types.Category
	}
	memo := make(map[key]bool)

	return func(ctx context.Context, item *model.MemoryItem) (bool, error) {
		if !item.RequiresConsent {
			return true, nil
		}
		k := key{userID: item.UserID, category: item.Category}
		ok, checked := memo[k]
		if !checked {
			var err error
			ok, err = uc.ledger.HasValid(ctx, item.UserID, item.Category)
			if err != nil {
				return false, err
			}
			memo[k] = ok
		}
		return ok, nil
	}
}

// AddInput describes one batch of turns to persist
type AddInput struct {
	Turns          []model.Turn
	SessionID      string
	UserID         string
	ConversationID string
	Category       types.Category
}

func (x *AddInput) validate(uc *UseCases) error {
	if len(x.Turns) == 0 {
		return goerr.Wrap(model.ErrInvalidInput, "at least one turn is required")
	}
	for i, turn := range x.Turns {
		if strings.TrimSpace(turn.Content) == "" {
			return goerr.Wrap(model.ErrInvalidInput, "turn content must not be empty",
				goerr.V("index", i),
			)
		}
	}
	if x.SessionID == "" {
		return goerr.Wrap(model.ErrInvalidInput, "session ID is required")
	}
	if !x.Category.IsValid() {
		return goerr.Wrap(model.ErrInvalidInput, "unknown memory category",
			goerr.V(model.CategoryKey, x.Category),
		)
	}
	if !uc.categoryAllowed(x.Category) {
		return goerr.Wrap(model.ErrInvalidInput, "memory category is not enabled",
			goerr.V(model.CategoryKey, x.Category),
		)
	}
	return nil
}

// Add sanitizes and persists a batch of turns as memory items. The batch is
// all-or-nothing before the remote call: a PII rejection or a missing consent
// aborts the whole batch with nothing persisted. Returns the created IDs.
func (uc *UseCases) Add(ctx context.Context, input AddInput) ([]model.MemoryID, error) {
	if err := input.validate(uc); err != nil {
		return nil, err
	}

	// Sanitize every turn before touching the backend so a rejection in any
	// turn leaves no partial writes.
	sanitized := make([]*model.MemoryItem, 0, len(input.Turns))
	now := uc.now()
	for _, turn := range input.Turns {
		result, err := uc.detector.Sanitize(turn.Content)
		if err != nil {
			return nil, goerr.Wrap(err, "memory batch rejected",
				goerr.V(model.SessionIDKey, input.SessionID),
			)
		}
		sanitized = append(sanitized, &model.MemoryItem{
			Content:         result.Text,
			Category:        input.Category,
			SessionID:       input.SessionID,
			UserID:          input.UserID,
			ConversationID:  input.ConversationID,
			CreatedAt:       now,
			ExpiresAt:       uc.table.ComputeExpiry(input.Category, now),
			PIIRedacted:     result.Changed,
			RequiresConsent: uc.table.RequiresConsent(input.Category),
		})
	}

	if err := uc.ledger.Check(ctx, input.UserID, input.Category); err != nil {
		return nil, err
	}

	// Scope is fixed at write time and never migrates afterwards
	scope := uc.defaultScope
	if input.UserID != "" {
		scope = types.ScopeUser
	}
	for _, item := range sanitized {
		item.Scope = scope
	}

	ids, err := retryRemote(ctx, uc, func(ctx context.Context) ([]model.MemoryID, error) {
		return uc.repo.Memory().Put(ctx, sanitized)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to persist memory batch",
			goerr.V(model.SessionIDKey, input.SessionID),
			goerr.V(model.CategoryKey, input.Category),
		)
	}

	// The next context read for this session must see the new items
	uc.cache.InvalidateSession(input.SessionID)
	if input.ConversationID != "" {
		uc.cache.Invalidate(contextcache.Key{
			ConversationID: input.ConversationID,
			SessionID:      input.SessionID,
		})
	}

	return ids, nil
}

// SearchInput scopes a relevance search
type SearchInput struct {
	Query     string
	SessionID string
	UserID    string
	Category  types.Category
	Limit     int
}

// Search queries the backend for relevant memories and applies a local
// safety net: expired or consent-invalid items are dropped even if the
// backend returned them.
func (uc *UseCases) Search(ctx context.Context, input SearchInput) ([]*model.ScoredItem, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "search query must not be empty")
	}
	if input.Category != "" && !input.Category.IsValid() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "unknown memory category",
			goerr.V(model.CategoryKey, input.Category),
		)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = uc.searchLimit
	}

	filter := interfaces.MemoryFilter{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Category:  string(input.Category),
	}

	now := uc.now()
	scored, err := retryRemote(ctx, uc, func(ctx context.Context) ([]*model.ScoredItem, error) {
		return uc.repo.Memory().Search(ctx, input.Query, filter, now, limit)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "memory search failed")
	}

	allowed := uc.consentChecker()
	result := make([]*model.ScoredItem, 0, len(scored))
	for _, s := range scored {
		if model.IsExpired(s.Item, now) {
			continue
		}
		ok, err := allowed(ctx, s.Item)
		if err != nil {
			return nil, goerr.Wrap(err, "consent check failed during search")
		}
		if !ok {
			continue
		}
		result = append(result, s)
	}

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CleanupInput scopes a retention sweep. Empty fields widen the sweep.
type CleanupInput struct {
	SessionID string
	UserID    string
}

// Cleanup deletes expired items whose category has auto-delete enabled.
// Idempotent: a second run with no intervening writes deletes nothing.
func (uc *UseCases) Cleanup(ctx context.Context, input CleanupInput) (int, error) {
	filter := interfaces.MemoryFilter{
		SessionID: input.SessionID,
		UserID:    input.UserID,
	}

	candidates, err := retryRemote(ctx, uc, func(ctx context.Context) ([]*model.MemoryItem, error) {
		return uc.repo.Memory().ListCandidates(ctx, filter)
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list cleanup candidates")
	}

	now := uc.now()
	var expired []model.MemoryID
	for _, item := range candidates {
		if model.IsExpired(item, now) && uc.table.Policy(item.Category).AutoDelete {
			expired = append(expired, item.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	deleted, err := retryRemote(ctx, uc, func(ctx context.Context) (int, error) {
		return uc.repo.Memory().Delete(ctx, expired)
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete expired memories")
	}
	return deleted, nil
}
