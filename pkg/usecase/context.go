package usecase

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/secmon-lab/mnemos/pkg/service/contextcache"
	"github.com/secmon-lab/mnemos/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// GetConversationContext returns the merged memory view for a conversation
// turn. Reads go through the context cache; on a miss the context is built
// from the backend under an overall deadline. Backend failure or deadline
// expiry yields an empty context instead of an error so the chat pipeline
// keeps working without memory.
func (uc *UseCases) GetConversationContext(ctx context.Context, conversationID, sessionID, userID string) (*model.ConversationMemoryContext, error) {
	if conversationID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "conversation ID is required")
	}
	if sessionID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "session ID is required")
	}

	key := contextcache.Key{ConversationID: conversationID, SessionID: sessionID}
	if cached, ok := uc.cache.Get(key); ok {
		return cached, nil
	}

	buildCtx, cancel := context.WithTimeout(ctx, uc.contextDeadline)
	defer cancel()

	mctx, err := uc.buildContext(buildCtx, conversationID, sessionID, userID)
	if err != nil {
		logging.From(ctx).Warn("context build failed, serving empty context",
			"error", err,
			"conversation_id", conversationID,
			"session_id", sessionID,
		)
		// Failures are not cached so the next read retries the backend
		return model.NewEmptyContext(conversationID, sessionID), nil
	}

	uc.cache.Set(key, mctx)
	return mctx, nil
}

func (uc *UseCases) buildContext(ctx context.Context, conversationID, sessionID, userID string) (*model.ConversationMemoryContext, error) {
	now := uc.now()

	var sessionItems, userItems []*model.MemoryItem

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		items, err := retryRemote(egCtx, uc, func(ctx context.Context) ([]*model.MemoryItem, error) {
			return uc.repo.Memory().ListBySession(ctx, sessionID, now)
		})
		if err != nil {
			return goerr.Wrap(err, "failed to list session memories", goerr.V(model.SessionIDKey, sessionID))
		}
		sessionItems = items
		return nil
	})
	if userID != "" {
		eg.Go(func() error {
			items, err := retryRemote(egCtx, uc, func(ctx context.Context) ([]*model.MemoryItem, error) {
				return uc.repo.Memory().ListByUser(ctx, userID, now, uc.userItemLimit)
			})
			if err != nil {
				return goerr.Wrap(err, "failed to list user memories", goerr.V(model.UserIDKey, userID))
			}
			userItems = items
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// When the caller does not know the user, derive it from the session's
	// own items so long-lived preferences still surface.
	if userID == "" {
		for _, item := range sessionItems {
			if item.UserID != "" {
				userID = item.UserID
				break
			}
		}
		if userID != "" {
			items, err := retryRemote(ctx, uc, func(ctx context.Context) ([]*model.MemoryItem, error) {
				return uc.repo.Memory().ListByUser(ctx, userID, now, uc.userItemLimit)
			})
			if err != nil {
				return nil, goerr.Wrap(err, "failed to list user memories", goerr.V(model.UserIDKey, userID))
			}
			userItems = items
		}
	}

	// The same consent safety net as Search: gated items whose user has
	// withdrawn or never given consent never reach the served context.
	merged := mergeByRecency(sessionItems, userItems)
	allowed := uc.consentChecker()
	memories := make([]*model.MemoryItem, 0, len(merged))
	for _, item := range merged {
		ok, err := allowed(ctx, item)
		if err != nil {
			return nil, goerr.Wrap(err, "consent check failed during context build")
		}
		if !ok {
			continue
		}
		memories = append(memories, item)
	}

	return &model.ConversationMemoryContext{
		ConversationID:    conversationID,
		SessionID:         sessionID,
		RelevantMemories:  memories,
		EntityMentions:    extractEntities(memories),
		TopicContinuity:   uc.extractTopics(memories),
		UserPreferences:   foldPreferences(memories),
		ConversationStage: classifyStage(memories),
	}, nil
}

// mergeByRecency unions the two item lists, dropping duplicate IDs, newest
// first
func mergeByRecency(sessionItems, userItems []*model.MemoryItem) []*model.MemoryItem {
	seen := make(map[model.MemoryID]bool)
	merged := make([]*model.MemoryItem, 0, len(sessionItems)+len(userItems))
	for _, item := range append(append([]*model.MemoryItem{}, sessionItems...), userItems...) {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		merged = append(merged, item)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

var (
	// Capitalized multi-word sequences, e.g. "Billing Service"
	entityNamePattern = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]+(?: [A-Z][a-zA-Z0-9]+)+\b`)
	// File path tokens, e.g. "pkg/server/router.go" or "./config.toml"
	entityPathPattern = regexp.MustCompile(`(?:\.{1,2}/)?(?:[\w.-]+/)+[\w.-]+\.[A-Za-z0-9]+`)
)

// extractEntities pulls named entities and file paths mentioned across the
// memories, first mention order, deduplicated
func extractEntities(memories []*model.MemoryItem) []string {
	seen := make(map[string]bool)
	entities := []string{}
	add := func(candidates []string) {
		for _, c := range candidates {
			if !seen[c] {
				seen[c] = true
				entities = append(entities, c)
			}
		}
	}
	for _, m := range memories {
		add(entityNamePattern.FindAllString(m.Content, -1))
		add(entityPathPattern.FindAllString(m.Content, -1))
	}
	return entities
}

// extractTopics finds keywords recurring across the recent window of
// memories. A keyword counts once per memory; topics need at least two
// memories. Ordered by frequency, most recent occurrence breaking ties.
func (uc *UseCases) extractTopics(memories []*model.MemoryItem) []string {
	window := memories
	if len(window) > uc.topicWindow {
		window = window[:uc.topicWindow]
	}

	type topicStat struct {
		count  int
		newest int // lowest index = most recent occurrence
	}
	stats := make(map[string]*topicStat)
	for idx, m := range window {
		for w := range model.Keywords(m.Content) {
			s, ok := stats[w]
			if !ok {
				s = &topicStat{newest: idx}
				stats[w] = s
			}
			s.count++
		}
	}

	topics := []string{}
	for w, s := range stats {
		if s.count >= 2 {
			topics = append(topics, w)
		}
	}
	sort.Slice(topics, func(i, j int) bool {
		si, sj := stats[topics[i]], stats[topics[j]]
		if si.count != sj.count {
			return si.count > sj.count
		}
		if si.newest != sj.newest {
			return si.newest < sj.newest
		}
		return topics[i] < topics[j]
	})
	return topics
}

var prefersPattern = regexp.MustCompile(`(?i)\bprefers?\s+(\S+)`)

// foldPreferences reduces preference-category memories into a typed
// preference map. Memories arrive newest first, so the first value seen per
// key wins.
func foldPreferences(memories []*model.MemoryItem) map[string]model.Preference {
	prefs := map[string]model.Preference{}
	for _, m := range memories {
		if m.Category != types.CategoryPreference {
			continue
		}
		key, value := parsePreference(m.Content)
		if key == "" {
			continue
		}
		if _, exists := prefs[key]; exists {
			continue
		}
		prefs[key] = model.MigratePreference(model.Preference{
			Key:           key,
			Value:         value,
			SchemaVersion: model.PreferenceSchemaVersion,
			UpdatedAt:     m.CreatedAt,
		})
	}
	return prefs
}

func parsePreference(content string) (string, string) {
	if m := prefersPattern.FindStringSubmatch(content); m != nil {
		key := strings.ToLower(strings.Trim(m[1], ".,;:!?\"'"))
		return key, content
	}
	for _, sep := range []string{":", "="} {
		if k, v, ok := strings.Cut(content, sep); ok {
			key := strings.ToLower(strings.TrimSpace(k))
			if key != "" && !strings.Contains(key, " ") {
				return key, strings.TrimSpace(v)
			}
		}
	}
	for w := range model.Keywords(content) {
		return w, content
	}
	return "", ""
}

var acknowledgments = []string{
	"thanks",
	"thank you",
	"got it",
	"that works",
	"that worked",
	"perfect",
	"solved",
	"resolved",
}

func containsAcknowledgment(content string) bool {
	lower := strings.ToLower(content)
	for _, a := range acknowledgments {
		if strings.Contains(lower, a) {
			return true
		}
	}
	return false
}

// classifyStage labels where the conversation stands. Memories are newest
// first.
func classifyStage(memories []*model.MemoryItem) types.Stage {
	if len(memories) <= 1 {
		return types.StageGreeting
	}

	newest := memories[0]
	if strings.Contains(newest.Content, "?") {
		newestWords := model.Keywords(newest.Content)
		for _, earlier := range memories[1:] {
			for w := range model.Keywords(earlier.Content) {
				if newestWords[w] {
					return types.StageClarification
				}
			}
		}
	}

	if containsAcknowledgment(newest.Content) || containsAcknowledgment(memories[1].Content) {
		return types.StageResolution
	}

	return types.StageInquiry
}
