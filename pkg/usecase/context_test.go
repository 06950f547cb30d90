package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/secmon-lab/mnemos/pkg/repository/memory"
	"github.com/secmon-lab/mnemos/pkg/service/consent"
	"github.com/secmon-lab/mnemos/pkg/service/contextcache"
	"github.com/secmon-lab/mnemos/pkg/service/pii"
	"github.com/secmon-lab/mnemos/pkg/usecase"
)

func (e *testEnv) seed(t *testing.T, items ...*model.MemoryItem) {
	t.Helper()
	for _, item := range items {
		if item.ExpiresAt.IsZero() {
			item.ExpiresAt = item.CreatedAt.Add(30 * 24 * time.Hour)
		}
	}
	_, err := e.repo.Memory().Put(context.Background(), items)
	gt.NoError(t, err).Required()
}

func sessionItem(sessionID, content string, createdAt time.Time) *model.MemoryItem {
	return &model.MemoryItem{
		Content:   content,
		Category:  types.CategoryContext,
		Scope:     types.ScopeSession,
		SessionID: sessionID,
		CreatedAt: createdAt,
	}
}

func TestGetConversationContext(t *testing.T) {
	ctx := context.Background()

	t.Run("requires conversation and session IDs", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.uc.GetConversationContext(ctx, "", "s1", "")
		gt.Bool(t, errors.Is(err, model.ErrInvalidInput)).True()

		_, err = env.uc.GetConversationContext(ctx, "c1", "", "")
		gt.Bool(t, errors.Is(err, model.ErrInvalidInput)).True()
	})

	t.Run("empty session yields greeting stage", func(t *testing.T) {
		env := newTestEnv(t)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Array(t, mctx.RelevantMemories).Length(0)
		gt.Value(t, mctx.ConversationStage).Equal(types.StageGreeting)
	})

	t.Run("merges session and user memories newest first", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t,
			sessionItem("s1", "older session note", env.now.Add(-2*time.Hour)),
			sessionItem("s1", "newer session note", env.now.Add(-time.Hour)),
			&model.MemoryItem{
				Content:   "long lived user note",
				Category:  types.CategoryContext,
				Scope:     types.ScopeUser,
				SessionID: "other",
				UserID:    "u1",
				CreatedAt: env.now.Add(-30 * time.Minute),
			},
		)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "u1")
		gt.NoError(t, err).Required()
		gt.Array(t, mctx.RelevantMemories).Length(3)
		gt.Value(t, mctx.RelevantMemories[0].Content).Equal("long lived user note")
		gt.Value(t, mctx.RelevantMemories[2].Content).Equal("older session note")
	})

	t.Run("derives user from session items when not given", func(t *testing.T) {
		env := newTestEnv(t)
		withUser := sessionItem("s1", "session note", env.now.Add(-time.Hour))
		withUser.UserID = "u9"
		env.seed(t,
			withUser,
			&model.MemoryItem{
				Content:   "user preference note",
				Category:  types.CategoryContext,
				Scope:     types.ScopeUser,
				SessionID: "other",
				UserID:    "u9",
				CreatedAt: env.now.Add(-time.Minute),
			},
		)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Array(t, mctx.RelevantMemories).Length(2)
	})

	t.Run("extracts entities and file paths", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t,
			sessionItem("s1", "the Billing Service crashed again", env.now.Add(-time.Hour)),
			sessionItem("s1", "check pkg/server/router.go for the fix", env.now.Add(-30*time.Minute)),
		)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Array(t, mctx.EntityMentions).Has("Billing Service")
		gt.Array(t, mctx.EntityMentions).Has("pkg/server/router.go")
	})

	t.Run("topic continuity needs two occurrences", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t,
			sessionItem("s1", "the migration is stuck", env.now.Add(-3*time.Hour)),
			sessionItem("s1", "retried the migration, still stuck", env.now.Add(-2*time.Hour)),
			sessionItem("s1", "unrelated chatter", env.now.Add(-time.Hour)),
		)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Array(t, mctx.TopicContinuity).Has("migration")
		gt.Array(t, mctx.TopicContinuity).Has("stuck")

		for _, topic := range mctx.TopicContinuity {
			gt.Bool(t, topic != "unrelated" && topic != "chatter").True()
		}
	})

	t.Run("folds preferences newest value per key", func(t *testing.T) {
		env := newTestEnv(t)
		older := sessionItem("s1", "theme: light", env.now.Add(-2*time.Hour))
		older.Category = types.CategoryPreference
		newer := sessionItem("s1", "theme: dark", env.now.Add(-time.Hour))
		newer.Category = types.CategoryPreference
		env.seed(t, older, newer)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()

		pref, ok := mctx.UserPreferences["theme"]
		gt.Bool(t, ok).True()
		gt.Value(t, pref.Value).Equal("dark")
		gt.Value(t, pref.SchemaVersion).Equal(model.PreferenceSchemaVersion)
	})

	t.Run("parses prefers phrasing", func(t *testing.T) {
		env := newTestEnv(t)
		item := sessionItem("s1", "user prefers markdown for all replies", env.now.Add(-time.Hour))
		item.Category = types.CategoryPreference
		env.seed(t, item)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()

		_, ok := mctx.UserPreferences["markdown"]
		gt.Bool(t, ok).True()
	})

	t.Run("classifies clarification on repeated question", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t,
			sessionItem("s1", "the deploy failed with exit code 1", env.now.Add(-2*time.Hour)),
			sessionItem("s1", "why did the deploy fail again?", env.now.Add(-time.Hour)),
		)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Value(t, mctx.ConversationStage).Equal(types.StageClarification)
	})

	t.Run("classifies resolution on acknowledgment", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t,
			sessionItem("s1", "try restarting the worker pool", env.now.Add(-2*time.Hour)),
			sessionItem("s1", "thanks, that worked", env.now.Add(-time.Hour)),
		)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Value(t, mctx.ConversationStage).Equal(types.StageResolution)
	})

	t.Run("classifies inquiry otherwise", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t,
			sessionItem("s1", "looking into the alert volume", env.now.Add(-2*time.Hour)),
			sessionItem("s1", "the spike started at noon", env.now.Add(-time.Hour)),
		)

		mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Value(t, mctx.ConversationStage).Equal(types.StageInquiry)
	})
}

func TestContextCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("second read is served from cache", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sessionItem("s1", "first note", env.now.Add(-time.Hour)))

		first, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()

		// Write behind the usecase's back: a cached read must not see it
		env.seed(t, sessionItem("s1", "sneaky note", env.now.Add(-time.Minute)))

		second, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		// The very same object comes back, not a recomputed one
		gt.Bool(t, first == second).True()
		gt.Array(t, second.RelevantMemories).Length(len(first.RelevantMemories))
	})

	t.Run("Add invalidates the session's cached contexts", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, sessionItem("s1", "first note", env.now.Add(-time.Hour)))

		first, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Array(t, first.RelevantMemories).Length(1)

		_, err = env.uc.Add(ctx, usecase.AddInput{
			Turns:          []model.Turn{{Role: "user", Content: "second note"}},
			SessionID:      "s1",
			ConversationID: "c1",
			Category:       types.CategoryContext,
		})
		gt.NoError(t, err).Required()

		refreshed, err := env.uc.GetConversationContext(ctx, "c1", "s1", "")
		gt.NoError(t, err).Required()
		gt.Array(t, refreshed.RelevantMemories).Length(2)
	})
}

func TestContextConsentSafetyNet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.grantConsent(t, "u1")

	_, err := env.uc.Add(ctx, usecase.AddInput{
		Turns:     []model.Turn{{Role: "user", Content: "allergic to peanuts"}},
		SessionID: "s1",
		UserID:    "u1",
		Category:  types.CategoryFact,
	})
	gt.NoError(t, err).Required()
	env.seed(t, sessionItem("s1", "plain session note", env.now.Add(-time.Hour)))

	mctx, err := env.uc.GetConversationContext(ctx, "c1", "s1", "u1")
	gt.NoError(t, err).Required()
	gt.Array(t, mctx.RelevantMemories).Length(2)

	// Once consent is withdrawn the gated item must never be served again
	gt.NoError(t, env.ledger.Revoke(ctx, "u1")).Required()
	env.cache.Invalidate(contextcache.Key{ConversationID: "c1", SessionID: "s1"})

	mctx, err = env.uc.GetConversationContext(ctx, "c1", "s1", "u1")
	gt.NoError(t, err).Required()
	gt.Array(t, mctx.RelevantMemories).Length(1)
	gt.Value(t, mctx.RelevantMemories[0].Content).Equal("plain session note")
}

// flakyMemory times out for the first few list calls, then serves from the
// wrapped backend
type flakyMemory struct {
	interfaces.MemoryRepository
	failures int
	calls    int
}

func (m *flakyMemory) ListBySession(ctx context.Context, sessionID string, now time.Time) ([]*model.MemoryItem, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, model.ErrBackendTimeout
	}
	return m.MemoryRepository.ListBySession(ctx, sessionID, now)
}

type flakyRepo struct {
	interfaces.Repository
	mem *flakyMemory
}

func (r *flakyRepo) Memory() interfaces.MemoryRepository { return r.mem }

func TestContextRetriesTransientTimeout(t *testing.T) {
	ctx := context.Background()

	inner := memory.New()
	repo := &flakyRepo{
		Repository: inner,
		mem:        &flakyMemory{MemoryRepository: inner.Memory(), failures: 1},
	}
	table := model.DefaultRetentionTable()
	ledger, err := consent.New(repo.Consent(), table, "1.0.0")
	gt.NoError(t, err).Required()

	_, err = inner.Memory().Put(ctx, []*model.MemoryItem{{
		Content:   "note that survives a hiccup",
		Category:  types.CategoryContext,
		Scope:     types.ScopeSession,
		SessionID: "s1",
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(29 * 24 * time.Hour),
	}})
	gt.NoError(t, err).Required()

	uc := usecase.New(repo, pii.New(), ledger, table, contextcache.New(time.Minute, 16),
		usecase.WithRetryBaseInterval(time.Millisecond),
	)

	// A single transient timeout is retried away, not degraded to empty
	mctx, err := uc.GetConversationContext(ctx, "c1", "s1", "")
	gt.NoError(t, err).Required()
	gt.Array(t, mctx.RelevantMemories).Length(1)
	gt.Value(t, repo.mem.calls).Equal(2)
}

func TestContextFailOpen(t *testing.T) {
	ctx := context.Background()

	repo := &timeoutRepo{Repository: memory.New(), mem: &timeoutMemory{}}
	table := model.DefaultRetentionTable()
	ledger, err := consent.New(repo.Consent(), table, "1.0.0")
	gt.NoError(t, err).Required()

	uc := usecase.New(repo, pii.New(), ledger, table, contextcache.New(time.Minute, 16),
		usecase.WithContextDeadline(300*time.Millisecond),
		usecase.WithRetryBaseInterval(time.Millisecond),
	)

	start := time.Now()
	mctx, err := uc.GetConversationContext(ctx, "c1", "s1", "u1")
	elapsed := time.Since(start)

	// Backend is down: no error, an empty greeting context, within the deadline
	gt.NoError(t, err).Required()
	gt.Array(t, mctx.RelevantMemories).Length(0)
	gt.Value(t, mctx.ConversationStage).Equal(types.StageGreeting)
	gt.Value(t, mctx.ConversationID).Equal("c1")
	gt.Bool(t, elapsed < time.Second).True()
}
