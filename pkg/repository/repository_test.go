package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemos/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemos/pkg/domain/model"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
	"github.com/secmon-lab/mnemos/pkg/repository/firestore"
	"github.com/secmon-lab/mnemos/pkg/repository/memory"
)

func newItem(sessionID string, scope types.Scope, content string, createdAt time.Time) *model.MemoryItem {
	return &model.MemoryItem{
		Content:   content,
		Category:  types.CategoryContext,
		Scope:     scope,
		SessionID: sessionID,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(30 * 24 * time.Hour),
	}
}

func runMemoryRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Put assigns IDs and returns them in input order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		items := []*model.MemoryItem{
			newItem("s1", types.ScopeSession, "first message", now),
			newItem("s1", types.ScopeSession, "second message", now.Add(time.Second)),
		}

		ids, err := repo.Memory().Put(ctx, items)
		gt.NoError(t, err).Required()
		gt.Array(t, ids).Length(2)
		gt.Value(t, ids[0]).NotEqual(ids[1])
	})

	t.Run("ListBySession returns session items newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		older := newItem("s2", types.ScopeSession, "older", now)
		newer := newItem("s2", types.ScopeSession, "newer", now.Add(time.Minute))
		other := newItem("s3", types.ScopeSession, "other session", now)
		userScoped := newItem("s2", types.ScopeUser, "user scoped", now)
		userScoped.UserID = "u1"

		_, err := repo.Memory().Put(ctx, []*model.MemoryItem{older, newer, other, userScoped})
		gt.NoError(t, err).Required()

		items, err := repo.Memory().ListBySession(ctx, "s2", now.Add(2*time.Minute))
		gt.NoError(t, err).Required()
		gt.Array(t, items).Length(2)
		gt.Value(t, items[0].Content).Equal("newer")
		gt.Value(t, items[1].Content).Equal("older")
	})

	t.Run("ListBySession hides expired items", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		expired := newItem("s4", types.ScopeSession, "stale", now)
		expired.ExpiresAt = now.Add(time.Minute)
		fresh := newItem("s4", types.ScopeSession, "fresh", now)

		_, err := repo.Memory().Put(ctx, []*model.MemoryItem{expired, fresh})
		gt.NoError(t, err).Required()

		items, err := repo.Memory().ListBySession(ctx, "s4", now.Add(2*time.Minute))
		gt.NoError(t, err).Required()
		gt.Array(t, items).Length(1)
		gt.Value(t, items[0].Content).Equal("fresh")
	})

	t.Run("ListByUser returns user items up to limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		var items []*model.MemoryItem
		for i := 0; i < 5; i++ {
			item := newItem("s5", types.ScopeUser, fmt.Sprintf("note %d", i), now.Add(time.Duration(i)*time.Second))
			item.UserID = "u2"
			items = append(items, item)
		}
		_, err := repo.Memory().Put(ctx, items)
		gt.NoError(t, err).Required()

		got, err := repo.Memory().ListByUser(ctx, "u2", now.Add(time.Minute), 3)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(3)
		gt.Value(t, got[0].Content).Equal("note 4")
	})

	t.Run("Search ranks by keyword relevance", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		match := newItem("s6", types.ScopeSession, "deploy pipeline failed on staging", now)
		partial := newItem("s6", types.ScopeSession, "the pipeline looks healthy", now.Add(time.Second))
		unrelated := newItem("s6", types.ScopeSession, "lunch plans tomorrow", now)

		_, err := repo.Memory().Put(ctx, []*model.MemoryItem{match, partial, unrelated})
		gt.NoError(t, err).Required()

		scored, err := repo.Memory().Search(ctx, "deploy pipeline staging",
			interfaces.MemoryFilter{SessionID: "s6"}, now.Add(time.Minute), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(2)
		gt.Value(t, scored[0].Item.Content).Equal(match.Content)
		gt.Bool(t, scored[0].Score > scored[1].Score).True()
	})

	t.Run("Search respects category filter", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		fact := newItem("s7", types.ScopeSession, "project deadline is friday", now)
		fact.Category = types.CategoryFact
		ctxItem := newItem("s7", types.ScopeSession, "project kickoff went well", now)

		_, err := repo.Memory().Put(ctx, []*model.MemoryItem{fact, ctxItem})
		gt.NoError(t, err).Required()

		scored, err := repo.Memory().Search(ctx, "project",
			interfaces.MemoryFilter{SessionID: "s7", Category: string(types.CategoryFact)},
			now.Add(time.Minute), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(1)
		gt.Value(t, scored[0].Item.Category).Equal(types.CategoryFact)
	})

	t.Run("ListCandidates includes expired items", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		expired := newItem("s8", types.ScopeSession, "stale", now)
		expired.ExpiresAt = now.Add(time.Minute)
		fresh := newItem("s8", types.ScopeSession, "fresh", now)

		_, err := repo.Memory().Put(ctx, []*model.MemoryItem{expired, fresh})
		gt.NoError(t, err).Required()

		items, err := repo.Memory().ListCandidates(ctx, interfaces.MemoryFilter{SessionID: "s8"})
		gt.NoError(t, err).Required()
		gt.Array(t, items).Length(2)
	})

	t.Run("Delete counts only existing items", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		ids, err := repo.Memory().Put(ctx, []*model.MemoryItem{
			newItem("s9", types.ScopeSession, "to delete", now),
		})
		gt.NoError(t, err).Required()

		deleted, err := repo.Memory().Delete(ctx, []model.MemoryID{ids[0], model.NewMemoryID()})
		gt.NoError(t, err).Required()
		gt.Value(t, deleted).Equal(1)

		// Second delete of the same id is a no-op
		deleted, err = repo.Memory().Delete(ctx, []model.MemoryID{ids[0]})
		gt.NoError(t, err).Required()
		gt.Value(t, deleted).Equal(0)
	})
}

func runConsentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Get returns ErrNotFound for unknown user", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Consent().Get(ctx, "nobody")
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
	})

	t.Run("Put then Get roundtrips, last write wins", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first := &model.ConsentRecord{
			UserID:         "u1",
			ConsentGiven:   true,
			ConsentDate:    time.Now().UTC().Truncate(time.Millisecond),
			ConsentVersion: "1.0.0",
			DataProcessing: true,
		}
		gt.NoError(t, repo.Consent().Put(ctx, first)).Required()

		second := first.Clone()
		second.ConsentGiven = false
		second.DataProcessing = false
		gt.NoError(t, repo.Consent().Put(ctx, second)).Required()

		got, err := repo.Consent().Get(ctx, "u1")
		gt.NoError(t, err).Required()
		gt.Value(t, got.ConsentGiven).Equal(false)
		gt.Value(t, got.ConsentVersion).Equal("1.0.0")
	})
}

func TestMemoryRepository_Memory(t *testing.T) {
	runMemoryRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_Firestore(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	runMemoryRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := firestore.New(context.Background(), projectID, databaseID,
			firestore.WithCollectionPrefix(fmt.Sprintf("test_%d_", time.Now().UnixNano())))
		gt.NoError(t, err).Required()
		t.Cleanup(func() {
			_ = repo.Close()
		})
		return repo
	})
}

func TestConsentRepository_Memory(t *testing.T) {
	runConsentRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestConsentRepository_Firestore(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	runConsentRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := firestore.New(context.Background(), projectID, databaseID,
			firestore.WithCollectionPrefix(fmt.Sprintf("test_%d_", time.Now().UnixNano())))
		gt.NoError(t, err).Required()
		t.Cleanup(func() {
			_ = repo.Close()
		})
		return repo
	})
}
