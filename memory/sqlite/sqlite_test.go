package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mentorstack/coach-go-sdk/core"
	"github.com/mentorstack/coach-go-sdk/embedder"
	"github.com/mentorstack/coach-go-sdk/embedder/mock"
)

// flaky embeds through mock but fails while Fail is set.
type flaky struct {
	*mock.Embedder
	Fail bool
}

func (f *flaky) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.Fail {
		return nil, errors.New("embedding service down")
	}
	return f.Embedder.Embed(ctx, text)
}

func newTestStore(t *testing.T, emb embedder.Embedder) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := New(db, emb)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func TestSearchNeverCrossesUserPartition(t *testing.T) {
	ctx := context.Background()
	emb := mock.New()
	store := newTestStore(t, emb)

	// User B has far more records than A.
	for i := 0; i < 20; i++ {
		if _, err := store.Append(ctx, "user-b", core.RoleUser, "discipline and daily habits"); err != nil {
			t.Fatalf("append for b: %v", err)
		}
	}
	if _, err := store.Append(ctx, "user-a", core.RoleUser, "my morning routine"); err != nil {
		t.Fatalf("append for a: %v", err)
	}

	query, _ := emb.Embed(ctx, "discipline and daily habits")
	results, err := store.Search(ctx, "user-a", query, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.UserID != "user-a" {
			t.Fatalf("search returned record for %q", r.UserID)
		}
	}
	if len(results) != 1 {
		t.Errorf("got %d results for user-a, want 1", len(results))
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	emb := mock.New()
	store := newTestStore(t, emb)

	texts := []string{
		"I want to build better discipline this year",
		"what should I cook for dinner tonight",
		"my discipline slipped again this week",
	}
	for _, text := range texts {
		if _, err := store.Append(ctx, "u1", core.RoleUser, text); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	query, _ := emb.Embed(ctx, "discipline")
	results, err := store.Search(ctx, "u1", query, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Text == "what should I cook for dinner tonight" {
			t.Errorf("unrelated record outranked both discipline records")
		}
	}
	if results[0].Similarity < results[1].Similarity {
		t.Errorf("results not ordered by similarity: %v < %v", results[0].Similarity, results[1].Similarity)
	}
}

func TestAppendSurvivesEmbedderOutage(t *testing.T) {
	ctx := context.Background()
	emb := &flaky{Embedder: mock.New(), Fail: true}
	store := newTestStore(t, emb)

	id, err := store.Append(ctx, "u1", core.RoleUser, "remember this even when embeddings fail")
	if err != nil {
		t.Fatalf("append during outage: %v", err)
	}

	records, err := store.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("all for user: %v", err)
	}
	if len(records) != 1 || records[0].ID != id {
		t.Fatalf("turn lost during outage: %+v", records)
	}
	if records[0].Embedding != nil {
		t.Errorf("expected null embedding placeholder, got %d dims", len(records[0].Embedding))
	}

	// Pending records are invisible to search.
	query, _ := mock.New().Embed(ctx, "remember this")
	results, err := store.Search(ctx, "u1", query, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("pending record appeared in search results")
	}

	// Recovery fills the embedding in place without duplicating.
	emb.Fail = false
	filled, err := store.ReembedPending(ctx)
	if err != nil {
		t.Fatalf("reembed: %v", err)
	}
	if filled != 1 {
		t.Errorf("filled = %d, want 1", filled)
	}

	records, err = store.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("all for user after reembed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("record duplicated by reembed: %d records", len(records))
	}
	if records[0].ID != id || records[0].Embedding == nil {
		t.Errorf("embedding not filled in place: %+v", records[0])
	}

	results, err = store.Search(ctx, "u1", query, 5)
	if err != nil {
		t.Fatalf("search after reembed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("re-embedded record still invisible to search")
	}
}

// renamed reports a different model id over the same mock vectors.
type renamed struct {
	*mock.Embedder
	id string
}

func (r *renamed) ModelID() string { return r.id }

func TestReembedPendingRecoversAfterModelChange(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	oldStore, err := New(db, &renamed{Embedder: mock.New(), id: "model-a"})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := oldStore.Append(ctx, "u1", core.RoleUser, "my discipline routine"); err != nil {
		t.Fatalf("append under old model: %v", err)
	}

	// Same database reopened under a new embedding model.
	newEmb := &renamed{Embedder: mock.New(), id: "model-b"}
	newStore, err := New(db, newEmb)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}

	query, _ := newEmb.Embed(ctx, "discipline routine")
	results, err := newStore.Search(ctx, "u1", query, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("old-model record searchable before re-embed")
	}

	filled, err := newStore.ReembedPending(ctx)
	if err != nil {
		t.Fatalf("reembed: %v", err)
	}
	if filled != 1 {
		t.Errorf("filled = %d, want 1", filled)
	}

	records, err := newStore.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("record duplicated by model migration: %d records", len(records))
	}

	results, err = newStore.Search(ctx, "u1", query, 5)
	if err != nil {
		t.Fatalf("search after reembed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("record still unsearchable after model migration")
	}
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t, mock.New())
	if _, err := store.Append(context.Background(), "", core.RoleUser, "text"); err == nil {
		t.Error("empty user id accepted")
	}
	if _, err := store.Append(context.Background(), "u1", core.Role("system"), "text"); err == nil {
		t.Error("invalid role accepted")
	}
}

func TestAllForUserChronological(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, mock.New())

	if _, err := store.Append(ctx, "u1", core.RoleUser, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(ctx, "u1", core.RoleAssistant, "second"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(ctx, "u2", core.RoleUser, "other user"); err != nil {
		t.Fatal(err)
	}

	records, err := store.AllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("all for user: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Text != "first" || records[1].Text != "second" {
		t.Errorf("records out of order: %q, %q", records[0].Text, records[1].Text)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}
