package corpus

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mentorstack/coach-go-sdk/chunk"
	"github.com/mentorstack/coach-go-sdk/embedder/mock"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	idx, err := New(store, mock.New(), chunk.New(chunk.DefaultConfig), DefaultConfig)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	return idx
}

// writeMaterials lays out a materials root with one book per entry.
func writeMaterials(t *testing.T, docs map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "books"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, text := range docs {
		if err := os.WriteFile(filepath.Join(root, "books", name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestSearchReturnsOnlyIndexedSources(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	docs := []Document{
		{Path: "books/seasons.txt", Category: CategoryBook, Text: "Seasons change and so must we."},
		{Path: "books/goals.txt", Category: CategoryBook, Text: "Goals give direction to effort."},
	}
	if err := idx.Index(ctx, docs); err != nil {
		t.Fatalf("index: %v", err)
	}

	query, _ := mock.New().Embed(ctx, "goals effort direction seasons")
	results, err := idx.Search(ctx, query, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	indexed := map[string]bool{"books/seasons.txt": true, "books/goals.txt": true}
	for _, r := range results {
		if !indexed[r.SourceDocument] {
			t.Errorf("result from unindexed source %q", r.SourceDocument)
		}
	}
}

func TestRebuildRemovesDeletedDocuments(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	root := writeMaterials(t, map[string]string{
		"keep.txt":   "Persistence wears down resistance.",
		"remove.txt": "This document will be deleted before the rebuild.",
	})
	if err := idx.RebuildAll(ctx, root); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if n := len(idx.Sources()); n != 2 {
		t.Fatalf("sources after first rebuild = %d, want 2", n)
	}

	if err := os.Remove(filepath.Join(root, "books", "remove.txt")); err != nil {
		t.Fatal(err)
	}
	if err := idx.RebuildAll(ctx, root); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	query, _ := mock.New().Embed(ctx, "document deleted rebuild persistence resistance")
	results, err := idx.Search(ctx, query, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.SourceDocument == "books/remove.txt" {
			t.Errorf("removed document still searchable")
		}
	}
}

func TestSearchFindsRelevantPassage(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	err := idx.Index(ctx, []Document{{
		Path:     "books/quotes.txt",
		Category: CategoryBook,
		Text:     "Discipline is the bridge between goals and accomplishment.",
	}})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	query, _ := mock.New().Embed(ctx, "discipline")
	results, err := idx.Search(ctx, query, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Text != "Discipline is the bridge between goals and accomplishment." {
		t.Errorf("unexpected passage: %q", results[0].Text)
	}
}

func TestReindexingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	doc := Document{Path: "books/a.txt", Category: CategoryBook, Text: "The same text, indexed twice, yields the same passages."}
	for i := 0; i < 2; i++ {
		if err := idx.Index(ctx, []Document{doc}); err != nil {
			t.Fatalf("index pass %d: %v", i, err)
		}
	}

	if n := idx.PassageCount(); n != 1 {
		t.Errorf("PassageCount() = %d after re-index, want 1", n)
	}
	query, _ := mock.New().Embed(ctx, "same text indexed twice")
	results, err := idx.Search(ctx, query, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results after re-index, want 1", len(results))
	}
	if results[0].Text != doc.Text {
		t.Errorf("passage text changed on re-index: %q", results[0].Text)
	}
}

func TestIndexSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "corpus.db")

	open := func() (*Index, func()) {
		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		store, err := NewStore(db)
		if err != nil {
			t.Fatalf("create store: %v", err)
		}
		idx, err := New(store, mock.New(), chunk.New(chunk.DefaultConfig), DefaultConfig)
		if err != nil {
			t.Fatalf("create index: %v", err)
		}
		return idx, func() { db.Close() }
	}

	idx, closeDB := open()
	err := idx.Index(ctx, []Document{{
		Path: "books/a.txt", Category: CategoryBook,
		Text: "Durable passages outlive the process.",
	}})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	closeDB()

	idx, closeDB = open()
	defer closeDB()
	if n := idx.PassageCount(); n != 1 {
		t.Fatalf("restored PassageCount() = %d, want 1", n)
	}
	query, _ := mock.New().Embed(ctx, "durable passages process")
	results, err := idx.Search(ctx, query, 1)
	if err != nil {
		t.Fatalf("search after restart: %v", err)
	}
	if len(results) != 1 || results[0].SourceDocument != "books/a.txt" {
		t.Errorf("restored index not searchable: %+v", results)
	}
}

func TestPublishLeavesSingleCollection(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	doc := Document{Path: "books/a.txt", Category: CategoryBook, Text: "One collection per live generation."}
	for i := 0; i < 5; i++ {
		if err := idx.Index(ctx, []Document{doc}); err != nil {
			t.Fatalf("index pass %d: %v", i, err)
		}
	}

	collections := idx.db.ListCollections()
	if len(collections) != 1 {
		names := make([]string, 0, len(collections))
		for name := range collections {
			names = append(names, name)
		}
		t.Fatalf("superseded collections accumulated: %v", names)
	}
	if _, ok := collections[idx.snap.Load().name]; !ok {
		t.Error("surviving collection is not the live snapshot's")
	}
}

func TestConcurrentRebuildAndSearchIsAtomic(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	rootA := writeMaterials(t, map[string]string{
		"alpha-one.txt": "Alpha corpus first document about momentum.",
		"alpha-two.txt": "Alpha corpus second document about momentum.",
	})
	rootB := writeMaterials(t, map[string]string{
		"beta-one.txt": "Beta corpus first document about momentum.",
		"beta-two.txt": "Beta corpus second document about momentum.",
	})
	if err := idx.RebuildAll(ctx, rootA); err != nil {
		t.Fatalf("seed rebuild: %v", err)
	}

	isAlpha := func(src string) bool {
		return src == "books/alpha-one.txt" || src == "books/alpha-two.txt"
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		roots := []string{rootB, rootA}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if err := idx.RebuildAll(ctx, roots[i%2]); err != nil {
				t.Errorf("rebuild: %v", err)
				return
			}
		}
	}()

	query, _ := mock.New().Embed(ctx, "corpus document momentum")
	for i := 0; i < 200; i++ {
		results, err := idx.Search(ctx, query, 5)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) == 0 {
			continue
		}
		want := isAlpha(results[0].SourceDocument)
		for _, r := range results {
			if isAlpha(r.SourceDocument) != want {
				t.Fatalf("search mixed corpus generations: %v", sourcesOf(results))
			}
		}
	}
	close(stop)
	wg.Wait()
}

func sourcesOf(results []Result) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.SourceDocument)
	}
	return out
}
