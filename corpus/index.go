package corpus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/mentorstack/coach-go-sdk/chunk"
	"github.com/mentorstack/coach-go-sdk/embedder"
)

// Config holds index tuning.
type Config struct {
	// MinSimilarity filters search results below this cosine similarity
	// [0.0-1.0]. Zero disables the threshold.
	MinSimilarity float32

	// MaxK caps the k accepted by Search.
	MaxK int
}

// DefaultConfig matches the context budget: a handful of passages per turn.
var DefaultConfig = Config{
	MinSimilarity: 0,
	MaxK:          5,
}

// Index is the shared embedding index over corpus passages.
//
// The live state is an immutable snapshot (a chromem collection plus the
// passage set it was built from) behind an atomic pointer. Searches read
// whichever snapshot is published when they start; Index and RebuildAll
// construct a complete replacement snapshot and publish it in one swap.
// A single mutex serializes writers; readers are never blocked.
type Index struct {
	store    *Store
	embedder embedder.Embedder
	chunker  *chunk.Chunker
	cfg      Config

	db   *chromem.DB
	snap atomic.Pointer[snapshot]

	mu  sync.Mutex // serializes Index/RebuildAll
	gen uint64     // collection generation, guarded by mu
}

// snapshot is one published index generation. Immutable after publish.
type snapshot struct {
	name       string
	collection *chromem.Collection
	bySource   map[string][]Passage
	byID       map[string]Passage
	count      int
}

// New creates an Index backed by store for durability, restoring any
// previously persisted passage set embedded under emb's model.
func New(store *Store, emb embedder.Embedder, chunker *chunk.Chunker, cfg Config) (*Index, error) {
	if cfg.MaxK <= 0 {
		cfg.MaxK = DefaultConfig.MaxK
	}
	idx := &Index{
		store:    store,
		embedder: emb,
		chunker:  chunker,
		cfg:      cfg,
		db:       chromem.NewDB(),
	}

	persisted, err := store.LoadAll(emb.ModelID())
	if err != nil {
		return nil, fmt.Errorf("restore passages: %w", err)
	}
	bySource := make(map[string][]Passage)
	for _, p := range persisted {
		bySource[p.SourceDocument] = append(bySource[p.SourceDocument], p)
	}
	if err := idx.publish(context.Background(), bySource); err != nil {
		return nil, fmt.Errorf("build initial snapshot: %w", err)
	}
	log.Printf("[INDEX] restored %d passages from %d sources", len(persisted), len(bySource))
	return idx, nil
}

// Index chunks and embeds each document, replacing any prior passages for
// the same source path. A document whose embedding fails is logged and
// left at its previously indexed state; other documents still publish.
// Re-indexing an unchanged document yields byte-identical passage text.
func (idx *Index) Index(ctx context.Context, docs []Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := idx.snap.Load()
	merged := cloneBySource(current.bySource)

	var indexed []Passage
	for _, doc := range docs {
		passages, err := idx.embedDocument(ctx, doc)
		if err != nil {
			log.Printf("[INDEX] aborting document %s: %v", doc.Path, err)
			continue
		}
		merged[doc.Path] = passages
		indexed = append(indexed, passages...)
	}
	if len(indexed) == 0 && len(docs) > 0 {
		return fmt.Errorf("index: no document could be embedded")
	}

	if err := idx.store.ReplaceSources(indexed, idx.embedder.ModelID()); err != nil {
		return fmt.Errorf("persist passages: %w", err)
	}
	return idx.publish(ctx, merged)
}

// RebuildAll re-scans the materials root and replaces the entire passage
// set. Unreadable files are skipped by the loader; a document whose
// embedding fails keeps its previously indexed passages. The new snapshot
// is published atomically, so concurrent searches see either the old set
// or the new one, never a mix.
func (idx *Index) RebuildAll(ctx context.Context, materialsRoot string) error {
	docs, err := LoadRoot(materialsRoot)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := idx.snap.Load()
	rebuilt := make(map[string][]Passage)
	var all []Passage
	for _, doc := range docs {
		passages, err := idx.embedDocument(ctx, doc)
		if err != nil {
			if prior, ok := current.bySource[doc.Path]; ok {
				log.Printf("[INDEX] rebuild: keeping prior passages for %s: %v", doc.Path, err)
				rebuilt[doc.Path] = prior
				all = append(all, prior...)
			} else {
				log.Printf("[INDEX] rebuild: skipping %s: %v", doc.Path, err)
			}
			continue
		}
		rebuilt[doc.Path] = passages
		all = append(all, passages...)
	}

	if err := idx.store.ReplaceAll(all, idx.embedder.ModelID()); err != nil {
		return fmt.Errorf("persist rebuilt passages: %w", err)
	}
	if err := idx.publish(ctx, rebuilt); err != nil {
		return err
	}
	log.Printf("[INDEX] rebuild published: %d passages from %d sources", len(all), len(rebuilt))
	return nil
}

// Search returns the top-k passages by cosine similarity, descending.
// Ties break by earliest chunk index, then earliest source path. k is
// clamped to [1, MaxK] and to the snapshot size.
func (idx *Index) Search(ctx context.Context, queryEmbedding []float32, k int) ([]Result, error) {
	snap := idx.snap.Load()
	if snap.count == 0 {
		return nil, nil
	}
	if k < 1 {
		k = 1
	}
	if k > idx.cfg.MaxK {
		k = idx.cfg.MaxK
	}
	if k > snap.count {
		k = snap.count
	}

	raw, err := snap.collection.QueryEmbedding(ctx, queryEmbedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}

	var results []Result
	for _, r := range raw {
		if idx.cfg.MinSimilarity > 0 && r.Similarity < idx.cfg.MinSimilarity {
			continue
		}
		p, ok := snap.byID[r.ID]
		if !ok {
			continue
		}
		results = append(results, Result{Passage: p, Similarity: r.Similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].SourceDocument < results[j].SourceDocument
	})
	return results, nil
}

// Sources lists the source documents in the live snapshot, sorted.
func (idx *Index) Sources() []string {
	snap := idx.snap.Load()
	sources := make([]string, 0, len(snap.bySource))
	for source := range snap.bySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// PassageCount reports the live snapshot size.
func (idx *Index) PassageCount() int {
	return idx.snap.Load().count
}

// embedDocument chunks one document and embeds every chunk. Any embedding
// failure aborts the whole document so its passage set is never partial.
func (idx *Index) embedDocument(ctx context.Context, doc Document) ([]Passage, error) {
	chunks := idx.chunker.Split(doc.Text)
	passages := make([]Passage, 0, len(chunks))
	for i, text := range chunks {
		vec, err := idx.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		passages = append(passages, Passage{
			ID:             uuid.NewString(),
			SourceDocument: doc.Path,
			SourceCategory: doc.Category,
			Text:           text,
			Embedding:      embedder.Normalize(vec),
			ChunkIndex:     i,
		})
	}
	return passages, nil
}

// publish builds a fresh chromem collection for bySource and swaps it in.
// The superseded snapshot's collection is deleted after the swap (by its
// recorded name, so failed generations never strand the live one);
// in-flight searches already hold their snapshot pointer. A collection
// left half-built by a failure is deleted before returning.
func (idx *Index) publish(ctx context.Context, bySource map[string][]Passage) error {
	idx.gen++
	name := "passages_v" + strconv.FormatUint(idx.gen, 10)

	col, err := idx.db.CreateCollection(name, nil, nil)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	byID := make(map[string]Passage)
	count := 0
	for _, passages := range bySource {
		for _, p := range passages {
			byID[p.ID] = p
			doc := chromem.Document{
				ID:        p.ID,
				Content:   p.Text,
				Embedding: p.Embedding,
				Metadata: map[string]string{
					"source":      p.SourceDocument,
					"category":    string(p.SourceCategory),
					"chunk_index": strconv.Itoa(p.ChunkIndex),
				},
			}
			if err := col.AddDocument(ctx, doc); err != nil {
				if derr := idx.db.DeleteCollection(name); derr != nil {
					log.Printf("[INDEX] delete partial collection %s: %v", name, derr)
				}
				return fmt.Errorf("add passage to %s: %w", name, err)
			}
			count++
		}
	}

	old := idx.snap.Swap(&snapshot{name: name, collection: col, bySource: bySource, byID: byID, count: count})
	if old != nil && old.collection != nil {
		if err := idx.db.DeleteCollection(old.name); err != nil {
			log.Printf("[INDEX] delete old collection %s: %v", old.name, err)
		}
	}
	return nil
}

func cloneBySource(m map[string][]Passage) map[string][]Passage {
	out := make(map[string][]Passage, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
