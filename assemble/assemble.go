// Package assemble builds the bounded context payload for generation.
// Each request fans out to corpus and long-term memory retrieval in
// parallel, folds in the session tail and the user's profile, and
// composes one prioritized, size-bounded payload. Retrieval failures
// degrade the payload instead of failing the request.
package assemble

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mentorstack/coach-go-sdk/corpus"
	"github.com/mentorstack/coach-go-sdk/embedder"
	"github.com/mentorstack/coach-go-sdk/memory"
)

// Kind identifies a fragment variant.
type Kind int

const (
	KindPersona Kind = iota
	KindProfileSummary
	KindCorpusPassage
	KindMemoryRecord
	KindSessionTurn
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindPersona:
		return "persona"
	case KindProfileSummary:
		return "profile"
	case KindCorpusPassage:
		return "passage"
	case KindMemoryRecord:
		return "memory"
	case KindSessionTurn:
		return "session"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Fragment is one typed piece of assembled context. Priority orders the
// final payload; trimmable fragments are dropped lowest-value-first when
// the payload exceeds its budget.
type Fragment struct {
	Kind   Kind
	Text   string
	Source string // citation source, passages only

	priority int
	// trimRank orders removal under budget pressure: higher ranks are
	// dropped first, rank 0 is never dropped.
	trimRank int
}

// Size is the fragment's budget cost in characters.
func (f Fragment) Size() int { return len(f.Text) }

// Outcome reports how assembly finished.
type Outcome int

const (
	// Ready means every retrieval source contributed.
	Ready Outcome = iota

	// Degraded means one or more sources failed and the payload was
	// assembled from the rest.
	Degraded
)

// Payload is the assembled context handed to generation.
type Payload struct {
	Text      string
	Fragments []Fragment
	Citations []string // source documents of included passages
	Outcome   Outcome
}

// Config bounds retrieval and payload size.
type Config struct {
	CorpusK          int
	MemoryK          int
	SessionTurns     int
	CharBudget       int
	RetrievalTimeout time.Duration
}

// DefaultConfig returns the assembly defaults.
func DefaultConfig() Config {
	return Config{
		CorpusK:          4,
		MemoryK:          3,
		SessionTurns:     6,
		CharBudget:       8000,
		RetrievalTimeout: 3 * time.Second,
	}
}

// Request carries everything one assembly needs. ProfileSummary and
// Persona are passed pre-rendered; the assembler never reaches into
// profile internals.
type Request struct {
	UserID         string
	Query          string
	Persona        string
	ProfileSummary string
	Session        []SessionTurn
}

// SessionTurn is one recent turn from session memory.
type SessionTurn struct {
	Role string
	Text string
}

// CorpusSearcher is the slice of the corpus index assembly needs.
type CorpusSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]corpus.Result, error)
}

// Assembler composes context payloads from the three retrieval sources.
type Assembler struct {
	index    CorpusSearcher
	longTerm memory.LongTermStore
	emb      embedder.Embedder
	cfg      Config
}

// New wires an assembler. Any of index or longTerm may be nil; a nil
// source simply contributes nothing.
func New(index CorpusSearcher, longTerm memory.LongTermStore, emb embedder.Embedder, cfg Config) *Assembler {
	def := DefaultConfig()
	if cfg.CorpusK <= 0 {
		cfg.CorpusK = def.CorpusK
	}
	if cfg.MemoryK <= 0 {
		cfg.MemoryK = def.MemoryK
	}
	if cfg.SessionTurns <= 0 {
		cfg.SessionTurns = def.SessionTurns
	}
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = def.CharBudget
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = def.RetrievalTimeout
	}
	return &Assembler{index: index, longTerm: longTerm, emb: emb, cfg: cfg}
}

// Assemble builds the payload for one query. It never returns an error
// for retrieval failures; those produce a Degraded payload. Only an
// empty query is rejected.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Payload, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("assemble: empty query")
	}

	degraded := false

	// The query is embedded once and shared by both searches. If the
	// embedder is down, both vector sources are lost but session and
	// profile content still flow.
	var queryVec []float32
	if a.emb != nil {
		vec, err := a.emb.Embed(ctx, req.Query)
		if err != nil {
			log.Printf("[ASSEMBLE] query embedding failed, skipping retrieval: %v", err)
			degraded = true
		} else {
			queryVec = vec
		}
	}

	var passages []corpus.Result
	var memories []memory.SearchResult

	if queryVec != nil {
		var corpusErr, memoryErr error
		g, gctx := errgroup.WithContext(ctx)
		if a.index != nil {
			g.Go(func() error {
				tctx, cancel := context.WithTimeout(gctx, a.cfg.RetrievalTimeout)
				defer cancel()
				passages, corpusErr = a.index.Search(tctx, queryVec, a.cfg.CorpusK)
				return nil
			})
		}
		if a.longTerm != nil {
			g.Go(func() error {
				tctx, cancel := context.WithTimeout(gctx, a.cfg.RetrievalTimeout)
				defer cancel()
				memories, memoryErr = a.longTerm.Search(tctx, req.UserID, queryVec, a.cfg.MemoryK)
				return nil
			})
		}
		// Failures flow through the per-source error slots, never the
		// group error, so Wait cannot fail here.
		g.Wait()
		if corpusErr != nil {
			log.Printf("[ASSEMBLE] corpus search failed: %v", corpusErr)
			passages = nil
			degraded = true
		}
		if memoryErr != nil {
			log.Printf("[ASSEMBLE] memory search failed: %v", memoryErr)
			memories = nil
			degraded = true
		}
	}

	fragments := a.buildFragments(req, passages, memories)
	fragments = trimToBudget(fragments, a.cfg.CharBudget)

	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].priority < fragments[j].priority
	})

	var citations []string
	seen := map[string]bool{}
	var text strings.Builder
	for i, f := range fragments {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(f.Text)
		if f.Kind == KindCorpusPassage && f.Source != "" && !seen[f.Source] {
			seen[f.Source] = true
			citations = append(citations, f.Source)
		}
	}

	outcome := Ready
	if degraded {
		outcome = Degraded
	}
	return &Payload{
		Text:      text.String(),
		Fragments: fragments,
		Citations: citations,
		Outcome:   outcome,
	}, nil
}

// Fixed payload order. Trim ranks invert it for the trimmable tail:
// session turns go first, then memories, then passages. Persona,
// profile, and the query are never trimmed.
func (a *Assembler) buildFragments(req Request, passages []corpus.Result, memories []memory.SearchResult) []Fragment {
	var frags []Fragment

	if req.Persona != "" {
		frags = append(frags, Fragment{
			Kind: KindPersona, Text: req.Persona, priority: 0,
		})
	}
	if req.ProfileSummary != "" {
		frags = append(frags, Fragment{
			Kind:     KindProfileSummary,
			Text:     "What you know about this person:\n" + req.ProfileSummary,
			priority: 1,
		})
	}
	for i, r := range passages {
		frags = append(frags, Fragment{
			Kind:     KindCorpusPassage,
			Text:     fmt.Sprintf("From your teachings (%s):\n%s", r.SourceDocument, r.Text),
			Source:   r.SourceDocument,
			priority: 2,
			// Weakest matches are dropped first.
			trimRank: 2 + i,
		})
	}
	for i, r := range memories {
		frags = append(frags, Fragment{
			Kind:     KindMemoryRecord,
			Text:     fmt.Sprintf("From a past conversation (%s): %s", r.Role, r.Text),
			priority: 3,
			trimRank: 100 + i,
		})
	}
	session := req.Session
	if len(session) > a.cfg.SessionTurns {
		session = session[len(session)-a.cfg.SessionTurns:]
	}
	for i, t := range session {
		frags = append(frags, Fragment{
			Kind:     KindSessionTurn,
			Text:     fmt.Sprintf("%s: %s", t.Role, t.Text),
			priority: 4,
			// Oldest turns are dropped first.
			trimRank: 200 + len(session) - i,
		})
	}
	frags = append(frags, Fragment{
		Kind: KindQuery, Text: "Current question: " + req.Query, priority: 5,
	})
	return frags
}

// trimToBudget drops trimmable fragments highest trim rank first until
// the payload fits. Untrimmable fragments always survive, so the only
// way to exceed the budget is a persona plus profile plus query that
// alone exceed it.
func trimToBudget(frags []Fragment, budget int) []Fragment {
	total := 0
	for _, f := range frags {
		total += f.Size()
	}
	for total > budget {
		drop := -1
		for i, f := range frags {
			if f.trimRank == 0 {
				continue
			}
			if drop < 0 || f.trimRank > frags[drop].trimRank {
				drop = i
			}
		}
		if drop < 0 {
			break
		}
		total -= frags[drop].Size()
		frags = append(frags[:drop], frags[drop+1:]...)
	}
	return frags
}
