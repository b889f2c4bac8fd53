// Package engine orchestrates one coaching turn end to end: profile
// freshness check, context assembly, generation, and the memory writes
// that make the turn retrievable later.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mentorstack/coach-go-sdk/assemble"
	"github.com/mentorstack/coach-go-sdk/core"
	"github.com/mentorstack/coach-go-sdk/corpus"
	"github.com/mentorstack/coach-go-sdk/generate"
	"github.com/mentorstack/coach-go-sdk/memory"
	"github.com/mentorstack/coach-go-sdk/profile"
)

// Engine ties the retrieval and memory components together behind one
// Ask call. Corpus and profile state are shared across users; session
// state is per conversation.
type Engine struct {
	index     *corpus.Index
	longTerm  memory.LongTermStore
	profiles  profile.Store
	extractor *profile.Extractor
	assembler *assemble.Assembler
	generator generate.Generator

	persona         string
	sessionCapacity int
	profileTimeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*memory.SessionMemory
}

// Option configures the engine.
type Option func(*Engine)

// WithPersona sets the persona framing injected into every context.
func WithPersona(persona string) Option {
	return func(e *Engine) {
		e.persona = persona
	}
}

// WithSessionCapacity bounds per-session turn retention.
func WithSessionCapacity(capacity int) Option {
	return func(e *Engine) {
		e.sessionCapacity = capacity
	}
}

// WithProfileTimeout bounds the on-demand profile refresh that can run
// before assembly. Past the deadline the stale profile is used as is.
func WithProfileTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.profileTimeout = d
	}
}

// New creates an engine over its collaborators.
func New(index *corpus.Index, longTerm memory.LongTermStore, profiles profile.Store,
	extractor *profile.Extractor, assembler *assemble.Assembler, generator generate.Generator,
	opts ...Option) *Engine {
	e := &Engine{
		index:           index,
		longTerm:        longTerm,
		profiles:        profiles,
		extractor:       extractor,
		assembler:       assembler,
		generator:       generator,
		persona:         generate.DefaultPersona,
		sessionCapacity: memory.DefaultSessionCapacity,
		profileTimeout:  5 * time.Second,
		sessions:        make(map[string]*memory.SessionMemory),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reply is the outcome of one turn.
type Reply struct {
	// Text is the persona-voiced reply.
	Text string

	// SpeechText is Text normalized for voice synthesis.
	SpeechText string

	// Citations lists the corpus source documents that informed the
	// reply.
	Citations []string

	// ProfileSummary is the profile content included in the context.
	ProfileSummary string

	// Degraded reports that one or more retrieval sources failed and the
	// reply was generated from partial context.
	Degraded bool

	// Remembered reports whether this turn reached long-term memory. A
	// false value means the caller should warn the user that the turn
	// will not be remembered.
	Remembered bool
}

// Ask runs one coaching turn for userID within sessionID.
//
// The turn degrades rather than fails on retrieval problems; the only
// hard errors are an unusable request, a profile store failure, and the
// generation call itself.
func (e *Engine) Ask(ctx context.Context, userID, sessionID, question string) (*Reply, error) {
	if userID == "" {
		return nil, fmt.Errorf("ask: empty user id")
	}

	prof, err := e.profiles.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	// Refresh a stale profile before assembly, but never let a slow
	// derivation block the reply. A failed refresh keeps the prior
	// profile.
	if e.extractor != nil && e.extractor.IsStale(prof) {
		pctx, cancel := context.WithTimeout(ctx, e.profileTimeout)
		updated, err := e.extractor.Update(pctx, userID)
		cancel()
		if err != nil {
			log.Printf("[ENGINE] profile refresh failed, using prior profile: %v", err)
		} else {
			prof = updated
		}
	}

	session := e.session(sessionID)
	var turns []assemble.SessionTurn
	for _, t := range session.Recent(e.sessionCapacity) {
		turns = append(turns, assemble.SessionTurn{Role: string(t.Role), Text: t.Text})
	}

	payload, err := e.assembler.Assemble(ctx, assemble.Request{
		UserID:         userID,
		Query:          question,
		Persona:        e.persona,
		ProfileSummary: prof.Summary(),
		Session:        turns,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	text, err := e.generator.Generate(ctx, "", payload.Text)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	session.Append(core.NewTurn(core.RoleUser, question))
	session.Append(core.NewTurn(core.RoleAssistant, text))

	// Long-term appends run on a detached context: a caller disconnect
	// cancels retrieval, never the writes that preserve continuity. The
	// appends complete before Ask returns so the turn is visible to the
	// next search.
	remembered := true
	writeCtx := context.WithoutCancel(ctx)
	if _, err := e.longTerm.Append(writeCtx, userID, core.RoleUser, question); err != nil {
		log.Printf("[ENGINE] user turn not remembered: %v", err)
		remembered = false
	}
	if _, err := e.longTerm.Append(writeCtx, userID, core.RoleAssistant, text); err != nil {
		log.Printf("[ENGINE] assistant turn not remembered: %v", err)
		remembered = false
	}

	if e.extractor != nil {
		if err := e.extractor.RecordTurn(writeCtx, userID); err != nil {
			log.Printf("[ENGINE] turn counter update failed: %v", err)
		}
	}

	return &Reply{
		Text:           text,
		SpeechText:     generate.CleanForSpeech(text),
		Citations:      payload.Citations,
		ProfileSummary: prof.Summary(),
		Degraded:       payload.Outcome == assemble.Degraded,
		Remembered:     remembered,
	}, nil
}

// session returns the session's memory, creating it on first use.
func (e *Engine) session(sessionID string) *memory.SessionMemory {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		s = memory.NewSession(e.sessionCapacity)
		e.sessions[sessionID] = s
	}
	return s
}

// EndSession discards the session's ephemeral turns. Long-term records
// are unaffected.
func (e *Engine) EndSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.Clear()
		delete(e.sessions, sessionID)
	}
}

// RebuildCorpus re-scans materialsRoot and atomically republishes the
// corpus index. Safe to run while other goroutines are answering
// questions. Admin-triggered only.
func (e *Engine) RebuildCorpus(ctx context.Context, materialsRoot string) error {
	if e.index == nil {
		return fmt.Errorf("no corpus index configured")
	}
	log.Printf("[ENGINE] corpus rebuild requested from %s", materialsRoot)
	return e.index.RebuildAll(ctx, materialsRoot)
}

// ReembedPending fills memory embeddings left null by embedder outages.
func (e *Engine) ReembedPending(ctx context.Context) (int, error) {
	return e.longTerm.ReembedPending(ctx)
}

// Stats is an aggregate view for admin display.
type Stats struct {
	Users         int
	MemoryRecords int
	Passages      int
	Sources       []string
}

// Stats reports aggregate engine state.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	users, err := e.profiles.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	records, err := e.longTerm.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	s := &Stats{Users: users, MemoryRecords: records}
	if e.index != nil {
		s.Passages = e.index.PassageCount()
		s.Sources = e.index.Sources()
	}
	return s, nil
}
