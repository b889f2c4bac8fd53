package profile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mentorstack/coach-go-sdk/memory"
)

// Config controls extraction cadence and set sizes.
type Config struct {
	// UpdateEveryTurns triggers a background update after this many turns
	// since the last one.
	UpdateEveryTurns int

	// StaleAfter marks a profile stale by age, forcing an on-demand
	// update before assembly.
	StaleAfter time.Duration

	// AnalysisWindow bounds how many recent records one analysis reads.
	AnalysisWindow int

	// SetCap caps each derived set; exceeding it triggers compaction.
	SetCap int
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		UpdateEveryTurns: 10,
		StaleAfter:       24 * time.Hour,
		AnalysisWindow:   40,
		SetCap:           15,
	}
}

// Extractor derives and maintains user profiles from long-term memory.
// It is the only writer of profile state.
type Extractor struct {
	store    Store
	longTerm memory.LongTermStore
	analyzer Analyzer
	cfg      Config
}

// NewExtractor wires an extractor over the profile store, the long-term
// memory store, and an analyzer.
func NewExtractor(store Store, longTerm memory.LongTermStore, analyzer Analyzer, cfg Config) *Extractor {
	if cfg.UpdateEveryTurns <= 0 {
		cfg.UpdateEveryTurns = DefaultConfig().UpdateEveryTurns
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	if cfg.AnalysisWindow <= 0 {
		cfg.AnalysisWindow = DefaultConfig().AnalysisWindow
	}
	if cfg.SetCap <= 0 {
		cfg.SetCap = DefaultConfig().SetCap
	}
	return &Extractor{store: store, longTerm: longTerm, analyzer: analyzer, cfg: cfg}
}

// IsStale reports whether p should be refreshed before it is used:
// either it has never been derived with history present, too many turns
// have accumulated, or it has aged out.
func (e *Extractor) IsStale(p *Profile) bool {
	if p.TurnsSinceUpdate >= e.cfg.UpdateEveryTurns {
		return true
	}
	if p.LastUpdated.IsZero() {
		return p.TurnsSinceUpdate > 0
	}
	return time.Since(p.LastUpdated) > e.cfg.StaleAfter
}

// Update re-derives the user's profile from recent history and persists
// the merged result. On any failure the stored profile is left exactly
// as it was; the caller retries on the next trigger.
func (e *Extractor) Update(ctx context.Context, userID string) (*Profile, error) {
	prior, err := e.store.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	records, err := e.longTerm.AllForUser(ctx, userID)
	if err != nil {
		return prior, fmt.Errorf("load history: %w", err)
	}
	if len(records) == 0 {
		return prior, nil
	}

	window := records
	if len(window) > e.cfg.AnalysisWindow {
		window = window[len(window)-e.cfg.AnalysisWindow:]
	}

	analysis, err := e.analyzer.Analyze(ctx, window)
	if err != nil {
		return prior, fmt.Errorf("derive profile: %w", err)
	}

	next := prior.Clone()
	next.RecurringThemes = e.merge(next.RecurringThemes, analysis.Themes)
	next.GrowthAreas = e.merge(next.GrowthAreas, analysis.GrowthAreas)
	next.Goals = e.merge(next.Goals, analysis.Goals)
	next.Strengths = e.merge(next.Strengths, analysis.Strengths)
	next.Challenges = e.merge(next.Challenges, analysis.Challenges)
	next.Insights = e.merge(next.Insights, analysis.Insights)

	for _, rec := range window {
		if rec.Role == "user" {
			ExtractPersonalDetails(next, rec.Text)
		}
	}

	next.TotalTurns = len(records)
	next.FirstConversation = records[0].Timestamp
	next.LastConversation = records[len(records)-1].Timestamp
	next.LastUpdated = time.Now().UTC()
	next.TurnsSinceUpdate = 0

	if err := e.store.Save(ctx, next); err != nil {
		return prior, fmt.Errorf("save profile: %w", err)
	}
	log.Printf("[PROFILE] updated profile for %s (%d themes, %d growth areas)",
		userID, len(next.RecurringThemes), len(next.GrowthAreas))
	return next, nil
}

// RecordTurn bumps the turn counter that drives staleness. Called by
// the engine after every completed turn; the increment is a single
// atomic write, so concurrent turns for one user never lose a count.
func (e *Extractor) RecordTurn(ctx context.Context, userID string) error {
	return e.store.IncrementTurns(ctx, userID)
}

// merge adds unseen entries, then compacts only once the set exceeds
// its cap. Entries are never removed outside compaction.
func (e *Extractor) merge(set []string, additions []string) []string {
	set = addUnseen(set, additions)
	if len(set) > e.cfg.SetCap {
		set = compact(set, e.cfg.SetCap)
	}
	return set
}
