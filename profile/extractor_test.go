package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mentorstack/coach-go-sdk/core"
	"github.com/mentorstack/coach-go-sdk/memory"
)

// memStore is an in-memory profile.Store for tests.
type memStore struct {
	profiles map[string]*Profile
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]*Profile)}
}

func (s *memStore) Load(ctx context.Context, userID string) (*Profile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memStore) LoadOrCreate(ctx context.Context, userID string) (*Profile, error) {
	if p, ok := s.profiles[userID]; ok {
		return p.Clone(), nil
	}
	p := New(userID)
	s.profiles[userID] = p.Clone()
	return p, nil
}

func (s *memStore) Save(ctx context.Context, p *Profile) error {
	s.profiles[p.UserID] = p.Clone()
	return nil
}

func (s *memStore) IncrementTurns(ctx context.Context, userID string) error {
	p, ok := s.profiles[userID]
	if !ok {
		p = New(userID)
		s.profiles[userID] = p
	}
	p.TurnsSinceUpdate++
	return nil
}

func (s *memStore) CountUsers(ctx context.Context) (int, error) {
	return len(s.profiles), nil
}

// fixedHistory serves a canned record list.
type fixedHistory struct {
	memory.LongTermStore
	records []memory.Record
}

func (f *fixedHistory) AllForUser(ctx context.Context, userID string) ([]memory.Record, error) {
	return f.records, nil
}

// stubAnalyzer returns a fixed analysis or error.
type stubAnalyzer struct {
	analysis *Analysis
	err      error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, records []memory.Record) (*Analysis, error) {
	return s.analysis, s.err
}

func history(texts ...string) []memory.Record {
	var records []memory.Record
	base := time.Now().Add(-time.Hour)
	for i, text := range texts {
		records = append(records, memory.Record{
			UserID:    "u1",
			Role:      core.RoleUser,
			Text:      text,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return records
}

func TestUpdateThemesAreMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	analyzer := &stubAnalyzer{analysis: &Analysis{Themes: []string{"discipline"}}}
	e := NewExtractor(store, &fixedHistory{records: history("I struggle with discipline")}, analyzer, DefaultConfig())

	first, err := e.Update(ctx, "u1")
	if err != nil {
		t.Fatalf("first update: %v", err)
	}

	analyzer.analysis = &Analysis{Themes: []string{"career", "Discipline"}}
	second, err := e.Update(ctx, "u1")
	if err != nil {
		t.Fatalf("second update: %v", err)
	}

	after := map[string]bool{}
	for _, theme := range second.RecurringThemes {
		after[theme] = true
	}
	for _, theme := range first.RecurringThemes {
		if !after[theme] {
			t.Errorf("theme %q disappeared across updates", theme)
		}
	}
	if len(second.RecurringThemes) != 2 {
		t.Errorf("themes = %v, want [discipline career]", second.RecurringThemes)
	}
}

func TestUpdateFailureRetainsPriorProfile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	analyzer := &stubAnalyzer{analysis: &Analysis{Themes: []string{"discipline"}}}
	longTerm := &fixedHistory{records: history("some history")}
	e := NewExtractor(store, longTerm, analyzer, DefaultConfig())

	if _, err := e.Update(ctx, "u1"); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	analyzer.err = errors.New("analysis backend down")
	analyzer.analysis = nil
	got, err := e.Update(ctx, "u1")
	if err == nil {
		t.Fatal("expected error from failed derivation")
	}
	if got == nil || len(got.RecurringThemes) != 1 || got.RecurringThemes[0] != "discipline" {
		t.Errorf("prior profile not returned on failure: %+v", got)
	}

	stored, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored.RecurringThemes) != 1 {
		t.Errorf("stored profile mutated by failed update: %+v", stored)
	}
}

func TestUpdateCapsSetsByCompaction(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cfg := DefaultConfig()
	cfg.SetCap = 4
	analyzer := &stubAnalyzer{}
	e := NewExtractor(store, &fixedHistory{records: history("history")}, analyzer, cfg)

	themes := []string{"alpha topic", "beta topic", "gamma topic", "delta topic", "epsilon topic", "zeta topic"}
	for _, theme := range themes {
		analyzer.analysis = &Analysis{Themes: []string{theme}}
		if _, err := e.Update(ctx, "u1"); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	final, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(final.RecurringThemes) > cfg.SetCap {
		t.Errorf("themes = %d entries, want <= %d", len(final.RecurringThemes), cfg.SetCap)
	}
}

func TestUpdatePicksUpPersonalDetails(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	longTerm := &fixedHistory{records: history("Hi, my name is Marcus and I live in Denver, CO")}
	e := NewExtractor(store, longTerm, &stubAnalyzer{analysis: &Analysis{}}, DefaultConfig())

	p, err := e.Update(ctx, "u1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Name != "Marcus" {
		t.Errorf("Name = %q, want Marcus", p.Name)
	}
	if p.Location != "Denver, CO" {
		t.Errorf("Location = %q, want Denver, CO", p.Location)
	}
}

func TestIsStale(t *testing.T) {
	e := NewExtractor(newMemStore(), &fixedHistory{}, &stubAnalyzer{}, Config{
		UpdateEveryTurns: 5,
		StaleAfter:       time.Hour,
	})

	fresh := New("u1")
	fresh.LastUpdated = time.Now()
	if e.IsStale(fresh) {
		t.Error("freshly updated profile reported stale")
	}

	byTurns := New("u1")
	byTurns.LastUpdated = time.Now()
	byTurns.TurnsSinceUpdate = 5
	if !e.IsStale(byTurns) {
		t.Error("profile past turn threshold not stale")
	}

	byAge := New("u1")
	byAge.LastUpdated = time.Now().Add(-2 * time.Hour)
	if !e.IsStale(byAge) {
		t.Error("aged-out profile not stale")
	}

	neverDerived := New("u1")
	neverDerived.TurnsSinceUpdate = 1
	if !e.IsStale(neverDerived) {
		t.Error("never-derived profile with history not stale")
	}
}
