package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no profile exists for a user yet.
var ErrNotFound = errors.New("profile not found")

// Store persists profiles as a durable keyed store by user id.
type Store interface {
	// Load returns the user's profile or ErrNotFound.
	Load(ctx context.Context, userID string) (*Profile, error)

	// LoadOrCreate returns the user's profile, creating and persisting an
	// empty one on first interaction.
	LoadOrCreate(ctx context.Context, userID string) (*Profile, error)

	// Save writes the profile in one atomic upsert.
	Save(ctx context.Context, p *Profile) error

	// IncrementTurns bumps the user's turns-since-update counter by one
	// in a single atomic write, creating an empty profile if none exists.
	IncrementTurns(ctx context.Context, userID string) error

	// CountUsers reports how many profiles exist.
	CountUsers(ctx context.Context) (int, error)
}

// SQLiteStore implements Store with one JSON document per user.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore prepares the user_profiles table on db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS user_profiles (
        user_id TEXT PRIMARY KEY,
        profile_json TEXT NOT NULL,
        last_updated DATETIME,
        turns_since_update INTEGER NOT NULL DEFAULT 0
    );
    `
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init profile schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// profileDoc is the persisted JSON shape. Keys mirror the profile fields
// users accumulated under the original on-disk layout.
type profileDoc struct {
	Name              string    `json:"name"`
	Location          string    `json:"location"`
	RecurringThemes   []string  `json:"recurring_themes"`
	GrowthAreas       []string  `json:"growth_areas"`
	Goals             []string  `json:"goals"`
	Strengths         []string  `json:"strengths"`
	Challenges        []string  `json:"challenges"`
	Insights          []string  `json:"insights"`
	TotalTurns        int       `json:"total_turns"`
	FirstConversation time.Time `json:"first_conversation"`
	LastConversation  time.Time `json:"last_conversation"`
}

func (s *SQLiteStore) Load(ctx context.Context, userID string) (*Profile, error) {
	var docJSON string
	var lastUpdated sql.NullTime
	var turnsSince int
	err := s.db.QueryRowContext(ctx,
		"SELECT profile_json, last_updated, turns_since_update FROM user_profiles WHERE user_id = ?",
		userID).Scan(&docJSON, &lastUpdated, &turnsSince)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	var doc profileDoc
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}

	p := &Profile{
		UserID:            userID,
		Name:              doc.Name,
		Location:          doc.Location,
		RecurringThemes:   doc.RecurringThemes,
		GrowthAreas:       doc.GrowthAreas,
		Goals:             doc.Goals,
		Strengths:         doc.Strengths,
		Challenges:        doc.Challenges,
		Insights:          doc.Insights,
		TotalTurns:        doc.TotalTurns,
		FirstConversation: doc.FirstConversation,
		LastConversation:  doc.LastConversation,
		TurnsSinceUpdate:  turnsSince,
	}
	if lastUpdated.Valid {
		p.LastUpdated = lastUpdated.Time
	}
	return p, nil
}

func (s *SQLiteStore) LoadOrCreate(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.Load(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	p = New(userID)
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) Save(ctx context.Context, p *Profile) error {
	doc := profileDoc{
		Name:              p.Name,
		Location:          p.Location,
		RecurringThemes:   p.RecurringThemes,
		GrowthAreas:       p.GrowthAreas,
		Goals:             p.Goals,
		Strengths:         p.Strengths,
		Challenges:        p.Challenges,
		Insights:          p.Insights,
		TotalTurns:        p.TotalTurns,
		FirstConversation: p.FirstConversation,
		LastConversation:  p.LastConversation,
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	var lastUpdated interface{}
	if !p.LastUpdated.IsZero() {
		lastUpdated = p.LastUpdated
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO user_profiles
        (user_id, profile_json, last_updated, turns_since_update)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            profile_json = excluded.profile_json,
            last_updated = excluded.last_updated,
            turns_since_update = excluded.turns_since_update`,
		p.UserID, string(docJSON), lastUpdated, p.TurnsSinceUpdate)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IncrementTurns(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_profiles
        (user_id, profile_json, turns_since_update) VALUES (?, '{}', 1)
        ON CONFLICT(user_id) DO UPDATE SET
            turns_since_update = turns_since_update + 1`, userID)
	if err != nil {
		return fmt.Errorf("increment turns: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_profiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}
