// Package sqlite implements memory.LongTermStore on SQLite. Embeddings
// are stored as a JSON column alongside the record and similarity is
// ranked in process, which is plenty for per-user history sizes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/mentorstack/coach-go-sdk/core"
	"github.com/mentorstack/coach-go-sdk/embedder"
	"github.com/mentorstack/coach-go-sdk/memory"
)

// Store is a durable, per-user-partitioned long-term memory store.
type Store struct {
	db  *sql.DB
	emb embedder.Embedder
}

// New prepares the memory_records table on db.
func New(db *sql.DB, emb embedder.Embedder) (*Store, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS memory_records (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        embedding_json TEXT,
        embedding_model TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_memory_records_user ON memory_records (user_id, created_at);
    `
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	return &Store{db: db, emb: emb}, nil
}

// Append stores one turn. On embedder failure the record is stored with a
// null embedding and picked up later by ReembedPending; conversational
// continuity never depends on the embedding service.
func (s *Store) Append(ctx context.Context, userID string, role core.Role, text string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("append: empty user id")
	}
	if !role.Valid() {
		return "", fmt.Errorf("append: invalid role %q", role)
	}

	var embeddingJSON, model sql.NullString
	vec, err := s.emb.Embed(ctx, text)
	if err != nil {
		log.Printf("[MEMORY] embed failed for append, storing placeholder: %v", err)
	} else {
		data, err := json.Marshal(vec)
		if err != nil {
			return "", fmt.Errorf("marshal embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(data), Valid: true}
		model = sql.NullString{String: s.emb.ModelID(), Valid: true}
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO memory_records
        (id, user_id, role, content, embedding_json, embedding_model, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, string(role), text, embeddingJSON, model, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("%w: insert record: %v", memory.ErrStoreUnavailable, err)
	}
	return id, nil
}

// Search ranks the user's embedded records by cosine similarity. The
// query never leaves the user's partition: rows are selected by user_id
// and nothing else is loaded.
func (s *Store) Search(ctx context.Context, userID string, queryEmbedding []float32, k int) ([]memory.SearchResult, error) {
	if k < 1 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, role, content, embedding_json, created_at
        FROM memory_records
        WHERE user_id = ? AND embedding_json IS NOT NULL AND embedding_model = ?`,
		userID, s.emb.ModelID())
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", memory.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var scored []memory.SearchResult
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if len(rec.Embedding) == 0 {
			continue
		}
		scored = append(scored, memory.SearchResult{
			Record:     rec,
			Similarity: embedder.Cosine(queryEmbedding, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan records: %v", memory.ErrStoreUnavailable, err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Timestamp.After(scored[j].Timestamp)
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// AllForUser returns the user's complete history, oldest first.
func (s *Store) AllForUser(ctx context.Context, userID string) ([]memory.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, role, content, embedding_json, created_at
        FROM memory_records WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query history: %v", memory.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ReembedPending fills null embeddings left by embedder outages and
// re-embeds records stored under a different embedding model, making
// history searchable again after a model change. Each record is updated
// in place; nothing is duplicated. Records that still fail stay pending
// for the next pass.
func (s *Store) ReembedPending(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM memory_records
        WHERE embedding_json IS NULL OR embedding_model IS NULL OR embedding_model != ?`,
		s.emb.ModelID())
	if err != nil {
		return 0, fmt.Errorf("%w: query pending: %v", memory.ErrStoreUnavailable, err)
	}

	type pending struct{ id, content string }
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan pending record: %w", err)
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	filled := 0
	for _, p := range todo {
		vec, err := s.emb.Embed(ctx, p.content)
		if err != nil {
			log.Printf("[MEMORY] reembed %s still failing: %v", p.id, err)
			continue
		}
		data, err := json.Marshal(vec)
		if err != nil {
			return filled, fmt.Errorf("marshal embedding: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE memory_records SET embedding_json = ?, embedding_model = ? WHERE id = ?`,
			string(data), s.emb.ModelID(), p.id)
		if err != nil {
			return filled, fmt.Errorf("%w: fill embedding: %v", memory.ErrStoreUnavailable, err)
		}
		filled++
	}
	if filled > 0 {
		log.Printf("[MEMORY] re-embedded %d pending records", filled)
	}
	return filled, nil
}

// Count reports the total stored records across all users.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memory_records").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count records: %v", memory.ErrStoreUnavailable, err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows) (memory.Record, error) {
	var rec memory.Record
	var role string
	var embeddingJSON sql.NullString
	if err := rows.Scan(&rec.ID, &rec.UserID, &role, &rec.Text, &embeddingJSON, &rec.Timestamp); err != nil {
		return memory.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Role = core.Role(role)
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &rec.Embedding); err != nil {
			log.Printf("[MEMORY] record %s has bad embedding, treating as pending: %v", rec.ID, err)
			rec.Embedding = nil
		}
	}
	return rec, nil
}
