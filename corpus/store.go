package corpus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
)

// Store is the durable passage store backing the in-memory index.
// Writes happen only through full- or per-source replacement inside a
// transaction, so the persisted set is always a complete publish.
type Store struct {
	db *sql.DB
}

// NewStore prepares the passages table on db.
func NewStore(db *sql.DB) (*Store, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS passages (
        id TEXT PRIMARY KEY,
        source_document TEXT NOT NULL,
        source_category TEXT NOT NULL,
        chunk_index INTEGER NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT NOT NULL,
        embedding_model TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_passages_source ON passages (source_document);
    `
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init passages schema: %w", err)
	}
	return &Store{db: db}, nil
}

// ReplaceSources atomically replaces all passages belonging to the source
// documents present in passages, leaving other sources untouched.
func (s *Store) ReplaceSources(passages []Passage, modelID string) error {
	sources := make(map[string]bool)
	for _, p := range passages {
		sources[p.SourceDocument] = true
	}
	return s.replace(passages, modelID, func(tx *sql.Tx) error {
		for source := range sources {
			if _, err := tx.Exec("DELETE FROM passages WHERE source_document = ?", source); err != nil {
				return fmt.Errorf("delete passages for %s: %w", source, err)
			}
		}
		return nil
	})
}

// ReplaceAll atomically replaces the entire passage set.
func (s *Store) ReplaceAll(passages []Passage, modelID string) error {
	return s.replace(passages, modelID, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM passages"); err != nil {
			return fmt.Errorf("clear passages: %w", err)
		}
		return nil
	})
}

func (s *Store) replace(passages []Passage, modelID string, clear func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin passage replace: %w", err)
	}
	defer tx.Rollback()

	if err := clear(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO passages
        (id, source_document, source_category, chunk_index, content, embedding_json, embedding_model)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare passage insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		embeddingJSON, err := json.Marshal(p.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		if _, err := stmt.Exec(p.ID, p.SourceDocument, string(p.SourceCategory),
			p.ChunkIndex, p.Text, string(embeddingJSON), modelID); err != nil {
			return fmt.Errorf("insert passage: %w", err)
		}
	}
	return tx.Commit()
}

// LoadAll returns every persisted passage embedded under modelID, in
// (source, chunk index) order. Passages embedded under a different model
// are excluded; they require a rebuild before they are searchable.
func (s *Store) LoadAll(modelID string) ([]Passage, error) {
	rows, err := s.db.Query(`SELECT id, source_document, source_category, chunk_index, content, embedding_json
        FROM passages WHERE embedding_model = ?
        ORDER BY source_document ASC, chunk_index ASC`, modelID)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		var category, embeddingJSON string
		if err := rows.Scan(&p.ID, &p.SourceDocument, &category, &p.ChunkIndex, &p.Text, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.SourceCategory = Category(category)
		if err := json.Unmarshal([]byte(embeddingJSON), &p.Embedding); err != nil {
			log.Printf("[CORPUS] skipping passage %s with bad embedding: %v", p.ID, err)
			continue
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}
