package memory

import (
	"context"
	"errors"
	"time"

	"github.com/mentorstack/coach-go-sdk/core"
)

// ErrStoreUnavailable signals that the long-term store could not accept
// or serve a request. Fatal for the current request only; callers retry
// and existing persisted state is never corrupted.
var ErrStoreUnavailable = errors.New("long-term memory store unavailable")

// Record is one embedded, persisted conversational turn for one user.
// Append-only: never mutated after creation, except for a null embedding
// being filled in by lazy re-embedding.
type Record struct {
	ID        string
	UserID    string
	Role      core.Role
	Text      string
	Embedding []float32 // nil when the embedder was down at append time
	Timestamp time.Time
}

// SearchResult is a Record scored against a query embedding.
type SearchResult struct {
	Record
	Similarity float32
}

// LongTermStore persists every turn per user as a searchable record.
type LongTermStore interface {
	// Append embeds text and stores a record, returning its id. If the
	// embedding service is unavailable the record is stored with a null
	// embedding and marked for lazy re-embedding; the turn is never
	// dropped. A record becomes visible to searches issued after Append
	// returns.
	Append(ctx context.Context, userID string, role core.Role, text string) (string, error)

	// Search returns the top-k records for userID only, ranked by cosine
	// similarity descending. Records without an embedding are excluded;
	// records for other users never appear regardless of concurrent
	// writes.
	Search(ctx context.Context, userID string, queryEmbedding []float32, k int) ([]SearchResult, error)

	// AllForUser returns the user's full history in chronological order,
	// including records still awaiting an embedding.
	AllForUser(ctx context.Context, userID string) ([]Record, error)

	// ReembedPending embeds records stored with a null embedding or under
	// a superseded embedding model, filling each in place without
	// duplicating it. Returns how many were filled.
	ReembedPending(ctx context.Context) (int, error)

	// Count reports the total number of stored records across all users.
	Count(ctx context.Context) (int, error)
}
