// Package memory holds both halves of conversational memory.
//
// SessionMemory is the ephemeral half: the current conversation's turns,
// capacity-bounded with FIFO eviction, discarded when the session ends.
// Loss on restart is acceptable because the long-term store is
// authoritative.
//
// LongTermStore is the durable half: every historical turn per user,
// persisted as an embedded, searchable record. Records are append-only
// and strictly partitioned by user id; no search ever crosses the
// partition. When the embedding service is down a record is stored with a
// null embedding and re-embedded lazily, so a turn is never lost to an
// external outage.
//
// Implementations:
//   - sqlite.Store: durable store on SQLite, cosine ranking in process
package memory
