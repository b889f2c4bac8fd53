// Command coach-cli is an interactive terminal front end for the
// coaching engine. It wires the SQLite stores, the corpus index, and the
// Claude generation client from environment configuration, then runs a
// simple read-eval loop.
//
// Environment:
//
//	ANTHROPIC_API_KEY  required
//	COACH_DB           SQLite path (default coach.db)
//	COACH_MATERIALS    corpus root with book/transcript/seminar subdirs
//	COACH_PERSONA      persona prompt file (optional, built-in fallback)
//	COACH_USER         user id (default "local")
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/mentorstack/coach-go-sdk/assemble"
	"github.com/mentorstack/coach-go-sdk/chunk"
	"github.com/mentorstack/coach-go-sdk/corpus"
	"github.com/mentorstack/coach-go-sdk/embedder"
	"github.com/mentorstack/coach-go-sdk/engine"
	"github.com/mentorstack/coach-go-sdk/generate"
	"github.com/mentorstack/coach-go-sdk/memory/sqlite"
	"github.com/mentorstack/coach-go-sdk/profile"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("coach-cli: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	var rebuild bool
	flag.BoolVar(&rebuild, "rebuild", false, "rebuild the corpus index before starting")
	flag.Parse()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	dbPath := envOr("COACH_DB", "coach.db")
	materialsRoot := os.Getenv("COACH_MATERIALS")
	userID := envOr("COACH_USER", "local")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer db.Close()

	base, err := newEmbedder()
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	cached, err := embedder.WithCache(embedder.WithRetry(base, 3, 0), 4096)
	if err != nil {
		return fmt.Errorf("init embedding cache: %w", err)
	}
	defer cached.Close()
	var emb embedder.Embedder = cached

	longTerm, err := sqlite.New(db, emb)
	if err != nil {
		return err
	}
	corpusStore, err := corpus.NewStore(db)
	if err != nil {
		return err
	}
	index, err := corpus.New(corpusStore, emb, chunk.New(chunk.DefaultConfig), corpus.DefaultConfig)
	if err != nil {
		return err
	}
	profiles, err := profile.NewSQLiteStore(db)
	if err != nil {
		return err
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	extractor := profile.NewExtractor(profiles, longTerm,
		profile.NewClaudeAnalyzer(&client, ""), profile.DefaultConfig())
	assembler := assemble.New(index, longTerm, emb, assemble.DefaultConfig())
	generator := generate.NewClaudeGenerator(&client, "", 1024)

	eng := engine.New(index, longTerm, profiles, extractor, assembler, generator,
		engine.WithPersona(generate.LoadPersona(os.Getenv("COACH_PERSONA"))))

	ctx := context.Background()

	if rebuild {
		if materialsRoot == "" {
			return fmt.Errorf("-rebuild requires COACH_MATERIALS")
		}
		if err := eng.RebuildCorpus(ctx, materialsRoot); err != nil {
			return fmt.Errorf("rebuild corpus: %w", err)
		}
	}

	sessionID := uuid.NewString()
	fmt.Println("coach-cli ready. Type a question, or /stats, /rebuild, /reembed, /quit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			eng.EndSession(sessionID)
			return nil
		case "/stats":
			stats, err := eng.Stats(ctx)
			if err != nil {
				fmt.Printf("stats error: %v\n", err)
				continue
			}
			fmt.Printf("users: %d  memory records: %d  passages: %d\n",
				stats.Users, stats.MemoryRecords, stats.Passages)
			for _, src := range stats.Sources {
				fmt.Printf("  source: %s\n", src)
			}
			continue
		case "/rebuild":
			if materialsRoot == "" {
				fmt.Println("COACH_MATERIALS is not set")
				continue
			}
			if err := eng.RebuildCorpus(ctx, materialsRoot); err != nil {
				fmt.Printf("rebuild error: %v\n", err)
			} else {
				fmt.Println("corpus rebuilt")
			}
			continue
		case "/reembed":
			n, err := eng.ReembedPending(ctx)
			if err != nil {
				fmt.Printf("reembed error: %v\n", err)
			} else {
				fmt.Printf("filled %d pending embeddings\n", n)
			}
			continue
		}

		reply, err := eng.Ask(ctx, userID, sessionID, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println()
		fmt.Println(reply.Text)
		if len(reply.Citations) > 0 {
			fmt.Printf("\n[sources: %s]\n", strings.Join(reply.Citations, ", "))
		}
		if reply.Degraded {
			fmt.Println("[note: some context sources were unavailable]")
		}
		if !reply.Remembered {
			fmt.Println("[note: this exchange could not be saved to memory]")
		}
		fmt.Println()
	}
	return scanner.Err()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
