// Seed script for creating demo personas in Veritas.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment
	envFile := os.Getenv("VERITAS_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	personas := []struct {
		name, provider, prompt string
	}{
		{"mira", "openai", "You are Mira, a pragmatic engineering assistant. Answer precisely and cite what you remember."},
		{"sage", "anthropic", "You are Sage, a careful researcher. Prefer sourced, hedged answers over confident guesses."},
		{"juno", "groq", "You are Juno, a fast-moving generalist. Keep answers short and actionable."},
	}

	for _, p := range personas {
		id := uuid.New()
		_, err := pool.Exec(ctx,
			`INSERT INTO agents (id, name, provider, system_prompt) VALUES ($1, $2, $3, $4)
			 ON CONFLICT DO NOTHING`,
			id, p.name, p.provider, p.prompt)
		if err != nil {
			log.Fatalf("insert agent %s: %v", p.name, err)
		}
		_, err = pool.Exec(ctx,
			`INSERT INTO memory_branches (agent_id, agent_name) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			id, p.name)
		if err != nil {
			log.Fatalf("insert branch %s: %v", p.name, err)
		}
		fmt.Printf("seeded agent %s (%s) id=%s\n", p.name, p.provider, id)
	}

	fmt.Println("done")
}
