package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/joho/godotenv"
)

// Config holds process-level settings. Tournament rule constants live on
// racing.Rules; only deployment knobs come from the environment.
type Config struct {
	DatabaseDSN string
	ServerAddr  string
	Rules       racing.Rules
}

// Load reads configuration from the environment, optionally picking up a
// .env file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "kart_cup.db?_journal_mode=WAL"
	}

	addr := os.Getenv("SERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	rules := racing.DefaultRules()
	if v := os.Getenv("INITIAL_LIVES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("INITIAL_LIVES must be a positive integer, got %q", v)
		}
		rules.InitialLives = n
	}
	if v := os.Getenv("BRACKET_TARGET_WINS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("BRACKET_TARGET_WINS must be a positive integer, got %q", v)
		}
		rules.BracketTargetWins = n
	}
	if v := os.Getenv("MAX_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("MAX_RETRY_ATTEMPTS must be a positive integer, got %q", v)
		}
		rules.MaxRetryAttempts = n
	}

	return &Config{
		DatabaseDSN: dsn,
		ServerAddr:  addr,
		Rules:       rules,
	}, nil
}
