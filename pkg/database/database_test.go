package database

import "testing"

func TestConfigFromURL(t *testing.T) {
	if _, err := ConfigFromURL(""); err == nil {
		t.Error("Expected error for empty database url")
	}

	cfg, err := ConfigFromURL("postgres://localhost/craft")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/craft" {
		t.Errorf("Expected url to be kept, got %s", cfg.DatabaseURL)
	}
	if cfg.MaxConns < cfg.MinConns {
		t.Errorf("Expected MaxConns >= MinConns, got %d < %d", cfg.MaxConns, cfg.MinConns)
	}
}

func TestSourceURL(t *testing.T) {
	if got := sourceURL("migrations"); got != "file://migrations" {
		t.Errorf("sourceURL(%q) = %q, want %q", "migrations", got, "file://migrations")
	}
}

// Note: Connect and the migrators need a running Postgres and are exercised by cmd/bot.
