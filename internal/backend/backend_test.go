package backend

import (
	"context"
	"path/filepath"
	"testing"

	"entrate/internal/config"
	"entrate/internal/store/memory"
	"entrate/internal/store/sqlite"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", SeedFile: "seed.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.SeedFile != "seed.yaml" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFactoryCreate(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	res, err := f.Create(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := res.Store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", res.Store)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("memory close: %v", err)
	}

	res, err = f.Create(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "e.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if _, ok := res.Store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", res.Store)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("sqlite close: %v", err)
	}

	if _, err := f.Create(ctx, Config{Type: SQLiteBackend}); err == nil {
		t.Fatal("expected error for missing sqlite path")
	}
	if _, err := f.Create(ctx, Config{Type: "nope"}); err == nil {
		t.Fatal("expected error for invalid type")
	}
}
