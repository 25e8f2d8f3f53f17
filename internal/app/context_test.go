package app

import (
	"context"
	"path/filepath"
	"testing"

	"surat/internal/config"
	"surat/internal/objstore"
)

func TestOpenWiresStores(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "data", "surat.db")
	cfg.Templates.Dir = filepath.Join(dir, "templates")
	cfg.Results.Backend = config.BackendHTTP
	cfg.Results.BaseURL = "http://storage.invalid/storage/v1/object"
	cfg.Results.Bucket = "surat-hasil"

	a, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	if _, ok := a.Engine.Templates.(objstore.Dir); !ok {
		t.Fatalf("expected dir template source, got %T", a.Engine.Templates)
	}
	if _, ok := a.Engine.Results.(*objstore.HTTP); !ok {
		t.Fatalf("expected http result store, got %T", a.Engine.Results)
	}
	var n int
	if err := a.DB.QueryRow(`SELECT COUNT(*) FROM surat`).Scan(&n); err != nil {
		t.Fatalf("schema not migrated: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Templates.Backend = "ftp"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected config error")
	}
}
