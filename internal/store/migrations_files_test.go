package store

import (
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"
)

var migrationName = regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.(up|down)\.sql$`)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	up, down := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations: %s", entry.Name())
		}
		if match[2] == "up" {
			up[match[1]] = true
		} else {
			down[match[1]] = true
		}
	}
	if len(up) == 0 {
		t.Fatal("no migrations embedded")
	}
	for version := range up {
		if !down[version] {
			t.Fatalf("version %s has no down file", version)
		}
	}
	for version := range down {
		if !up[version] {
			t.Fatalf("version %s has no up file", version)
		}
	}
}

func TestLoadMigrationsOrdersUpFiles(t *testing.T) {
	loaded, err := loadMigrations(Migrations())
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(loaded) < 2 || loaded[0].version != "0001_sessions.up.sql" || loaded[1].version != "0002_app_config.up.sql" {
		t.Fatalf("unexpected migration order: %+v", loaded)
	}
	for _, m := range loaded {
		if len(m.checksum) != 64 || m.sql == "" {
			t.Fatalf("migration %s not fully loaded", m.version)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"0001_a.down.sql": {Data: []byte("SELECT 0")},
	}
	loaded, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected only up files, got %d", len(loaded))
	}

	pending, err := pendingMigrations(loaded, map[string]string{"0001_a.up.sql": loaded[0].checksum})
	if err != nil {
		t.Fatalf("pendingMigrations() error = %v", err)
	}
	if len(pending) != 1 || pending[0].version != "0002_b.up.sql" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	pending, err = pendingMigrations(loaded, map[string]string{"0001_a.up.sql": ""})
	if err != nil || len(pending) != 1 {
		t.Fatalf("legacy row without checksum should be accepted: %v %+v", err, pending)
	}

	_, err = pendingMigrations(loaded, map[string]string{"0001_a.up.sql": "deadbeef"})
	if !errors.Is(err, ErrMigrationDrift) {
		t.Fatalf("expected ErrMigrationDrift, got %v", err)
	}
}
