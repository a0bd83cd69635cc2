package dbschema

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRegistryLoadBaseOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "v1", "main_up.sql"), "CREATE TABLE platforms (id int);")

	r := New(dir)
	stmts, err := r.Load(Main, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1: %v", len(stmts), stmts)
	}
}

func TestRegistryLoadWithVersionSteps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "v3", "main_up.sql"), "CREATE TABLE platforms (id int);")
	writeFile(t, filepath.Join(dir, "versions", "V1", "main_up.sql"), "ALTER TABLE platforms ADD COLUMN name text;")
	writeFile(t, filepath.Join(dir, "versions", "V2", "main_up.sql"), "ALTER TABLE platforms ADD COLUMN region text;")
	// V3 step intentionally absent — should be skipped.

	r := New(dir)
	stmts, err := r.Load(Main, 3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("got %d statements, want 3: %v", len(stmts), stmts)
	}
}

func TestRegistryLoadMissingBaseIsError(t *testing.T) {
	dir := t.TempDir()

	r := New(dir)
	if _, err := r.Load(Main, 1); err == nil {
		t.Fatal("expected error for missing base file")
	}
}

func TestRegistrySampleOptional(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "v1", "main_up.sql"), "CREATE TABLE platforms (id int);")

	r := New(dir)
	stmts, err := r.Sample(Main, 1)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(stmts) != 0 {
		t.Fatalf("got %d statements, want 0: %v", len(stmts), stmts)
	}
}

func TestRegistrySamplePresent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "v1", "main_sample_data.sql"), "INSERT INTO platforms (id) VALUES (1);")

	r := New(dir)
	stmts, err := r.Sample(Main, 1)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1: %v", len(stmts), stmts)
	}
}

func TestRegistryLoadPlatformArtifact(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "v1", "platform_up.sql"), "CREATE TABLE apps (id int);")

	r := New(dir)
	stmts, err := r.Load(Platform, 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1: %v", len(stmts), stmts)
	}
}
