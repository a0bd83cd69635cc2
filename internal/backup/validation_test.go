package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func validBackupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "metadata", "manifest.json"), `{"backup_id": "1"}`)
	writeTestFile(t, filepath.Join(dir, "isos", "system-core-node1-1.iso"), "placeholder iso content")
	writeTestFile(t, filepath.Join(dir, "scripts", "recovery", "main.sh"), "#!/bin/bash\n")
	writeTestFile(t, filepath.Join(dir, "scripts", "validation", "validate.sh"), "#!/bin/bash\n")
	return dir
}

func TestValidateStructuralSuccess(t *testing.T) {
	v := NewValidator(NewIsoManager(t.TempDir()))
	dir := validBackupDir(t)
	b := &models.Backup{ID: "1", Name: "nightly", CreatedAt: time.Now()}

	ok, err := v.ValidateStructural(b, dir)
	if err != nil {
		t.Fatalf("ValidateStructural: %v", err)
	}
	if !ok {
		t.Fatalf("expected structural validation to pass, metadata: %+v", b.Metadata)
	}
	if b.LastValidatedAt == nil {
		t.Error("expected LastValidatedAt to be set")
	}
	validation, _ := b.Metadata["validation"].(map[string]any)
	if validation["status"] != "success" {
		t.Errorf("validation status = %v, want success", validation["status"])
	}
}

func TestValidateStructuralMissingManifest(t *testing.T) {
	v := NewValidator(NewIsoManager(t.TempDir()))
	dir := validBackupDir(t)
	if err := os.Remove(filepath.Join(dir, "metadata", "manifest.json")); err != nil {
		t.Fatal(err)
	}
	b := &models.Backup{ID: "1", Name: "nightly", CreatedAt: time.Now()}

	ok, err := v.ValidateStructural(b, dir)
	if err != nil {
		t.Fatalf("ValidateStructural: %v", err)
	}
	if ok {
		t.Fatal("expected structural validation to fail without a manifest")
	}
	validation, _ := b.Metadata["validation"].(map[string]any)
	if validation["status"] != "failed" {
		t.Errorf("validation status = %v, want failed", validation["status"])
	}
}

func TestValidateStructuralEmptyIso(t *testing.T) {
	v := NewValidator(NewIsoManager(t.TempDir()))
	dir := validBackupDir(t)
	writeTestFile(t, filepath.Join(dir, "isos", "empty-node1-1.iso"), "")
	b := &models.Backup{ID: "1", Name: "nightly", CreatedAt: time.Now()}

	ok, err := v.ValidateStructural(b, dir)
	if err != nil {
		t.Fatalf("ValidateStructural: %v", err)
	}
	if ok {
		t.Fatal("expected structural validation to fail with an empty iso present")
	}
}

func TestValidateDeepExtractsEachIso(t *testing.T) {
	iso := NewIsoManager(t.TempDir())
	v := NewValidator(iso)
	dir := validBackupDir(t)
	b := &models.Backup{ID: "1", Name: "nightly", CreatedAt: time.Now()}

	ok, err := v.ValidateDeep(b, dir)
	if err != nil {
		t.Fatalf("ValidateDeep: %v", err)
	}
	if !ok {
		t.Fatalf("expected deep validation to pass, metadata: %+v", b.Metadata)
	}
	if _, err := os.Stat(filepath.Join(dir, "temp", "validation_extract")); err == nil {
		t.Error("expected extraction scratch dir to be cleaned up")
	}
}

func TestValidateDeepMissingIsosDir(t *testing.T) {
	iso := NewIsoManager(t.TempDir())
	v := NewValidator(iso)
	dir := t.TempDir()
	b := &models.Backup{ID: "1", Name: "nightly", CreatedAt: time.Now()}

	if _, err := v.ValidateDeep(b, dir); err == nil {
		t.Fatal("expected error when isos directory is missing")
	}
}

func TestValidateCompletenessFullRequiresAllFlags(t *testing.T) {
	v := NewValidator(nil)
	b := &models.Backup{BackupType: models.BackupFull, HasSystemCore: true}

	ok, missing := v.ValidateCompleteness(b)
	if ok {
		t.Fatal("expected incompleteness for a full backup missing most components")
	}
	if len(missing) != 5 {
		t.Errorf("missing = %v, want 5 entries", missing)
	}
}

func TestValidateCompletenessApp(t *testing.T) {
	v := NewValidator(nil)
	b := &models.Backup{BackupType: models.BackupApp, HasAppDefinitions: true, HasVolumeData: true}

	ok, missing := v.ValidateCompleteness(b)
	if !ok {
		t.Fatalf("expected app backup to be complete, missing: %v", missing)
	}
}
