package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

func TestCreateIsoStructureTemplate(t *testing.T) {
	m := NewIsoManager(t.TempDir())

	dir, err := m.CreateIsoStructureTemplate(ComponentSystemCore, "b-1")
	if err != nil {
		t.Fatalf("CreateIsoStructureTemplate: %v", err)
	}

	for _, sub := range []string{
		"metadata/manifest.json",
		"scripts/recovery/main.sh",
		"scripts/validation/validate.sh",
		"scripts/transformation/transform.sh",
	} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}
}

func TestValidateIsoStructure(t *testing.T) {
	m := NewIsoManager(t.TempDir())
	dir := t.TempDir()

	ok, err := m.ValidateIsoStructure(filepath.Join(dir, "missing.iso"))
	if err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	nonIso := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(nonIso, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.ValidateIsoStructure(nonIso); ok {
		t.Error("expected non-.iso file to be invalid")
	}

	isoPath := filepath.Join(dir, "component.iso")
	if err := os.WriteFile(isoPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := m.ValidateIsoStructure(isoPath); err != nil || !ok {
		t.Errorf("expected valid .iso file, got ok=%v err=%v", ok, err)
	}
}

func TestCreateIsoFromDirectoryWithEncryption(t *testing.T) {
	m := NewIsoManager(t.TempDir())
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "component.iso")

	path, err := m.CreateIsoFromDirectory(src, out, "label", "aes-256")
	if err != nil {
		t.Fatalf("CreateIsoFromDirectory: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected iso file to exist: %v", err)
	}
	if _, err := os.Stat(out + ".encrypted"); err != nil {
		t.Errorf("expected encryption marker: %v", err)
	}
}

func TestCreateBackupManifestWritesFullLayout(t *testing.T) {
	m := NewIsoManager(t.TempDir())
	backupDir := t.TempDir()

	b := &models.Backup{
		ID:                "42",
		Name:              "nightly",
		CreatedAt:         time.Now(),
		BackupType:        models.BackupFull,
		SourceEnvironment: "prod",
		FormatVersion:     1,
		EncryptionMethod:  "none",
		HasSystemCore:     true,
	}

	if err := m.CreateBackupManifest(b, backupDir); err != nil {
		t.Fatalf("CreateBackupManifest: %v", err)
	}

	for _, rel := range []string{
		"metadata/manifest.json",
		"metadata/backup_info.yaml",
		"metadata/recovery_index.db",
		"metadata/digital_signature/manifest.sig",
		"metadata/digital_signature/backup_info.sig",
		"scripts/recovery/main.sh",
		"scripts/validation/validate.sh",
		"scripts/transformation/transform.sh",
	} {
		if _, err := os.Stat(filepath.Join(backupDir, rel)); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}
}
