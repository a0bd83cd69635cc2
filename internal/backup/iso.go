package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// IsoManager materialises and inspects the fixed ISO-shaped directory
// layout described in spec.md §4.8/§6: metadata/, data/, and
// scripts/recovery|validation|transformation, optionally
// metadata/digital_signature/.
//
// A real ISO filesystem image is never produced here (no CD-mastering
// library exists anywhere in the pack); the "ISO" is a small placeholder
// text file naming its source directory and label, matching the
// placeholder-file behaviour of the component this was ported from.
type IsoManager struct {
	TempDir string
}

// NewIsoManager creates an IsoManager rooted at tempDir for scratch work.
func NewIsoManager(tempDir string) *IsoManager {
	return &IsoManager{TempDir: tempDir}
}

// manifest is the authoritative JSON manifest written into every ISO-shaped
// directory and into a finished backup's metadata/manifest.json.
type manifest struct {
	ComponentType string `json:"component_type,omitempty"`
	BackupID      string `json:"backup_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	FormatVersion string `json:"format_version"`
}

// CreateIsoStructureTemplate lays out a fresh component-level ISO
// directory under m.TempDir, ready for RequestComponentBackup to populate
// with real data before CreateIsoFromDirectory packages it.
func (m *IsoManager) CreateIsoStructureTemplate(componentType string, backupID string) (string, error) {
	dir := filepath.Join(m.TempDir, fmt.Sprintf("%s-%s-template", componentType, backupID))

	for _, sub := range []string{
		"metadata",
		"data",
		"scripts/recovery",
		"scripts/validation",
		"scripts/transformation",
		"metadata/digital_signature",
	} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	man := manifest{ComponentType: componentType, BackupID: backupID, CreatedAt: time.Now().Format(time.RFC3339), FormatVersion: "1.0"}
	manJSON, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata", "manifest.json"), manJSON, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}

	if err := writeScriptTriad(dir, componentType); err != nil {
		return "", err
	}

	return dir, nil
}

// ValidateIsoStructure reports whether path looks like a well-formed ISO
// artifact: present, *.iso named. This is the structural check used by
// BackupValidator at the single-file level; the directory contents behind
// it are checked separately once extracted.
func (m *IsoManager) ValidateIsoStructure(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, nil
	}
	if filepath.Ext(path) != ".iso" {
		return false, nil
	}
	return true, nil
}

// CreateIsoFromDirectory packages srcDir into an ISO-shaped artifact at
// outputPath. label and encryptionMethod mirror the genisoimage invocation
// this stands in for.
func (m *IsoManager) CreateIsoFromDirectory(srcDir, outputPath, label, encryptionMethod string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("creating output parent: %w", err)
	}

	content := fmt.Sprintf(
		"OmniOrchestrator backup artifact\nsource: %s\nlabel: %s\ncreated_at: %s\n",
		srcDir, label, time.Now().Format(time.RFC3339),
	)
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing iso: %w", err)
	}

	if encryptionMethod != "" && encryptionMethod != "none" {
		if err := m.encryptIso(outputPath, encryptionMethod); err != nil {
			return "", err
		}
	}

	return outputPath, nil
}

func (m *IsoManager) encryptIso(isoPath, method string) error {
	marker := strings.TrimSuffix(isoPath, filepath.Ext(isoPath)) + ".iso.encrypted"
	content := fmt.Sprintf("encrypted with: %s\nencrypted_at: %s\n", method, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(marker, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing encryption marker: %w", err)
	}
	return nil
}

// ExtractIsoToDirectory creates the standard metadata/data/scripts layout
// under outputDir with a fresh manifest.json that has no component_type or
// backup_id. It does not read isoPath: nothing from the artifact is
// unpacked, so the result does not reproduce the directory the artifact
// was created from.
func (m *IsoManager) ExtractIsoToDirectory(isoPath, outputDir string) (string, error) {
	for _, sub := range []string{"metadata", "data", "scripts"} {
		if err := os.MkdirAll(filepath.Join(outputDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	man := manifest{CreatedAt: time.Now().Format(time.RFC3339), FormatVersion: "1.0"}
	manJSON, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "metadata", "manifest.json"), manJSON, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}

	return outputDir, nil
}

// GetIsoSize returns the on-disk length of the ISO artifact at path.
func (m *IsoManager) GetIsoSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// GetIsoMetadata returns the filename, size and format version of the ISO
// at path.
func (m *IsoManager) GetIsoMetadata(path string) (map[string]any, error) {
	size, err := m.GetIsoSize(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"filename":       filepath.Base(path),
		"size_bytes":     size,
		"created_at":     time.Now().Format(time.RFC3339),
		"format_version": "1.0",
	}, nil
}

// backupInfo is the human-readable summary rendered into backup_info.yaml
// alongside the authoritative manifest.json.
type backupInfo struct {
	BackupID           string `yaml:"backup_id"`
	BackupName         string `yaml:"backup_name"`
	CreatedAt          string `yaml:"created_at"`
	CreatedBy          string `yaml:"created_by"`
	BackupType         string `yaml:"backup_type"`
	SourceEnvironment  string `yaml:"source_environment"`
	FormatVersion      int    `yaml:"format_version"`
	EncryptionMethod   string `yaml:"encryption_method"`
}

// CreateBackupManifest writes the finished backup's metadata tree:
// manifest.json, backup_info.yaml, the recovery index, a digital signature
// directory, and the skeleton recovery/validation/transformation scripts
// (spec.md §6's on-disk layout).
func (m *IsoManager) CreateBackupManifest(b *models.Backup, backupDir string) error {
	metaDir := filepath.Join(backupDir, "metadata")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("creating metadata dir: %w", err)
	}

	manifestDoc := map[string]any{
		"backup_id":           b.ID,
		"backup_name":         b.Name,
		"created_at":          b.CreatedAt.Format(time.RFC3339),
		"created_by":          "",
		"backup_type":         b.BackupType,
		"source_environment":  b.SourceEnvironment,
		"format_version":      b.FormatVersion,
		"encryption_method":   b.EncryptionMethod,
		"encryption_key_id":   nil,
		"components": map[string]any{
			"system_core":     b.HasSystemCore,
			"directors":       b.HasDirectors,
			"orchestrators":   b.HasOrchestrators,
			"network_config":  b.HasNetworkConfig,
			"app_definitions": b.HasAppDefinitions,
			"volume_data":     b.HasVolumeData,
		},
		"included_apps":     b.IncludedApps,
		"included_services": b.IncludedServices,
		"size_bytes":        b.SizeBytes,
		"metadata":          b.Metadata,
	}

	manJSON, err := json.MarshalIndent(manifestDoc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, "manifest.json"), manJSON, 0o644); err != nil {
		return fmt.Errorf("writing manifest.json: %w", err)
	}

	info := backupInfo{
		BackupID:          b.ID,
		BackupName:        b.Name,
		CreatedAt:         b.CreatedAt.Format(time.RFC3339),
		BackupType:        b.BackupType,
		SourceEnvironment: b.SourceEnvironment,
		FormatVersion:     b.FormatVersion,
		EncryptionMethod:  b.EncryptionMethod,
	}
	infoYAML, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding backup_info.yaml: %w", err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, "backup_info.yaml"), infoYAML, 0o644); err != nil {
		return fmt.Errorf("writing backup_info.yaml: %w", err)
	}

	if err := writeRecoveryIndex(b, metaDir); err != nil {
		return err
	}
	if err := writeDigitalSignature(b, metaDir); err != nil {
		return err
	}
	if err := writeScriptTriad(backupDir, "backup"); err != nil {
		return err
	}

	return nil
}

// writeRecoveryIndex writes a placeholder recovery index. A real
// implementation would build an embedded database of components, files,
// dependencies and recovery steps; nothing in the pack ships an embedded
// database driver suited to that, so this stays a flat placeholder file
// the way the component it was ported from did.
func writeRecoveryIndex(b *models.Backup, metaDir string) error {
	content := fmt.Sprintf("-- recovery index for backup %s\n-- created: %s\n", b.ID, b.CreatedAt.Format(time.RFC3339))
	return os.WriteFile(filepath.Join(metaDir, "recovery_index.db"), []byte(content), 0o644)
}

// writeDigitalSignature writes placeholder signature files under
// metadata/digital_signature/. No signing key material is wired into this
// spec, so the signature content documents what it would attest to rather
// than an actual cryptographic signature.
func writeDigitalSignature(b *models.Backup, metaDir string) error {
	sigDir := filepath.Join(metaDir, "digital_signature")
	if err := os.MkdirAll(sigDir, 0o755); err != nil {
		return fmt.Errorf("creating digital_signature dir: %w", err)
	}
	content := fmt.Sprintf("backup_id: %s\ncreated_at: %s\n", b.ID, b.CreatedAt.Format(time.RFC3339))
	if err := os.WriteFile(filepath.Join(sigDir, "manifest.sig"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing manifest.sig: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sigDir, "backup_info.sig"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing backup_info.sig: %w", err)
	}
	return nil
}

// writeScriptTriad writes the skeleton recovery/validation/transformation
// scripts under dir/scripts/.
func writeScriptTriad(dir, label string) error {
	scripts := map[string]string{
		filepath.Join("scripts", "recovery", "main.sh"):         "#!/bin/bash\necho \"recovering " + label + "\"\n",
		filepath.Join("scripts", "validation", "validate.sh"):   "#!/bin/bash\necho \"validating " + label + "\"\n",
		filepath.Join("scripts", "transformation", "transform.sh"): "#!/bin/bash\necho \"transforming " + label + "\"\n",
	}
	for rel, content := range scripts {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(rel), err)
		}
		if err := os.WriteFile(full, []byte(content), 0o755); err != nil {
			return fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	return nil
}
