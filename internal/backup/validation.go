package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// Validator performs the three validation levels of spec.md §4.8:
// structural, deep, and completeness. Each level appends a validation
// record to Backup.metadata and updates LastValidatedAt.
type Validator struct {
	Iso *IsoManager
}

// NewValidator creates a Validator backed by iso for ISO-level checks.
func NewValidator(iso *IsoManager) *Validator {
	return &Validator{Iso: iso}
}

func markValidated(b *models.Backup) {
	now := time.Now()
	b.LastValidatedAt = &now
}

func mergeMetadata(b *models.Backup, key string, value any) {
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	b.Metadata[key] = value
}

// ValidateStructural checks directory existence, manifest presence, at
// least one non-empty ISO, and presence of the recovery/validation
// scripts.
func (v *Validator) ValidateStructural(b *models.Backup, backupDir string) (bool, error) {
	if _, err := os.Stat(backupDir); err != nil {
		return false, fmt.Errorf("backup directory not found: %s", backupDir)
	}

	var errs []string

	manifestPath := filepath.Join(backupDir, "metadata", "manifest.json")
	if _, err := os.Stat(manifestPath); err != nil {
		errs = append(errs, "manifest file not found")
	}

	isosDir := filepath.Join(backupDir, "isos")
	entries, err := os.ReadDir(isosDir)
	if err != nil {
		errs = append(errs, "isos directory not found")
	} else {
		foundNonEmpty := false
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".iso" {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.Size() == 0 {
				errs = append(errs, fmt.Sprintf("empty iso file: %s", e.Name()))
				continue
			}
			foundNonEmpty = true
		}
		if !foundNonEmpty {
			errs = append(errs, "no iso files found in backup")
		}
	}

	if _, err := os.Stat(filepath.Join(backupDir, "scripts", "recovery", "main.sh")); err != nil {
		errs = append(errs, "main recovery script not found")
	}
	if _, err := os.Stat(filepath.Join(backupDir, "scripts", "validation", "validate.sh")); err != nil {
		errs = append(errs, "validation script not found")
	}

	markValidated(b)

	if len(errs) > 0 {
		mergeMetadata(b, "validation", map[string]any{
			"status":    "failed",
			"errors":    errs,
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return false, nil
	}

	mergeMetadata(b, "validation", map[string]any{
		"status":    "success",
		"timestamp": time.Now().Format(time.RFC3339),
	})
	return true, nil
}

// ValidateDeep extracts each ISO in backupDir/isos, verifies that
// metadata/manifest.json parses and data/ exists, and collects the set of
// component types encountered.
func (v *Validator) ValidateDeep(b *models.Backup, backupDir string) (bool, error) {
	isosDir := filepath.Join(backupDir, "isos")
	entries, err := os.ReadDir(isosDir)
	if err != nil {
		return false, fmt.Errorf("isos directory not found: %s", isosDir)
	}

	extractDir := filepath.Join(backupDir, "temp", "validation_extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return false, fmt.Errorf("creating extraction dir: %w", err)
	}
	defer os.RemoveAll(extractDir)

	var errs []string
	var components []string

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".iso" {
			continue
		}

		componentExtractDir := filepath.Join(extractDir, e.Name())
		isoPath := filepath.Join(isosDir, e.Name())

		if _, err := v.Iso.ExtractIsoToDirectory(isoPath, componentExtractDir); err != nil {
			errs = append(errs, fmt.Sprintf("failed to extract iso %s: %v", e.Name(), err))
			continue
		}

		manifestPath := filepath.Join(componentExtractDir, "metadata", "manifest.json")
		manifestBytes, err := os.ReadFile(manifestPath)
		if err != nil {
			errs = append(errs, fmt.Sprintf("missing manifest file in iso: %s", e.Name()))
			continue
		}

		dataDir := filepath.Join(componentExtractDir, "data")
		if info, err := os.Stat(dataDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Sprintf("missing data directory in iso: %s", e.Name()))
			continue
		}

		var parsed map[string]any
		if err := json.Unmarshal(manifestBytes, &parsed); err != nil {
			errs = append(errs, fmt.Sprintf("invalid manifest json in iso %s: %v", e.Name(), err))
			continue
		}
		if ct, ok := parsed["component_type"].(string); ok && ct != "" {
			components = append(components, ct)
		} else if ct := componentTypeFromName(e.Name()); ct != "" {
			components = append(components, ct)
		}
	}

	markValidated(b)

	status := "success"
	if len(errs) > 0 {
		status = "failed"
	}
	mergeMetadata(b, "deep_validation", map[string]any{
		"status":               status,
		"errors":               errs,
		"validated_components": components,
		"timestamp":            time.Now().Format(time.RFC3339),
	})

	return len(errs) == 0, nil
}

// componentTypeFromName recovers the component type from an ISO filename
// of the form "<component>-<node>-<backup_id>.iso", used as a fallback
// when the extracted placeholder manifest carries no component_type.
func componentTypeFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, ct := range []string{ComponentSystemCore, ComponentDirector, ComponentOrchestrator,
		ComponentNetworkConfig, ComponentAppDefinitions, ComponentVolumeData} {
		if strings.HasPrefix(base, ct+"-") {
			return ct
		}
	}
	parts := strings.SplitN(base, "-", 2)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// ValidateCompleteness asserts that, for b's declared backup_type, all the
// required has_* flags are true.
func (v *Validator) ValidateCompleteness(b *models.Backup) (bool, []string) {
	var missing []string

	switch b.BackupType {
	case models.BackupFull:
		if !b.HasSystemCore {
			missing = append(missing, "system core")
		}
		if !b.HasDirectors {
			missing = append(missing, "directors")
		}
		if !b.HasOrchestrators {
			missing = append(missing, "orchestrators")
		}
		if !b.HasNetworkConfig {
			missing = append(missing, "network configuration")
		}
		if !b.HasAppDefinitions {
			missing = append(missing, "application definitions")
		}
		if !b.HasVolumeData {
			missing = append(missing, "volume data")
		}
	case models.BackupSystem:
		if !b.HasSystemCore {
			missing = append(missing, "system core")
		}
		if !b.HasDirectors {
			missing = append(missing, "directors")
		}
		if !b.HasOrchestrators {
			missing = append(missing, "orchestrators")
		}
		if !b.HasNetworkConfig {
			missing = append(missing, "network configuration")
		}
	case models.BackupApp:
		if !b.HasAppDefinitions {
			missing = append(missing, "application definitions")
		}
		if !b.HasVolumeData {
			missing = append(missing, "volume data")
		}
	}

	markValidated(b)

	status := "success"
	if len(missing) > 0 {
		status = "failed"
	}
	mergeMetadata(b, "completeness_validation", map[string]any{
		"status":    status,
		"missing":   missing,
		"timestamp": time.Now().Format(time.RFC3339),
	})

	return len(missing) == 0, missing
}
