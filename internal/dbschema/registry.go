// Package dbschema implements the SchemaRegistry (spec.md §4.1): it turns
// an (artifact, target version) pair into an ordered list of SQL
// statements to execute, reading them from an on-disk directory tree.
//
// Layout (spec.md §6):
//
//	sql/v<N>/{main,platform}_up.sql             (base, required)
//	sql/versions/V<k>/{main,platform}_up.sql    (incremental steps, k=1..N)
//	sql/v<N>/{main,platform}_sample_data.sql    (optional sample data)
//	sql/versions/V<k>/{main,platform}_sample_data.sql
package dbschema

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact selects which schema tree to load: the process-wide main
// database, or the per-platform template.
type Artifact string

const (
	Main     Artifact = "main"
	Platform Artifact = "platform"
)

// Registry reads SQL files under Dir and produces statement lists.
type Registry struct {
	Dir string
}

// New creates a Registry rooted at dir (typically config.SQLDir).
func New(dir string) *Registry {
	return &Registry{Dir: dir}
}

// Load returns the ordered statement list to bring artifact to
// targetVersion: the base file for targetVersion, followed by each
// existing incremental step from 1..=targetVersion.
func (r *Registry) Load(artifact Artifact, targetVersion int) ([]string, error) {
	return r.load(artifact, targetVersion, "_up.sql")
}

// Sample returns the analogous sample-data statement list.
func (r *Registry) Sample(artifact Artifact, targetVersion int) ([]string, error) {
	return r.load(artifact, targetVersion, "_sample_data.sql")
}

func (r *Registry) load(artifact Artifact, targetVersion int, suffix string) ([]string, error) {
	basePath := filepath.Join(r.Dir, fmt.Sprintf("v%d", targetVersion), string(artifact)+suffix)

	base, err := os.ReadFile(basePath)
	if err != nil {
		if suffix == "_sample_data.sql" && os.IsNotExist(err) {
			// Sample data is optional at the base level too.
			base = nil
		} else {
			return nil, fmt.Errorf("reading base file %s: %w", basePath, err)
		}
	}

	var stmts []string
	if len(base) > 0 {
		stmts = append(stmts, SplitStatements(string(base))...)
	}

	for k := 1; k <= targetVersion; k++ {
		stepPath := filepath.Join(r.Dir, "versions", fmt.Sprintf("V%d", k), string(artifact)+suffix)
		content, err := os.ReadFile(stepPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // missing per-version step is skipped silently
			}
			return nil, fmt.Errorf("reading version step %s: %w", stepPath, err)
		}
		stmts = append(stmts, SplitStatements(string(content))...)
	}

	return stmts, nil
}
