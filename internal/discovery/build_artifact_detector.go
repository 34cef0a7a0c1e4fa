package discovery

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// buildArtifactPatterns returns glob exclude patterns inferred from
// project-type manifests found at the project root, following the
// teacher's BuildArtifactDetector: a Cargo.toml implies target/, a
// pyproject.toml implies the usual Python build/egg-info directories. These
// patterns are merged with the caller's exclude globs before the walk, so a
// project that forgot to list its own build directory still gets it
// excluded by default.
func buildArtifactPatterns(projectRoot string) []string {
	var patterns []string

	if data, err := os.ReadFile(filepath.Join(projectRoot, "Cargo.toml")); err == nil {
		var doc struct {
			Package struct {
				Name string `toml:"name"`
			} `toml:"package"`
		}
		if toml.Unmarshal(data, &doc) == nil {
			patterns = append(patterns, "**/target/**")
		}
	}

	if data, err := os.ReadFile(filepath.Join(projectRoot, "pyproject.toml")); err == nil {
		var doc struct {
			Project struct {
				Name string `toml:"name"`
			} `toml:"project"`
		}
		if toml.Unmarshal(data, &doc) == nil {
			patterns = append(patterns,
				"**/build/**",
				"**/*.egg-info/**",
				"**/__pycache__/**",
				"**/.venv/**",
			)
		}
	}

	return patterns
}
