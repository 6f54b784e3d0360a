package jobs

import (
	"fmt"
	"os"
	"sort"

	"vslice/internal/ffmpeg"
)

// ListOutputs returns the regular files in dir whose names match pattern,
// ordered by part index.
func ListOutputs(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ffmpeg.MatchPattern(pattern, entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	// Names share prefix and suffix, so shorter index digits sort first.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	return names, nil
}
