package chunk

import (
	"log/slog"
	"strings"
)

// Merge concatenates per-chunk rule lists in chunk order and deduplicates
// them in a single linear pass.
//
// Lines that are blank after trimming, or start with '!' or '#' after
// trimming, are structural (comments and separators) and are always kept.
// Every other line is kept only the first time its exact untrimmed text is
// seen, so first-seen order is preserved. Returns the merged list and the
// number of duplicates removed.
func Merge(chunkResults [][]string) ([]string, int) {
	slog.Info("merging chunks", "chunks", len(chunkResults))

	total := 0
	for _, rules := range chunkResults {
		total += len(rules)
	}

	seen := make(map[string]struct{}, total)
	merged := make([]string, 0, total)

	for _, rules := range chunkResults {
		for _, rule := range rules {
			trimmed := strings.TrimSpace(rule)

			if trimmed == "" || strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "#") {
				merged = append(merged, rule)
				continue
			}

			if _, dup := seen[rule]; dup {
				continue
			}
			seen[rule] = struct{}{}
			merged = append(merged, rule)
		}
	}

	removed := total - len(merged)
	slog.Info("merge complete", "rules", len(merged), "duplicates_removed", removed)
	return merged, removed
}
