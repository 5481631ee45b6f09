// Package metadata updates the document information dictionary.
package metadata

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/digitorus/pdfmu/revision"
)

// Reserved keys are maintained by the writer and cannot be set by callers.
var Reserved = []string{"Producer", "ModDate"}

// Warning records an update that was not applied.
type Warning struct {
	Key   string
	Value string
}

func (w Warning) String() string {
	return fmt.Sprintf("The property %s is set automatically. The value %q will be ignored.", w.Key, w.Value)
}

func isReserved(key string) bool {
	for _, r := range Reserved {
		if r == key {
			return true
		}
	}
	return false
}

// Merge applies updates to a copy of existing. Reserved keys keep their
// existing value and produce a warning. An empty value removes the key.
func Merge(existing, updates map[string]string) (map[string]string, []Warning) {
	result := make(map[string]string, len(existing)+len(updates))
	for k, v := range existing {
		result[k] = v
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var warnings []Warning
	for _, k := range keys {
		v := updates[k]
		if isReserved(k) {
			w := Warning{Key: k, Value: v}
			log.Printf("Warning: %s", w)
			warnings = append(warnings, w)
			continue
		}
		if v == "" {
			delete(result, k)
			continue
		}
		result[k] = v
	}
	return result, warnings
}

// Apply merges updates into the current information dictionary and writes
// the result as part of the revision.
func Apply(existing, updates map[string]string, w *revision.Writer, now time.Time) ([]Warning, error) {
	merged, warnings := Merge(existing, updates)
	if err := w.SetInfo(merged, now); err != nil {
		return warnings, fmt.Errorf("failed to write info dictionary: %w", err)
	}
	return warnings, nil
}
