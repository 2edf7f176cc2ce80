// Package health implements the device health-assessment engine:
// weighted deviation/trend/stability/alarm scoring, tag-importance
// resolution, cross-tag correlation checks, and the multi-scale
// composite.
package health

import (
	"path"
	"sort"

	"github.com/leopark123/intellimaint-pro/internal/model"
)

// ResolveImportance matches tagID against rules' glob patterns in
// descending Priority, returning the first enabled match's level.
// Unmatched tags fall back to defaultLevel.
func ResolveImportance(tagID string, rules []model.TagImportanceRule, defaultLevel model.TagImportanceLevel) model.TagImportanceLevel {
	ordered := make([]model.TagImportanceRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	for _, r := range ordered {
		if matched, err := path.Match(r.Pattern, tagID); err == nil && matched {
			return r.Importance
		}
	}
	return defaultLevel
}
