package settings

import (
	"github.com/mook/componenthost/components"
)

// Merge reconciles the settings of an installed component with the defaults
// derived from its newly declared metadata.  The existing settings are updated
// in place and returned.
//
// The first pass fills in anything the existing settings lack: missing keys
// take a copy of their default, nested maps are filled recursively and arrays
// are filled index by index.  The second pass puts every option that was an
// array before the merge back to exactly its previous value, so edited lists
// never pick up elements from a new default.
func Merge(existing, defaults *ComponentSettings) *ComponentSettings {
	if existing.Options == nil {
		existing.Options = make(map[string]any)
	}

	arrays := make(map[string]any)
	for name, value := range existing.Options {
		if isArray(value) {
			arrays[name] = components.CloneValue(value)
		}
	}

	fillDefaults(existing.Options, defaults.Options)

	for name, value := range arrays {
		existing.Options[name] = value
	}
	return existing
}

func fillDefaults(target, defaults map[string]any) {
	for key, def := range defaults {
		current, ok := target[key]
		if !ok {
			target[key] = components.CloneValue(def)
			continue
		}
		target[key] = fillValue(current, def)
	}
}

func fillValue(current, def any) any {
	switch c := current.(type) {
	case map[string]any:
		if d, ok := def.(map[string]any); ok {
			fillDefaults(c, d)
		}
	case []any:
		if d, ok := def.([]any); ok {
			result := make([]any, len(c), max(len(c), len(d)))
			for i, item := range c {
				if i < len(d) {
					item = fillValue(item, d[i])
				}
				result[i] = item
			}
			for _, item := range d[min(len(c), len(d)):] {
				result = append(result, components.CloneValue(item))
			}
			return result
		}
	}
	return current
}

func isArray(value any) bool {
	switch value.(type) {
	case []any, []string:
		return true
	}
	return false
}
