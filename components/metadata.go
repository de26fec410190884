package components

import "maps"

// Description of a single option a component declares.
type OptionDefinition struct {
	DisplayName  string `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	DefaultValue any    `yaml:"defaultValue" json:"defaultValue"`
	Hidden       bool   `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// The part of a component's metadata that is persisted alongside its settings.
type UserMetadata struct {
	Name        string                      `yaml:"name" json:"name"`
	DisplayName string                      `yaml:"displayName" json:"displayName"`
	Description string                      `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string                      `yaml:"author,omitempty" json:"author,omitempty"`
	Version     string                      `yaml:"version,omitempty" json:"version,omitempty"`
	Tags        []string                    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Options     map[string]OptionDefinition `yaml:"options,omitempty" json:"options,omitempty"`
}

// A widget contributed to the host UI.
type Widget struct {
	Content   string
	Condition string
}

// A named style rule applied as soon as the component is loaded.
type InstantStyle struct {
	Name  string
	Style string
}

// Execution-time capabilities of a loaded component.  These only live in the
// active list and are never written to the settings store.
type RuntimeCapabilities struct {
	Entry         string
	Widget        *Widget
	InstantStyles []InstantStyle
	Reload        string
	Unload        string
	Plugin        string
	URLInclude    []string
	URLExclude    []string
}

// Metadata describes a component, built-in or user supplied.
type Metadata struct {
	UserMetadata        `yaml:",inline"`
	RuntimeCapabilities `yaml:"-" json:"-"`
}

// Persistable returns a copy of the metadata with all execution-only fields
// stripped.
func (m *Metadata) Persistable() UserMetadata {
	return m.UserMetadata.Clone()
}

// Clone returns a deep copy of the metadata.
func (m UserMetadata) Clone() UserMetadata {
	result := m
	if m.Tags != nil {
		result.Tags = append([]string(nil), m.Tags...)
	}
	if m.Options != nil {
		result.Options = make(map[string]OptionDefinition, len(m.Options))
		for name, option := range m.Options {
			option.DefaultValue = CloneValue(option.DefaultValue)
			result.Options[name] = option
		}
	}
	return result
}

// CloneValue deep copies the maps and slices of a decoded option value; other
// values are returned as is.
func CloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		result := maps.Clone(v)
		for k, item := range result {
			result[k] = CloneValue(item)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = CloneValue(item)
		}
		return result
	case []string:
		return append([]string(nil), v...)
	}
	return value
}
