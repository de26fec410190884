// Package settings holds the persisted record of every user installed
// component: the code it was installed from, its metadata, and its settings.
package settings

import (
	"github.com/mook/componenthost/components"
)

// Enable flag and option values of one component.
type ComponentSettings struct {
	Enabled bool           `yaml:"enabled" json:"enabled"`
	Options map[string]any `yaml:"options" json:"options"`
}

// Record of one user installed component.
type Record struct {
	Code     string                  `yaml:"code" json:"code"`
	Metadata components.UserMetadata `yaml:"metadata" json:"metadata"`
	Settings *ComponentSettings      `yaml:"settings" json:"settings"`
}

// Name of the component this record belongs to.
func (r *Record) Name() string {
	return r.Metadata.Name
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	result := &Record{Code: r.Code, Metadata: r.Metadata.Clone()}
	if r.Settings != nil {
		result.Settings = r.Settings.Clone()
	}
	return result
}

// Clone returns a deep copy of the settings.
func (s *ComponentSettings) Clone() *ComponentSettings {
	result := &ComponentSettings{Enabled: s.Enabled}
	if s.Options != nil {
		result.Options = components.CloneValue(s.Options).(map[string]any)
	}
	return result
}

// Defaults returns the settings of a freshly installed component: enabled, with
// every option at its declared default.
func Defaults(metadata components.UserMetadata) *ComponentSettings {
	options := make(map[string]any, len(metadata.Options))
	for name, option := range metadata.Options {
		options[name] = components.CloneValue(option.DefaultValue)
	}
	return &ComponentSettings{Enabled: true, Options: options}
}
