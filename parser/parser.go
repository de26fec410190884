// Package parser turns submitted component code into component metadata.
//
// Component code is a YAML document; for example:
//
//	name: clock
//	displayName: Clock Widget
//	options:
//	  format: 24h
//	  zones:
//	    displayName: Time zones
//	    defaultValue: [UTC]
//	instantStyles:
//	  - name: clock-style
//	    style: ".clock { font-weight: bold }"
//
// An option given as a mapping with a `defaultValue` key is taken in full form;
// any other value is shorthand for its default.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/mook/componenthost/components"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrInvalid = errors.New("invalid component code")

	namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
)

type document struct {
	Name          string         `yaml:"name"`
	DisplayName   string         `yaml:"displayName"`
	Description   string         `yaml:"description"`
	Author        string         `yaml:"author"`
	Version       string         `yaml:"version"`
	Tags          []string       `yaml:"tags"`
	Options       map[string]any `yaml:"options"`
	Entry         string         `yaml:"entry"`
	Widget        *widget        `yaml:"widget"`
	InstantStyles []instantStyle `yaml:"instantStyles"`
	Reload        string         `yaml:"reload"`
	Unload        string         `yaml:"unload"`
	Plugin        string         `yaml:"plugin"`
	URLInclude    []string       `yaml:"urlInclude"`
	URLExclude    []string       `yaml:"urlExclude"`
}

type widget struct {
	Content   string `yaml:"content"`
	Condition string `yaml:"condition"`
}

type instantStyle struct {
	Name  string `yaml:"name"`
	Style string `yaml:"style"`
}

// YAML parses component code written as YAML documents.
type YAML struct{}

// Parse returns the metadata declared by the code, or nil if the code is not
// a valid component.
func (YAML) Parse(code string) *components.Metadata {
	return Parse(code)
}

// Parse returns the metadata declared by the code, or nil if the code is not
// a valid component.
func Parse(code string) *components.Metadata {
	m, err := Validate(code)
	if err != nil {
		slog.Debug("rejected component code", "error", err)
		return nil
	}
	return m
}

// Validate parses the code, returning the reason it was rejected if it is not
// a valid component.
func Validate(code string) (*components.Metadata, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}
	var root any
	if err := yaml.Unmarshal([]byte(code), &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, ok := root.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: expected a mapping, got %T", ErrInvalid, root)
	}
	var doc document
	if err := yaml.UnmarshalWithOptions([]byte(code), &doc, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalid)
	}
	if !namePattern.MatchString(doc.Name) {
		return nil, fmt.Errorf("%w: name %q must start with a letter and contain only letters, digits, '-' and '_'", ErrInvalid, doc.Name)
	}
	if doc.DisplayName == "" {
		doc.DisplayName = doc.Name
	}

	m := &components.Metadata{
		UserMetadata: components.UserMetadata{
			Name:        doc.Name,
			DisplayName: doc.DisplayName,
			Description: doc.Description,
			Author:      doc.Author,
			Version:     doc.Version,
			Tags:        doc.Tags,
		},
		RuntimeCapabilities: components.RuntimeCapabilities{
			Entry:      doc.Entry,
			Reload:     doc.Reload,
			Unload:     doc.Unload,
			Plugin:     doc.Plugin,
			URLInclude: doc.URLInclude,
			URLExclude: doc.URLExclude,
		},
	}

	if len(doc.Options) > 0 {
		m.Options = make(map[string]components.OptionDefinition, len(doc.Options))
		for name, raw := range doc.Options {
			option, err := parseOption(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: option %q: %w", ErrInvalid, name, err)
			}
			m.Options[name] = option
		}
	}

	if doc.Widget != nil {
		m.Widget = &components.Widget{Content: doc.Widget.Content, Condition: doc.Widget.Condition}
	}
	for i, s := range doc.InstantStyles {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: instant style %d has no name", ErrInvalid, i)
		}
		m.InstantStyles = append(m.InstantStyles, components.InstantStyle{Name: s.Name, Style: s.Style})
	}
	for _, pattern := range append(doc.URLInclude, doc.URLExclude...) {
		if strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("%w: empty URL pattern", ErrInvalid)
		}
	}

	return m, nil
}

func parseOption(raw any) (components.OptionDefinition, error) {
	var option components.OptionDefinition
	if full, ok := raw.(map[string]any); ok {
		if value, ok := full["defaultValue"]; ok {
			option.DefaultValue = value
			if displayName, ok := full["displayName"].(string); ok {
				option.DisplayName = displayName
			}
			if hidden, ok := full["hidden"].(bool); ok {
				option.Hidden = hidden
			}
		} else {
			option.DefaultValue = raw
		}
	} else {
		option.DefaultValue = raw
	}
	value, err := normalize(option.DefaultValue)
	if err != nil {
		return option, err
	}
	option.DefaultValue = value
	return option, nil
}

// normalize converts a decoded value to plain JSON data: maps with string
// keys, []any, string, float64, bool and nil.  Binary values become base64
// strings.  Non-finite numbers are rejected.
func normalize(raw any) (any, error) {
	value, err := structpb.NewValue(raw)
	if err != nil {
		return nil, err
	}
	if err := checkFinite(value); err != nil {
		return nil, err
	}
	return value.AsInterface(), nil
}

func checkFinite(value *structpb.Value) error {
	switch kind := value.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if math.IsNaN(kind.NumberValue) || math.IsInf(kind.NumberValue, 0) {
			return fmt.Errorf("%v is not a finite number", kind.NumberValue)
		}
	case *structpb.Value_ListValue:
		for _, item := range kind.ListValue.GetValues() {
			if err := checkFinite(item); err != nil {
				return err
			}
		}
	case *structpb.Value_StructValue:
		for _, item := range kind.StructValue.GetFields() {
			if err := checkFinite(item); err != nil {
				return err
			}
		}
	}
	return nil
}
