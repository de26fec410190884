// Package components holds the component model shared by built-in and user
// installed components, the set of built-ins shipped with the host, and the
// list of currently active components.
package components

import (
	"context"
)

// Common interface for built-in components; each one must implement this.
type Component interface {
	// Get the metadata of the component; the name is its unique ID.
	Metadata() *Metadata
	// Get the components this componet depends on.
	Dependencies() []string
	// Configure the component; the loader function should be called to parse the
	// configuration, passing in a structure to decode from the YAML.
	Configure(ctx context.Context, load func(any) error) error
	// Start the component, likely in a goroutine.  The component should shut
	// down when the context is done.
	Start(ctx context.Context) error
}

// BuiltinFunc adapts a function into a provider of built-in component metadata.
type BuiltinFunc func() []*Metadata

func (f BuiltinFunc) List() []*Metadata {
	return f()
}

// Builtins lists the metadata of every registered built-in component.
var Builtins = BuiltinFunc(func() []*Metadata {
	return registry.builtins()
})
