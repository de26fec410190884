package components

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"golang.org/x/sync/errgroup"
)

// Registry of built-in components.
type Registry struct {
	lock       sync.Mutex
	registered map[string]Component
	enabled    map[string]Component
}

func newRegistry() *Registry {
	return &Registry{
		registered: make(map[string]Component),
		enabled:    make(map[string]Component),
	}
}

var (
	registry = newRegistry()
)

// Register a built-in component.  This should be called from the `init()`
// function of each component's package.
func Register(c Component) {
	registry.register(c)
}

func (r *Registry) register(c Component) {
	r.lock.Lock()
	defer r.lock.Unlock()
	id := c.Metadata().Name
	if _, ok := r.registered[id]; ok {
		panic(fmt.Sprintf("component %q was registered twice", id))
	}
	r.registered[id] = c
}

func (r *Registry) builtins() []*Metadata {
	r.lock.Lock()
	defer r.lock.Unlock()
	result := make([]*Metadata, 0, len(r.registered))
	for _, c := range r.registered {
		result = append(result, c.Metadata())
	}
	slices.SortFunc(result, func(a, b *Metadata) int { return strings.Compare(a.Name, b.Name) })
	return result
}

// Load the host configuration from a reader; this configures the built-in
// components named in it, plus their dependencies.
func LoadConfiguration(ctx context.Context, configFile io.Reader) error {
	return registry.loadConfiguration(ctx, configFile)
}

func (r *Registry) loadConfiguration(ctx context.Context, configFile io.Reader) error {
	decoder := yaml.NewDecoder(configFile, yaml.DisallowUnknownField())
	config := make(map[string]ast.Node)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	// Loop and initialize default configuration for all dependencies.
	gotNewComponents := true
	for gotNewComponents {
		gotNewComponents = false
		for k := range config {
			c := r.registered[k]
			if c == nil {
				slog.WarnContext(ctx, "Ignoring unsupported component", "id", k)
				delete(config, k)
				continue
			}
			for _, dep := range c.Dependencies() {
				if _, ok := config[dep]; !ok {
					gotNewComponents = true
					config[dep] = nil
					slog.DebugContext(ctx, "auto-loading dependency", "component", k, "requires", dep)
				}
			}
		}
	}

	for name, componentConfig := range config {
		c := r.registered[name]
		slog.DebugContext(ctx, "configuring component", "component", name)
		err := c.Configure(ctx, func(input any) error {
			if componentConfig == nil {
				return nil // No configuration; stay with defaults.
			}
			return decoder.DecodeFromNodeContext(ctx, componentConfig, input)
		})
		if err != nil {
			return fmt.Errorf("failed to configure component %q: %w", name, err)
		}
		r.enabled[name] = c
	}

	return nil
}

// Start the configured built-in components.
func StartComponents(ctx context.Context) error {
	return registry.start(ctx)
}

func (r *Registry) start(ctx context.Context) error {
	r.lock.Lock()
	enabled := slices.Collect(maps.Values(r.enabled))
	r.lock.Unlock()

	errGroup := errgroup.Group{}
	for _, component := range enabled {
		errGroup.Go(func() error { return component.Start(ctx) })
	}
	if err := errGroup.Wait(); err != nil {
		return fmt.Errorf("failed to start components: %w", err)
	}
	return nil
}
