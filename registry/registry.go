// Package registry installs, updates, uninstalls and toggles user components,
// keeping the settings store, the active component list and its name index
// consistent with each other.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mook/componenthost/components"
	"github.com/mook/componenthost/settings"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// The submitted code does not describe a valid component.
	ErrInvalidInput = errors.New("invalid component code")
	// The component would override a built-in component.
	ErrNameCollision = errors.New("name collision")
	// No installed component has the given name or display name.
	ErrNotFound = errors.New("component not found")
)

// Parser turns component code into metadata; it returns nil for invalid code.
type Parser interface {
	Parse(code string) *components.Metadata
}

// BuiltinProvider lists the components shipped with the host.
type BuiltinProvider interface {
	List() []*components.Metadata
}

// StyleInjector applies and removes named style rules.
type StyleInjector interface {
	Add(name, css string) error
	Remove(name string) error
}

// Config carries the collaborators of a Registry.
type Config struct {
	Store    *settings.Store
	Parser   Parser
	Builtins BuiltinProvider
	Styles   StyleInjector
	Active   *components.ActiveList
	// Persist, when set, writes the store after every successful change while
	// the registry is still locked.
	Persist func() error
	// Metrics are registered here when set.
	Metrics prometheus.Registerer
}

// Result of installing or uninstalling a component.
type Result struct {
	Metadata *components.Metadata `json:"metadata"`
	Message  string               `json:"message"`
}

type Registry struct {
	lock     sync.Mutex
	store    *settings.Store
	parser   Parser
	builtins BuiltinProvider
	styles   StyleInjector
	active   *components.ActiveList
	persist  func() error
	metrics  *metrics
}

// noStyles is used when no style injector is configured.
type noStyles struct{}

func (noStyles) Add(name, css string) error { return nil }
func (noStyles) Remove(name string) error   { return nil }

func New(config Config) *Registry {
	active := config.Active
	if active == nil {
		active = components.NewActiveList()
	}
	var styles StyleInjector = noStyles{}
	if config.Styles != nil {
		styles = config.Styles
	}
	r := &Registry{
		store:    config.Store,
		parser:   config.Parser,
		builtins: config.Builtins,
		styles:   styles,
		active:   active,
		persist:  config.Persist,
		metrics:  newMetrics(config.Metrics),
	}
	r.metrics.observe(r)
	return r
}

// Active returns the list of currently loaded components.
func (r *Registry) Active() *components.ActiveList {
	return r.active
}

// List the installed user components in installation order.  The records are
// copies; changing them does not affect the registry.
func (r *Registry) List() []*settings.Record {
	r.lock.Lock()
	defer r.lock.Unlock()
	records := r.store.Records()
	for i, record := range records {
		records[i] = record.Clone()
	}
	return records
}

// Save persists the settings store, if persistence is configured.
func (r *Registry) Save() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.save()
}

func (r *Registry) save() error {
	if r.persist == nil {
		return nil
	}
	if err := r.persist(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Install a component from its code, or update it if a component with the
// same name is already installed.  Changes take effect after a reload.
func (r *Registry) Install(ctx context.Context, code string) (result *Result, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	defer func() { r.metrics.record("install", err) }()

	component := r.parser.Parse(code)
	if component == nil {
		return nil, ErrInvalidInput
	}
	for _, builtin := range r.builtins.List() {
		if builtin.Name == component.Name {
			return nil, fmt.Errorf("%w: cannot override built-in component %q, choose another name", ErrNameCollision, component.Name)
		}
	}
	userMetadata := component.Persistable()

	if existing, ok := r.store.Get(component.Name); ok {
		existing.Code = code
		existing.Metadata = userMetadata
		settings.Merge(existing.Settings, settings.Defaults(userMetadata))
		if err := r.save(); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "updated component", "name", component.Name)
		return &Result{
			Metadata: component,
			Message:  fmt.Sprintf("Updated component '%s', reload required", component.DisplayName),
		}, nil
	}

	r.store.Put(&settings.Record{
		Code:     code,
		Metadata: userMetadata,
		Settings: settings.Defaults(userMetadata),
	})
	r.active.Add(component)
	if err := r.save(); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "installed component", "name", component.Name)
	return &Result{
		Metadata: component,
		Message:  fmt.Sprintf("Installed component '%s', reload required", component.DisplayName),
	}, nil
}

// Uninstall the component with the given name or display name.
func (r *Registry) Uninstall(ctx context.Context, nameOrDisplayName string) (result *Result, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	defer func() { r.metrics.record("uninstall", err) }()

	record, err := r.find(nameOrDisplayName)
	if err != nil {
		return nil, err
	}
	name := record.Name()
	if loaded, ok := r.active.Get(name); ok {
		for _, s := range loaded.InstantStyles {
			if err := r.styles.Remove(s.Name); err != nil {
				slog.WarnContext(ctx, "failed to remove style", "component", name, "style", s.Name, "error", err)
			}
		}
		// Anything still holding these settings must see the component as off.
		record.Settings.Enabled = false
		r.active.Remove(name)
	}
	r.store.Delete(name)
	if err := r.save(); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "uninstalled component", "name", name)

	metadata := &components.Metadata{UserMetadata: record.Metadata}
	return &Result{
		Metadata: metadata,
		Message:  fmt.Sprintf("Uninstalled component '%s', reload required", metadata.DisplayName),
	}, nil
}

// Toggle whether the component with the given name or display name is enabled.
// The loaded components are not changed until the next reload.
func (r *Registry) Toggle(ctx context.Context, nameOrDisplayName string) (message string, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	defer func() { r.metrics.record("toggle", err) }()

	record, err := r.find(nameOrDisplayName)
	if err != nil {
		return "", err
	}
	record.Settings.Enabled = !record.Settings.Enabled
	state := "Disabled"
	if record.Settings.Enabled {
		state = "Enabled"
	}
	if err := r.save(); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "toggled component", "name", record.Name(), "enabled", record.Settings.Enabled)
	return fmt.Sprintf("%s component '%s', reload may be required", state, record.Metadata.DisplayName), nil
}

// Find the first record, in installation order, matching by name or display name.
func (r *Registry) find(nameOrDisplayName string) (*settings.Record, error) {
	record, ok := r.store.Find(func(it *settings.Record) bool {
		return it.Name() == nameOrDisplayName || it.Metadata.DisplayName == nameOrDisplayName
	})
	if !ok {
		return nil, fmt.Errorf("%w: no component is associated with the name %q", ErrNotFound, nameOrDisplayName)
	}
	return record, nil
}
