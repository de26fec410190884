package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mook/componenthost/components"
)

// Reload rebuilds the active component list from the built-in components and
// every enabled user component, replaying each one's stored code.  Instant
// styles of the previously loaded components are removed and those of the
// newly loaded ones are injected.  Components that fail to load are skipped;
// the returned error describes all of them.
func (r *Registry) Reload(ctx context.Context) (err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	defer func() { r.metrics.record("reload", err) }()

	var errs []error

	for _, previous := range r.active.List() {
		for _, s := range previous.InstantStyles {
			if err := r.styles.Remove(s.Name); err != nil {
				slog.DebugContext(ctx, "failed to remove style", "component", previous.Name, "style", s.Name, "error", err)
			}
		}
	}

	builtins := r.builtins.List()
	isBuiltin := make(map[string]bool, len(builtins))
	loaded := make([]*components.Metadata, 0, len(builtins)+r.store.Len())
	for _, builtin := range builtins {
		isBuiltin[builtin.Name] = true
		loaded = append(loaded, builtin)
	}

	for _, record := range r.store.Records() {
		if !record.Settings.Enabled {
			slog.DebugContext(ctx, "skipping disabled component", "name", record.Name())
			continue
		}
		component := r.parser.Parse(record.Code)
		if component == nil {
			errs = append(errs, fmt.Errorf("failed to load component %q: %w", record.Name(), ErrInvalidInput))
			continue
		}
		if component.Name != record.Name() {
			errs = append(errs, fmt.Errorf("failed to load component %q: code declares name %q", record.Name(), component.Name))
			continue
		}
		if isBuiltin[component.Name] {
			errs = append(errs, fmt.Errorf("failed to load component %q: %w with a built-in component", record.Name(), ErrNameCollision))
			continue
		}
		loaded = append(loaded, component)
	}

	for _, component := range loaded {
		for _, s := range component.InstantStyles {
			if err := r.styles.Add(s.Name, s.Style); err != nil {
				errs = append(errs, fmt.Errorf("failed to inject style %q of component %q: %w", s.Name, component.Name, err))
			}
		}
	}

	r.active.Replace(loaded)
	err = errors.Join(errs...)
	if err != nil {
		slog.WarnContext(ctx, "some components failed to load", "error", err)
	}
	slog.InfoContext(ctx, "reloaded components", "active", r.active.Len())
	return err
}
