package registry

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mook/componenthost/components"
	"github.com/mook/componenthost/parser"
	"github.com/mook/componenthost/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// Style injector that records calls and fails for configured names.
type fakeStyles struct {
	added   []string
	removed []string
	fail    map[string]bool
}

func (f *fakeStyles) Add(name, css string) error {
	f.added = append(f.added, name)
	return nil
}

func (f *fakeStyles) Remove(name string) error {
	if f.fail[name] {
		return errors.New("style injector unavailable")
	}
	f.removed = append(f.removed, name)
	return nil
}

type fixture struct {
	*Registry
	store  *settings.Store
	styles *fakeStyles
	metric *prometheus.Registry
}

func newFixture(t *testing.T, builtins ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:  settings.NewStore(),
		styles: &fakeStyles{fail: make(map[string]bool)},
		metric: prometheus.NewRegistry(),
	}
	f.Registry = New(Config{
		Store:  f.store,
		Parser: parser.YAML{},
		Builtins: components.BuiltinFunc(func() []*components.Metadata {
			var result []*components.Metadata
			for _, name := range builtins {
				result = append(result, &components.Metadata{UserMetadata: components.UserMetadata{Name: name, DisplayName: name}})
			}
			return result
		}),
		Styles:  f.styles,
		Metrics: f.metric,
	})
	return f
}

// Membership of the name index must match membership of the list.
func assertActiveInSync(t *testing.T, r *Registry) {
	t.Helper()
	list := r.Active().List()
	assert.Equal(t, len(list), r.Active().Len())
	for _, m := range list {
		indexed, ok := r.Active().Get(m.Name)
		assert.Assert(t, ok, "%s missing from index", m.Name)
		assert.Equal(t, m, indexed)
	}
}

const clockCode = `
name: clock
displayName: Clock Widget
options:
  format: 24h
instantStyles:
  - name: clock-style
    style: ".clock {}"
  - name: clock-dark
    style: ".dark .clock {}"
`

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	result, err := f.Install(ctx, clockCode)
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(result.Message, "Clock Widget"))
	assert.Assert(t, strings.HasPrefix(result.Message, "Installed"))
	assert.Equal(t, "clock", result.Metadata.Name)

	record, ok := f.store.Get("clock")
	assert.Assert(t, ok)
	assert.Equal(t, clockCode, record.Code)
	assert.Equal(t, "24h", record.Settings.Options["format"])
	assert.Assert(t, record.Settings.Enabled)
	assert.Assert(t, f.Active().Contains("clock"))
	assertActiveInSync(t, f.Registry)

	message, err := f.Toggle(ctx, "Clock Widget")
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(message, "Disabled"))
	assert.Assert(t, is.Contains(message, "Clock Widget"))
	assert.Assert(t, !record.Settings.Enabled)
	assert.Assert(t, f.Active().Contains("clock"), "toggle must not unload")

	result, err = f.Uninstall(ctx, "clock")
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(result.Message, "Uninstalled"))
	assert.Equal(t, "Clock Widget", result.Metadata.DisplayName)
	_, ok = f.store.Get("clock")
	assert.Assert(t, !ok)
	assert.Assert(t, !f.Active().Contains("clock"))
	assertActiveInSync(t, f.Registry)
	assert.DeepEqual(t, []string{"clock-style", "clock-dark"}, f.styles.removed)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.operations.WithLabelValues("install", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.installed))
}

func TestInstallInvalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.Install(t.Context(), "displayName: no name here\n")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.Active().Len())
}

func TestInstallBuiltinCollision(t *testing.T) {
	f := newFixture(t, "api", "pprof")
	_, err := f.Install(t.Context(), clockCode)
	assert.NilError(t, err)

	_, err = f.Install(t.Context(), "name: api\ndisplayName: My API\n")
	assert.ErrorIs(t, err, ErrNameCollision)
	assert.ErrorContains(t, err, "cannot override built-in component")

	// Nothing changed.
	assert.Equal(t, 1, f.store.Len())
	assert.DeepEqual(t, []string{"clock"}, f.Active().Names())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.operations.WithLabelValues("install", "name_collision")))
}

func TestInstallNamesStayUnique(t *testing.T) {
	f := newFixture(t)
	for i := range 3 {
		code := fmt.Sprintf("name: clock\ndisplayName: Clock %d\n", i)
		_, err := f.Install(t.Context(), code)
		assert.NilError(t, err)
	}
	assert.Equal(t, 1, f.store.Len())
	record, _ := f.store.Get("clock")
	assert.Equal(t, "Clock 2", record.Metadata.DisplayName)
	assert.Equal(t, 1, f.Active().Len())
	assertActiveInSync(t, f.Registry)
}

func TestUpdatePreservesSettings(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, err := f.Install(ctx, "name: feed\noptions:\n  tags: [x]\n  limit: 10\n")
	assert.NilError(t, err)

	record, _ := f.store.Get("feed")
	record.Settings.Options["tags"] = []any{"a", "b"}
	record.Settings.Options["limit"] = uint64(25)
	_, err = f.Toggle(ctx, "feed")
	assert.NilError(t, err)

	updated := "name: feed\ndisplayName: Feed v2\noptions:\n  tags: [x, y, z]\n  limit: 10\n  compact: true\n"
	result, err := f.Install(ctx, updated)
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(result.Message, "Updated component 'Feed v2'"))

	assert.Equal(t, updated, record.Code)
	assert.Equal(t, "Feed v2", record.Metadata.DisplayName)
	assert.DeepEqual(t, []any{"a", "b"}, record.Settings.Options["tags"])
	assert.Equal(t, uint64(25), record.Settings.Options["limit"])
	assert.Equal(t, true, record.Settings.Options["compact"])
	assert.Assert(t, !record.Settings.Enabled, "update must keep the enabled flag")

	// The update does not touch the loaded entry.
	loaded, ok := f.Active().Get("feed")
	assert.Assert(t, ok)
	assert.Equal(t, "feed", loaded.DisplayName)
}

func TestToggleTwice(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, err := f.Install(ctx, clockCode)
	assert.NilError(t, err)
	record, _ := f.store.Get("clock")

	message, err := f.Toggle(ctx, "clock")
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(message, "Disabled"))
	assert.Assert(t, !record.Settings.Enabled)

	message, err = f.Toggle(ctx, "clock")
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(message, "Enabled"))
	assert.Assert(t, record.Settings.Enabled)
	assertActiveInSync(t, f.Registry)
}

func TestUnknownComponent(t *testing.T) {
	f := newFixture(t)
	_, err := f.Install(t.Context(), clockCode)
	assert.NilError(t, err)

	_, err = f.Uninstall(t.Context(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Toggle(t.Context(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, f.store.Len())
	assert.DeepEqual(t, []string{"clock"}, f.Active().Names())
	record, _ := f.store.Get("clock")
	assert.Assert(t, record.Settings.Enabled)
}

func TestLookupFirstMatch(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, err := f.Install(ctx, "name: second\ndisplayName: Shared\n")
	assert.NilError(t, err)
	_, err = f.Install(ctx, "name: first\ndisplayName: Shared\n")
	assert.NilError(t, err)

	result, err := f.Uninstall(ctx, "Shared")
	assert.NilError(t, err)
	assert.Equal(t, "second", result.Metadata.Name)
	_, ok := f.store.Get("first")
	assert.Assert(t, ok)
}

func TestUninstallInactive(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, err := f.Install(ctx, clockCode)
	assert.NilError(t, err)
	record, _ := f.store.Get("clock")
	f.Active().Remove("clock")

	_, err = f.Uninstall(ctx, "clock")
	assert.NilError(t, err)
	assert.Assert(t, record.Settings.Enabled, "inactive components are not force-disabled")
	assert.Equal(t, 0, len(f.styles.removed))
	assert.Equal(t, 0, f.store.Len())
}

func TestUninstallStyleFailure(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, err := f.Install(ctx, clockCode)
	assert.NilError(t, err)
	record, _ := f.store.Get("clock")
	f.styles.fail["clock-style"] = true

	_, err = f.Uninstall(ctx, "Clock Widget")
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"clock-dark"}, f.styles.removed)
	assert.Assert(t, !record.Settings.Enabled)
	assert.Assert(t, !f.Active().Contains("clock"))
	assert.Equal(t, 0, f.store.Len())
}

func TestReload(t *testing.T) {
	f := newFixture(t, "api")
	ctx := t.Context()
	_, err := f.Install(ctx, clockCode)
	assert.NilError(t, err)
	_, err = f.Install(ctx, "name: feed\n")
	assert.NilError(t, err)
	_, err = f.Install(ctx, "name: notes\n")
	assert.NilError(t, err)
	_, err = f.Toggle(ctx, "feed")
	assert.NilError(t, err)

	// A record whose code no longer parses.
	broken, _ := f.store.Get("notes")
	broken.Code = "not: [valid"

	err = f.Reload(ctx)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, `"notes"`)
	assert.DeepEqual(t, []string{"api", "clock"}, f.Active().Names())
	assertActiveInSync(t, f.Registry)
	assert.DeepEqual(t, []string{"clock-style", "clock-dark"}, f.styles.added)
	assert.DeepEqual(t, []string{"clock-style", "clock-dark"}, f.styles.removed)

	// Reloading again swaps styles rather than piling them up.
	broken.Code = "name: notes\n"
	f.styles.added, f.styles.removed = nil, nil
	assert.NilError(t, f.Reload(ctx))
	assert.DeepEqual(t, []string{"clock-style", "clock-dark"}, f.styles.removed)
	assert.DeepEqual(t, []string{"clock-style", "clock-dark"}, f.styles.added)
	assert.DeepEqual(t, []string{"api", "clock", "notes"}, f.Active().Names())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.active))
}

func TestListReturnsCopies(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, err := f.Install(ctx, "name: clock\noptions:\n  zones: [UTC]\n")
	assert.NilError(t, err)

	listed := f.List()
	assert.Equal(t, 1, len(listed))
	listed[0].Settings.Enabled = false
	listed[0].Settings.Options["zones"].([]any)[0] = "CET"
	listed[0].Metadata.Options["zones"] = components.OptionDefinition{DefaultValue: "changed"}
	listed[0].Metadata.DisplayName = "changed"

	record, ok := f.store.Get("clock")
	assert.Assert(t, ok)
	assert.Assert(t, record.Settings.Enabled)
	assert.DeepEqual(t, []any{"UTC"}, record.Settings.Options["zones"])
	assert.DeepEqual(t, []any{"UTC"}, record.Metadata.Options["zones"].DefaultValue)
	assert.Equal(t, "clock", record.Metadata.DisplayName)
}

func TestPersist(t *testing.T) {
	ctx := t.Context()
	var r *Registry
	var saves int
	var failure error
	r = New(Config{
		Store:    settings.NewStore(),
		Parser:   parser.YAML{},
		Builtins: components.BuiltinFunc(func() []*components.Metadata { return nil }),
		Persist: func() error {
			assert.Assert(t, !r.lock.TryLock(), "settings must be saved while the registry is locked")
			saves++
			return failure
		},
	})

	_, err := r.Install(ctx, clockCode)
	assert.NilError(t, err)
	_, err = r.Toggle(ctx, "clock")
	assert.NilError(t, err)
	_, err = r.Install(ctx, clockCode)
	assert.NilError(t, err)
	assert.NilError(t, r.Save())
	assert.Equal(t, 4, saves)

	_, err = r.Toggle(ctx, "missing")
	assert.Assert(t, is.ErrorIs(err, ErrNotFound))
	assert.Equal(t, 4, saves, "failed changes are not saved")

	failure = errors.New("disk full")
	_, err = r.Uninstall(ctx, "clock")
	assert.Assert(t, is.ErrorIs(err, failure))
	assert.ErrorContains(t, err, "failed to save settings")
}

func TestWithoutStyleInjector(t *testing.T) {
	ctx := t.Context()
	r := New(Config{
		Store:    settings.NewStore(),
		Parser:   parser.YAML{},
		Builtins: components.BuiltinFunc(func() []*components.Metadata { return nil }),
	})

	_, err := r.Install(ctx, clockCode)
	assert.NilError(t, err)
	assert.NilError(t, r.Reload(ctx))
	assert.Assert(t, r.Active().Contains("clock"))
	_, err = r.Uninstall(ctx, "Clock Widget")
	assert.NilError(t, err)
	assert.NilError(t, r.Reload(ctx))
	assert.Equal(t, 0, r.Active().Len())
}
