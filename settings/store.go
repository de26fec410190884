package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-yaml"
)

// On-disk layout of the settings file.  Records are kept as a sequence so the
// installation order survives a round trip.
type file struct {
	UserComponents []*Record `yaml:"userComponents"`
}

// Store of user component records, keyed by component name and kept in
// installation order.  A Store is not safe for concurrent use; callers
// serialize access.
type Store struct {
	path    string
	names   []string
	records map[string]*Record
}

// NewStore returns an empty store that is not backed by a file.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Open loads the store from the given file; a missing file yields an empty
// store that will be created on the first save.
func Open(path string) (*Store, error) {
	s := NewStore()
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	var contents file
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	for i, record := range contents.UserComponents {
		if record == nil || record.Name() == "" {
			return nil, fmt.Errorf("settings file %s: record %d has no name", path, i)
		}
		if _, ok := s.records[record.Name()]; ok {
			return nil, fmt.Errorf("settings file %s: duplicate component %q", path, record.Name())
		}
		if record.Settings == nil {
			record.Settings = Defaults(record.Metadata)
		}
		if record.Settings.Options == nil {
			record.Settings.Options = make(map[string]any)
		}
		s.Put(record)
	}
	return s, nil
}

// Path of the backing file, if any.
func (s *Store) Path() string {
	return s.path
}

// Save writes the store to its backing file; stores without one are not saved.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(&file{UserComponents: s.Records()})
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", err)
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(temp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

func (s *Store) Get(name string) (*Record, bool) {
	r, ok := s.records[name]
	return r, ok
}

// Put stores a record under its name.  New names go to the end of the order;
// existing names keep their position.
func (s *Store) Put(r *Record) {
	name := r.Name()
	if _, ok := s.records[name]; !ok {
		s.names = append(s.names, name)
	}
	s.records[name] = r
}

// Delete removes the named record, reporting whether it existed.
func (s *Store) Delete(name string) bool {
	if _, ok := s.records[name]; !ok {
		return false
	}
	delete(s.records, name)
	s.names = slices.DeleteFunc(s.names, func(it string) bool { return it == name })
	return true
}

// Records in installation order.
func (s *Store) Records() []*Record {
	result := make([]*Record, 0, len(s.names))
	for _, name := range s.names {
		result = append(result, s.records[name])
	}
	return result
}

// Find returns the first record, in installation order, matching the predicate.
func (s *Store) Find(match func(*Record) bool) (*Record, bool) {
	for _, name := range s.names {
		if r := s.records[name]; match(r) {
			return r, true
		}
	}
	return nil, false
}

func (s *Store) Len() int {
	return len(s.names)
}
