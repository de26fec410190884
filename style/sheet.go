// Package style keeps the named style rules injected by loaded components.
package style

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
)

var ErrUnknownStyle = errors.New("unknown style")

type rule struct {
	name string
	css  string
}

// Sheet is an ordered set of named style rules.
type Sheet struct {
	lock  sync.Mutex
	rules []rule
}

func NewSheet() *Sheet {
	return &Sheet{}
}

// Add a rule; a rule with the same name is replaced in place.
func (s *Sheet) Add(name, css string) error {
	if name == "" {
		return fmt.Errorf("style rule has no name")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if i := s.indexOf(name); i >= 0 {
		s.rules[i].css = css
		return nil
	}
	s.rules = append(s.rules, rule{name: name, css: css})
	return nil
}

// Remove the named rule.
func (s *Sheet) Remove(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	i := s.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w %q", ErrUnknownStyle, name)
	}
	s.rules = slices.Delete(s.rules, i, i+1)
	return nil
}

func (s *Sheet) Names() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	names := make([]string, 0, len(s.rules))
	for _, r := range s.rules {
		names = append(names, r.name)
	}
	return names
}

// WriteTo renders the sheet, each rule preceded by a comment naming it.
func (s *Sheet) WriteTo(w io.Writer) (int64, error) {
	s.lock.Lock()
	var builder strings.Builder
	for _, r := range s.rules {
		fmt.Fprintf(&builder, "/* %s */\n%s\n", r.name, strings.TrimSpace(r.css))
	}
	s.lock.Unlock()
	n, err := io.WriteString(w, builder.String())
	return int64(n), err
}

func (s *Sheet) indexOf(name string) int {
	return slices.IndexFunc(s.rules, func(r rule) bool { return r.name == name })
}
