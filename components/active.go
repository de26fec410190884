package components

import (
	"slices"
	"sync"
)

// ActiveList is the ordered set of currently loaded components together with
// a lookup index by name.  Both are always mutated under the same lock.
type ActiveList struct {
	lock  sync.RWMutex
	list  []*Metadata
	index map[string]*Metadata
}

func NewActiveList() *ActiveList {
	return &ActiveList{index: make(map[string]*Metadata)}
}

// Add appends a component; if one with the same name is already loaded it is
// replaced in place.
func (a *ActiveList) Add(m *Metadata) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if _, ok := a.index[m.Name]; ok {
		i := slices.IndexFunc(a.list, func(it *Metadata) bool { return it.Name == m.Name })
		a.list[i] = m
	} else {
		a.list = append(a.list, m)
	}
	a.index[m.Name] = m
}

// Remove drops the named component, returning it if it was loaded.
func (a *ActiveList) Remove(name string) (*Metadata, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	m, ok := a.index[name]
	if !ok {
		return nil, false
	}
	a.list = slices.DeleteFunc(a.list, func(it *Metadata) bool { return it.Name == name })
	delete(a.index, name)
	return m, true
}

func (a *ActiveList) Get(name string) (*Metadata, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	m, ok := a.index[name]
	return m, ok
}

func (a *ActiveList) Contains(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// List returns a snapshot of the loaded components in load order.
func (a *ActiveList) List() []*Metadata {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return slices.Clone(a.list)
}

func (a *ActiveList) Names() []string {
	a.lock.RLock()
	defer a.lock.RUnlock()
	names := make([]string, 0, len(a.list))
	for _, m := range a.list {
		names = append(names, m.Name)
	}
	return names
}

func (a *ActiveList) Len() int {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return len(a.list)
}

// Replace swaps the whole list; later duplicates of a name replace earlier ones.
func (a *ActiveList) Replace(list []*Metadata) {
	list = slices.Clone(list)
	index := make(map[string]*Metadata, len(list))
	deduped := list[:0]
	for _, m := range list {
		if _, ok := index[m.Name]; ok {
			i := slices.IndexFunc(deduped, func(it *Metadata) bool { return it.Name == m.Name })
			deduped[i] = m
		} else {
			deduped = append(deduped, m)
		}
		index[m.Name] = m
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.list = deduped
	a.index = index
}
