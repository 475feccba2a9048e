// Package scope implements the ordered name to value binding tables used
// for instance variables, class variables and local frames.
package scope

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/funvibe/taffy/internal/node"
)

// ErrConstantRedefinition is returned when a CONSTANT binding is set
// a second time.
var ErrConstantRedefinition = errors.New("constant redefinition")

// Data is one binding.
type Data struct {
	Name  string
	Value node.Node
	Flags Flags
}

// Scope is safe for concurrent use. Meta scopes are shared between
// every instance and goroutine, so all access takes the lock.
type Scope struct {
	mu       sync.RWMutex
	order    []*Data
	index    map[string]*Data
	modified bool
}

func New() *Scope {
	return &Scope{index: make(map[string]*Data)}
}

// Set inserts or overwrites name. Overwriting keeps the existing flags
// when flags is NoFlags.
func (s *Scope) Set(name string, value node.Node, flags Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified = true
	if d, ok := s.index[name]; ok {
		if d.Flags.Has(Constant) {
			return fmt.Errorf("%w: %s", ErrConstantRedefinition, name)
		}
		d.Value = value
		if flags != NoFlags {
			d.Flags = flags
		}
		return nil
	}
	d := &Data{Name: name, Value: value, Flags: flags}
	s.index[name] = d
	s.order = append(s.order, d)
	return nil
}

// Update overwrites an existing binding. It reports false when name is
// not bound here.
func (s *Scope) Update(name string, value node.Node) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.index[name]
	if !ok {
		return false, nil
	}
	if d.Flags.Has(Constant) {
		return true, fmt.Errorf("%w: %s", ErrConstantRedefinition, name)
	}
	d.Value = value
	s.modified = true
	return true, nil
}

// Get returns the bound value or nil.
func (s *Scope) Get(name string) node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.index[name]; ok {
		return d.Value
	}
	return nil
}

// Lookup returns a snapshot of the binding.
func (s *Scope) Lookup(name string) (Data, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.index[name]; ok {
		return *d, true
	}
	return Data{}, false
}

func (s *Scope) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[name]
	return ok
}

func (s *Scope) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.index[name]
	if !ok {
		return false
	}
	delete(s.index, name)
	for i, o := range s.order {
		if o == d {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.modified = true
	return true
}

func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Modified reports whether a binding was added or changed since the
// scope was created.
func (s *Scope) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Each visits the bindings in insertion order until fn returns false.
func (s *Scope) Each(fn func(Data) bool) {
	for _, d := range s.Snapshot() {
		if !fn(d) {
			return
		}
	}
}

// Snapshot returns the bindings in insertion order.
func (s *Scope) Snapshot() []Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Data, len(s.order))
	for i, d := range s.order {
		result[i] = *d
	}
	return result
}

// Copy duplicates the bindings. A deep copy also copies every value.
func (s *Scope) Copy(depth node.Depth) *Scope {
	result := New()
	for _, d := range s.Snapshot() {
		value := d.Value
		if depth == node.Deep {
			value = node.Copy(value, depth)
		}
		nd := &Data{Name: d.Name, Value: value, Flags: d.Flags}
		result.index[d.Name] = nd
		result.order = append(result.order, nd)
	}
	return result
}

func (s *Scope) Trace(mark func(node.Node)) {
	for _, d := range s.Snapshot() {
		if d.Value != nil {
			mark(d.Value)
		}
	}
}

// Compare orders two scopes binding by binding.
func (s *Scope) Compare(other *Scope) node.Ordering {
	if s == nil || other == nil {
		if s == other {
			return node.Equal
		}
		return node.Uncomparable
	}
	a, b := s.Snapshot(), other.Snapshot()
	if len(a) != len(b) {
		return node.Uncomparable
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Flags != b[i].Flags {
			return node.Uncomparable
		}
		if o := node.Compare(a[i].Value, b[i].Value); o != node.Equal {
			return node.Uncomparable
		}
	}
	return node.Equal
}

// MarshallTo writes the bindings as ordered name, flags, value triples.
func (s *Scope) MarshallTo(e *node.Encoder) {
	bindings := s.Snapshot()
	e.Write("w", uint32(len(bindings)))
	for _, d := range bindings {
		e.Write("Xwn", d.Name, uint32(d.Flags), d.Value)
	}
}

// UnmarshallFrom replaces the contents with bindings read from d.
func (s *Scope) UnmarshallFrom(d *node.Decoder) error {
	var count uint32
	if err := d.Read("w", &count); err != nil {
		return err
	}
	if uint64(count) > uint64(d.Remaining()) {
		return d.Errorf("scope of %d bindings with %d bytes left", count, d.Remaining())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.index = make(map[string]*Data, count)
	for i := uint32(0); i < count; i++ {
		var (
			name  string
			flags uint32
			value node.Node
		)
		if err := d.Read("Xwn", &name, &flags, &value); err != nil {
			return err
		}
		if _, dup := s.index[name]; dup {
			return d.Errorf("duplicate binding %q", name)
		}
		nd := &Data{Name: name, Value: value, Flags: Flags(flags)}
		s.index[name] = nd
		s.order = append(s.order, nd)
	}
	return nil
}

func (s *Scope) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, d := range s.Snapshot() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Name)
		b.WriteString(": ")
		if d.Value == nil {
			b.WriteString("nil")
		} else {
			b.WriteString(d.Value.String())
		}
	}
	b.WriteString("}")
	return b.String()
}
