package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/scope"
	"github.com/funvibe/taffy/internal/store"
)

// stores shares one open database per path for the runtime's life.
type stores struct {
	mu   sync.Mutex
	open map[string]*store.Store
}

// OpenStore returns the store at path, opening it on first use. An
// empty path selects the configured one, or memory when none is set.
func (rt *Runtime) OpenStore(ctx context.Context, path string) (*store.Store, error) {
	if path == "" {
		path = rt.cfg.Store.Path
	}
	if path == "" {
		path = store.MemoryPath
	}
	rt.stores.mu.Lock()
	defer rt.stores.mu.Unlock()
	if s, ok := rt.stores.open[path]; ok {
		return s, nil
	}
	s, err := store.Open(ctx, path, rt.logger)
	if err != nil {
		return nil, err
	}
	if rt.stores.open == nil {
		rt.stores.open = make(map[string]*store.Store)
	}
	rt.stores.open[path] = s
	return s, nil
}

func (rt *Runtime) closeStores() {
	rt.stores.mu.Lock()
	defer rt.stores.mu.Unlock()
	for path, s := range rt.stores.open {
		if err := s.Close(); err != nil {
			rt.logger.Warn("closing store failed", "path", path, "error", err)
		}
	}
	rt.stores.open = nil
}

// persistentGlobal reports whether a global is saved by SaveGlobals.
func (rt *Runtime) persistentGlobal(name string) bool {
	return name != config.IOObjectName && name != config.KernelObjectName
}

// SaveGlobals writes every global binding to the globals bucket of s.
// Values that cannot be marshalled are skipped with a warning.
func (rt *Runtime) SaveGlobals(ctx context.Context, s *store.Store) error {
	saved := 0
	for _, d := range rt.globals.Snapshot() {
		if !rt.persistentGlobal(d.Name) {
			continue
		}
		o := rt.asObject(d.Value)
		data, err := marshallSafely(o)
		if err != nil {
			rt.logger.Warn("global not saved", "name", d.Name, "error", err)
			continue
		}
		if _, err := s.Put(ctx, store.BucketGlobals, d.Name, o.template.FullName(), data); err != nil {
			return err
		}
		saved++
	}
	rt.logger.Debug("globals saved", "count", saved, "store", s.Path())
	return nil
}

// LoadGlobals binds every value of the globals bucket of s as a
// global. A record that fails to decode stops the load.
func (rt *Runtime) LoadGlobals(ctx context.Context, s *store.Store) error {
	keys, err := s.Keys(ctx, store.BucketGlobals)
	if err != nil {
		return err
	}
	for _, name := range keys {
		rec, err := s.Get(ctx, store.BucketGlobals, name)
		if err != nil {
			return err
		}
		o, err := rt.Unmarshall(rec.Data)
		if err != nil {
			return fmt.Errorf("global %s: %w", name, err)
		}
		if err := rt.globals.Set(name, o, scope.NoFlags); err != nil {
			return fmt.Errorf("global %s: %w", name, err)
		}
		rt.gc.RegisterTree(o)
	}
	rt.logger.Debug("globals loaded", "count", len(keys), "store", s.Path())
	return nil
}

var errUnmarshallable = errors.New("value cannot be marshalled")

// marshallSafely turns marshaller assertion panics into an error.
func marshallSafely(o *Object) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errUnmarshallable, r)
		}
	}()
	return Marshall(o), nil
}
