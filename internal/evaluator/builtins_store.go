package evaluator

import (
	"errors"
	"sync"

	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/store"
)

// storeHandle is the aux of a Store object. Handles share the
// runtime's database for their path.
type storeHandle struct {
	mu   sync.Mutex
	path string
	db   *store.Store
}

func storeDefinition() *Definition {
	return &Definition{
		Package: config.IOPackage,
		Name:    config.StoreClassName,
		Super:   objectFQ,
		MarshallAux: func(o *Object, e *node.Encoder) {
			h, _ := o.aux.(*storeHandle)
			path := ""
			if h != nil {
				path = h.path
			}
			e.Write("X", path)
		},
		// a decoded store reopens its path lazily
		UnmarshallAux: func(_ *Runtime, o *Object, d *node.Decoder) error {
			var path string
			if err := d.Read("X", &path); err != nil {
				return err
			}
			o.aux = &storeHandle{path: path}
			return nil
		},
		Deallocate: func(o *Object) {
			if h, ok := o.aux.(*storeHandle); ok {
				o.template.rt.logger.Debug("store handle released", "path", h.path)
			}
		},
		Methods: []MethodSpec{
			{Name: "put:value:", Native: storePut},
			{Name: "get:", Native: storeGet},
			{Name: "remove:", Native: storeRemove},
			{Name: "contains:", Native: storeContains},
			{Name: "keys", Native: storeKeys},
			{Name: "path", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				h, _ := auxOf[*storeHandle](self)
				if h == nil {
					return ev.rt.nilObject, nil
				}
				return ev.rt.NewString(h.path), nil
			}},
		},
		MetaMethods: []MethodSpec{
			{Name: "openPath:", Native: storeOpenPath, Signature: stringArg},
			{Name: "default", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				return ev.openStore(self.template, "")
			}},
		},
	}
}

func storeOpenPath(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	return ev.openStore(self.template, ev.text(args[0]))
}

func (ev *Evaluator) openStore(t *ClassTemplate, path string) (*Object, error) {
	o := t.instantiate()
	h := &storeHandle{path: path}
	if err := ev.connect(h); err != nil {
		return nil, err
	}
	o.aux = h
	return o, nil
}

func (ev *Evaluator) connect(h *storeHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db != nil {
		return nil
	}
	db, err := ev.rt.OpenStore(ev.ctx, h.path)
	if err != nil {
		ev.logger.Warn("store open failed", "path", h.path, "error", err)
		return ev.throwNew("FileOpenException", h.path)
	}
	h.path = db.Path()
	h.db = db
	return nil
}

func (ev *Evaluator) storeOf(self *Object) (*store.Store, error) {
	h, ok := auxOf[*storeHandle](self)
	if !ok {
		return nil, ev.throwNew("InvalidCastException", self.template.ShortName(), config.StoreClassName)
	}
	if err := ev.connect(h); err != nil {
		return nil, err
	}
	return h.db, nil
}

// storeKey accepts strings and symbols.
func (ev *Evaluator) storeKey(o *Object) (string, error) {
	if s, ok := ev.stringOf(o); ok {
		return s, nil
	}
	if o != nil && o.template.IsKindOfName(symbolFQ) {
		return symbolName(o), nil
	}
	return "", ev.throwNew("InvalidCastException", ev.orNil(o).template.ShortName(), config.StringClassName)
}

// storeError maps store failures onto the exception tree.
func (ev *Evaluator) storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrChecksum):
		return ev.throwNew("InvalidMarshalledDataException", err.Error())
	case errors.Is(err, store.ErrClosed):
		return ev.throwNew("FileOpenException", err.Error())
	}
	return ev.throwNew("FileWriteException", err.Error())
}

func storePut(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	db, err := ev.storeOf(self)
	if err != nil {
		return nil, err
	}
	key, err := ev.storeKey(args[0])
	if err != nil {
		return nil, err
	}
	value := ev.orNil(args[1])
	data, err := marshallSafely(value)
	if err != nil {
		return nil, ev.throwNew("RuntimeException", err.Error())
	}
	release := ev.suspend()
	_, err = db.Put(ev.ctx, store.BucketObjects, key, value.template.FullName(), data)
	release()
	if err != nil {
		return nil, ev.storeError(err)
	}
	return value, nil
}

// storeGet answers nil for a missing key.
func storeGet(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	db, err := ev.storeOf(self)
	if err != nil {
		return nil, err
	}
	key, err := ev.storeKey(args[0])
	if err != nil {
		return nil, err
	}
	release := ev.suspend()
	rec, err := db.Get(ev.ctx, store.BucketObjects, key)
	release()
	if errors.Is(err, store.ErrNotFound) {
		return ev.rt.nilObject, nil
	}
	if err != nil {
		return nil, ev.storeError(err)
	}
	o, err := ev.rt.Unmarshall(rec.Data)
	if err != nil {
		return nil, ev.throwNew("InvalidMarshalledDataException", err.Error())
	}
	return o, nil
}

func storeRemove(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	db, err := ev.storeOf(self)
	if err != nil {
		return nil, err
	}
	key, err := ev.storeKey(args[0])
	if err != nil {
		return nil, err
	}
	removed, err := db.Delete(ev.ctx, store.BucketObjects, key)
	if err != nil {
		return nil, ev.storeError(err)
	}
	return ev.rt.Bool(removed), nil
}

func storeContains(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	db, err := ev.storeOf(self)
	if err != nil {
		return nil, err
	}
	key, err := ev.storeKey(args[0])
	if err != nil {
		return nil, err
	}
	_, err = db.Get(ev.ctx, store.BucketObjects, key)
	switch {
	case err == nil:
		return ev.rt.yes, nil
	case errors.Is(err, store.ErrNotFound):
		return ev.rt.no, nil
	}
	return nil, ev.storeError(err)
}

func storeKeys(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	db, err := ev.storeOf(self)
	if err != nil {
		return nil, err
	}
	keys, err := db.Keys(ev.ctx, store.BucketObjects)
	if err != nil {
		return nil, ev.storeError(err)
	}
	items := make([]*Object, len(keys))
	for i, k := range keys {
		items[i] = ev.rt.NewString(k)
	}
	return ev.rt.NewArray(items...), nil
}
