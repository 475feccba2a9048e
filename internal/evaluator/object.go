package evaluator

import (
	"fmt"
	"sync"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

// Object is a class instance, or, with isObject unset, the meta object
// standing for a class itself. Each class level of an instance is its
// own Object linked through super, so every level keeps the instance
// variables its class declared.
type Object struct {
	hdr      node.Header
	template *ClassTemplate
	super    *Object
	scope    *scope.Scope
	aux      any

	isObject      bool
	uninitialized bool

	lockOnce sync.Once
	lock     *reentrantLock
	rw       sync.RWMutex
}

func (o *Object) Kind() node.Kind          { return node.KindClass }
func (o *Object) Header() *node.Header     { return &o.hdr }
func (o *Object) Template() *ClassTemplate { return o.template }
func (o *Object) Super() *Object           { return o.super }
func (o *Object) Scope() *scope.Scope      { return o.scope }
func (o *Object) Aux() any                 { return o.aux }

// IsObject is false for meta objects.
func (o *Object) IsObject() bool { return o.isObject }

// IsKindOf reports whether the object's class inherits from t.
func (o *Object) IsKindOf(t *ClassTemplate) bool { return o.template.IsKindOf(t) }

func (o *Object) shared() bool {
	return !o.isObject || o.template.Flags.Has(ast.ClassSingleton) || o.template.def.Shared
}

// Copy duplicates the instance chain. Shared objects return themselves.
func (o *Object) Copy(depth node.Depth) node.Node {
	if o.shared() {
		return o
	}
	return o.copyObject(depth)
}

func (o *Object) copyObject(depth node.Depth) *Object {
	c := &Object{template: o.template, isObject: o.isObject, uninitialized: o.uninitialized}
	if o.super != nil {
		c.super = o.super.copyObject(depth)
	}
	if o.scope != nil {
		c.scope = o.scope.Copy(depth)
	}
	switch {
	case o.template.def.Copy != nil:
		o.template.def.Copy(c, o, depth)
	default:
		if n, ok := o.aux.(node.Node); ok {
			// aux nodes are owned, so even a shallow object copy gets
			// its own container shell
			c.aux = n.Copy(depth)
		} else {
			c.aux = o.aux
		}
	}
	return c
}

func (o *Object) Trace(mark func(node.Node)) {
	if o.super != nil {
		mark(o.super)
	}
	if o.scope != nil && o.isObject {
		o.scope.Trace(mark)
	}
	if n, ok := o.aux.(node.Node); ok && n != nil {
		mark(n)
	}
	if o.template.def.Mark != nil {
		o.template.def.Mark(o, mark)
	}
}

func (o *Object) CompareNode(other node.Node) node.Ordering {
	b, ok := other.(*Object)
	if !ok {
		return node.Uncomparable
	}
	if o == b {
		return node.Equal
	}
	if o.template != b.template || o.isObject != b.isObject {
		return node.Uncomparable
	}
	if !o.isObject {
		return node.Uncomparable
	}
	if hook := o.template.def.Compare; hook != nil {
		return hook(o, b)
	}
	if o.uninitialized != b.uninitialized {
		return node.Uncomparable
	}
	if (o.super == nil) != (b.super == nil) {
		return node.Uncomparable
	}
	if o.super != nil && o.super.CompareNode(b.super) != node.Equal {
		return node.Uncomparable
	}
	if o.scope.Compare(b.scope) != node.Equal {
		return node.Uncomparable
	}
	an, aok := o.aux.(node.Node)
	bn, bok := b.aux.(node.Node)
	switch {
	case aok && bok:
		if node.Compare(an, bn) != node.Equal {
			return node.Uncomparable
		}
	case aok != bok:
		return node.Uncomparable
	case o.aux != b.aux:
		return node.Uncomparable
	}
	return node.Equal
}

// HashKey keys value-like objects (numbers, strings, symbols) by
// value and everything else by identity.
func (o *Object) HashKey() string {
	if o.isObject {
		for level := o; level != nil; level = level.super {
			if hook := level.template.def.Hash; hook != nil {
				return hook(level)
			}
		}
	}
	return fmt.Sprintf("O:%s@%p", o.template.FullName(), o)
}

func (o *Object) String() string {
	if !o.isObject {
		return o.template.FullName()
	}
	for level := o; level != nil; level = level.super {
		if n, ok := level.aux.(node.Node); ok && n != nil {
			return n.String()
		}
	}
	return "#" + o.template.ShortName()
}

// instanceFor returns the level of o's chain created for t, or nil.
func (o *Object) instanceFor(t *ClassTemplate) *Object {
	for level := o; level != nil; level = level.super {
		if level.template == t {
			return level
		}
	}
	return nil
}

// auxOf returns the first aux value of type T along o's chain.
func auxOf[T any](o *Object) (T, bool) {
	for level := o; level != nil; level = level.super {
		if v, ok := level.aux.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// auxIs is a CheckAux for classes whose aux always has type T.
func auxIs[T node.Node](aux node.Node, _ bool) bool {
	_, ok := aux.(T)
	return ok
}

// auxHash hashes a value class by its aux.
func auxHash(o *Object) string {
	n, _ := o.aux.(node.Node)
	return node.HashKey(n)
}

// setAux replaces the first aux of type T along the chain.
func setAux[T any](o *Object, v T) bool {
	for level := o; level != nil; level = level.super {
		if _, ok := level.aux.(T); ok {
			level.aux = v
			return true
		}
	}
	return false
}

// reentrant returns the lock taken by synchronized methods and blocks.
func (o *Object) reentrant() *reentrantLock {
	o.lockOnce.Do(func() { o.lock = newReentrantLock(true) })
	return o.lock
}

// reentrantLock is a mutex owned by an evaluator. A reentrant lock may
// be taken again by its owner; a plain one reports a deadlock instead.
type reentrantLock struct {
	mu        sync.Mutex
	cond      *sync.Cond
	owner     *Evaluator
	count     int
	reentrant bool
}

func newReentrantLock(reentrant bool) *reentrantLock {
	l := &reentrantLock{reentrant: reentrant}
	l.cond = sync.NewCond(&l.mu)
	return l
}

var errSelfDeadlock = fmt.Errorf("lock already held by this evaluator")

// Lock blocks until owner holds the lock.
func (l *reentrantLock) Lock(owner *Evaluator) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == owner {
		if !l.reentrant {
			return errSelfDeadlock
		}
		l.count++
		return nil
	}
	for l.owner != nil {
		l.cond.Wait()
	}
	l.owner = owner
	l.count = 1
	return nil
}

// TryLock takes the lock without blocking.
func (l *reentrantLock) TryLock(owner *Evaluator) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.owner {
	case nil:
		l.owner = owner
		l.count = 1
		return true
	case owner:
		if l.reentrant {
			l.count++
			return true
		}
	}
	return false
}

// Unlock reports false when owner does not hold the lock.
func (l *reentrantLock) Unlock(owner *Evaluator) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != owner {
		return false
	}
	l.count--
	if l.count == 0 {
		l.owner = nil
		l.cond.Signal()
	}
	return true
}

// release drops every hold owner has and returns how many there were.
func (l *reentrantLock) release(owner *Evaluator) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != owner {
		return 0
	}
	n := l.count
	l.owner, l.count = nil, 0
	l.cond.Signal()
	return n
}

// restore sets the hold count of a lock owner has just retaken.
func (l *reentrantLock) restore(owner *Evaluator, n int) {
	l.mu.Lock()
	if l.owner == owner {
		l.count = n
	}
	l.mu.Unlock()
}

// Marshall writes the kind, the class name and the isObject flag. Meta
// objects and singletons stop there; instances continue with the
// uninitialized flag, the super level, the scope and the aux data.
func (o *Object) Marshall(e *node.Encoder) {
	e.Write("uXb", uint8(node.KindClass), o.template.MarshallID, o.isObject)
	if !o.isObject || o.template.Flags.Has(ast.ClassSingleton) {
		return
	}
	var super node.Node
	if o.super != nil {
		super = o.super
	}
	sc := o.scope
	if sc == nil {
		sc = scope.New()
	}
	e.Write("bnS", o.uninitialized, super, sc)
	if hook := o.template.def.MarshallAux; hook != nil {
		hook(o, e)
		return
	}
	var aux node.Node
	if n, ok := o.aux.(node.Node); ok {
		aux = n
	}
	e.Write("n", aux)
}

// UnmarshallClass decodes an object written by Object.Marshall. It is
// called after the kind byte.
func (rt *Runtime) UnmarshallClass(d *node.Decoder) (node.Node, error) {
	var (
		name     string
		isObject bool
	)
	if err := d.Read("Xb", &name, &isObject); err != nil {
		return nil, err
	}
	t := rt.Template(name)
	if t == nil {
		return nil, d.Errorf("unknown class %q", name)
	}
	if !isObject {
		return t.metaObject, nil
	}
	if t.Flags.Has(ast.ClassSingleton) {
		return t.singleton, nil
	}

	o := &Object{template: t, isObject: true, scope: scope.New()}
	var super node.Node
	if err := d.Read("bnS", &o.uninitialized, &super, o.scope); err != nil {
		return nil, err
	}
	want := t.Super()
	switch s := super.(type) {
	case nil:
		if want != nil && !t.def.Shared {
			return nil, d.Errorf("%s instance without its %s level", name, want.FullName())
		}
	case *Object:
		if want == nil || s.template != want || !s.isObject {
			return nil, d.Errorf("%s instance with a mismatched super level", name)
		}
		o.super = s
	default:
		return nil, d.Errorf("%s instance with a %s super level", name, super.Kind())
	}

	if hook := t.def.UnmarshallAux; hook != nil {
		if err := hook(rt, o, d); err != nil {
			return nil, err
		}
	} else {
		var aux node.Node
		if err := d.Read("n", &aux); err != nil {
			return nil, err
		}
		if aux != nil {
			o.aux = aux
		}
	}
	if check := t.def.CheckAux; check != nil {
		aux, _ := o.aux.(node.Node)
		if !check(aux, o.uninitialized) {
			return nil, d.Errorf("%s instance with a %s aux", name, kindName(aux))
		}
	}
	if hook := t.def.Resolve; hook != nil {
		resolved, err := hook(rt, o)
		if err != nil {
			return nil, d.Errorf("%v", err)
		}
		return resolved, nil
	}
	return o, nil
}

// Marshall encodes an object graph in the runtime's binary format.
func Marshall(o *Object) []byte { return node.Marshall(o) }

// Unmarshall decodes data written by Marshall. Decoding failures wrap
// node.ErrUnmarshall.
func (rt *Runtime) Unmarshall(data []byte) (*Object, error) {
	n, err := node.Unmarshall(data, rt)
	if err != nil {
		return nil, err
	}
	o, ok := n.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: decoded %s, want an object", node.ErrUnmarshall, kindName(n))
	}
	return o, nil
}

func kindName(n node.Node) string {
	if n == nil {
		return "nil"
	}
	return n.Kind().String()
}
