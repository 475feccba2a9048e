package evaluator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

// CallFrame is one entry of an evaluator's call stack.
type CallFrame struct {
	Name string
	File string
	Line uint32
}

// objectStack is the context of one procedure or block activation: its
// scope stack, self, the class whose code is running and the loop
// nesting used to validate break.
type objectStack struct {
	scopes       []*scope.Scope
	self         *Object
	template     *ClassTemplate
	loops        int
	breakthrough bool
	// callable stacks belong to a procedure or block and accept return
	callable bool
}

// Evaluator walks program graphs on one goroutine. Evaluators are not
// safe for concurrent use; futures run on clones.
type Evaluator struct {
	ID     uuid.UUID
	rt     *Runtime
	ctx    context.Context
	logger *slog.Logger

	CallStack []CallFrame
	stacks    []*objectStack

	// active counts nested Evaluate calls; the collector sees the
	// evaluator as running while it is positive
	active     int
	removeRoot func()

	readLocks  map[*Object]int
	writeLocks map[*Object]int

	file    string
	pkg     string
	imports []*ast.Import
}

func newEvaluator(ctx context.Context, rt *Runtime) *Evaluator {
	if ctx == nil {
		ctx = context.Background()
	}
	ev := &Evaluator{
		ID:         uuid.New(),
		rt:         rt,
		ctx:        ctx,
		readLocks:  make(map[*Object]int),
		writeLocks: make(map[*Object]int),
	}
	ev.logger = rt.logger.With("evaluator", ev.ID)
	ev.stacks = []*objectStack{{scopes: []*scope.Scope{rt.globals}, self: rt.nilObject}}
	ev.removeRoot = rt.gc.AddRoot(ev.markRoots)
	return ev
}

// Clone returns a fresh evaluator on the same runtime that resolves
// names like ev: same package and imports, empty stacks.
func (ev *Evaluator) Clone() *Evaluator {
	c := newEvaluator(ev.ctx, ev.rt)
	c.file = ev.file
	c.pkg = ev.pkg
	c.imports = append([]*ast.Import(nil), ev.imports...)
	return c
}

// Close detaches the evaluator from the collector.
func (ev *Evaluator) Close() {
	if ev.removeRoot != nil {
		ev.removeRoot()
		ev.removeRoot = nil
	}
}

func (ev *Evaluator) Runtime() *Runtime { return ev.rt }

func (ev *Evaluator) markRoots(mark func(node.Node)) {
	for _, st := range ev.stacks {
		for _, sc := range st.scopes {
			if sc != ev.rt.globals {
				sc.Trace(mark)
			}
		}
		if st.self != nil {
			mark(st.self)
		}
	}
}

func (ev *Evaluator) enter() {
	if ev.active == 0 {
		ev.rt.gc.Up()
	}
	ev.active++
}

func (ev *Evaluator) leave() {
	ev.active--
	if ev.active == 0 {
		ev.rt.gc.Down()
	}
}

// suspend takes the evaluator down around a blocking call.
func (ev *Evaluator) suspend() (release func()) {
	if ev.active == 0 {
		return func() {}
	}
	return ev.rt.gc.Suspend()
}

// checkpoint runs between statements and loop iterations.
func (ev *Evaluator) checkpoint() error {
	if err := ev.ctx.Err(); err != nil {
		return ev.throwNew("RuntimeException", err.Error())
	}
	if ev.active > 0 {
		ev.rt.gc.SafePoint()
	}
	return nil
}

func (ev *Evaluator) register(o *Object) {
	if o != nil {
		ev.rt.gc.RegisterTree(o)
	}
}

func pin(objects ...*Object) {
	for _, o := range objects {
		if o != nil {
			o.hdr.Retain()
		}
	}
}

func unpin(objects ...*Object) {
	for _, o := range objects {
		if o != nil {
			o.hdr.Release()
		}
	}
}

func (ev *Evaluator) orNil(o *Object) *Object {
	if o == nil {
		return ev.rt.nilObject
	}
	return o
}

// Evaluate evaluates n and registers the result with the collector.
// Exceptions come back as *Exception and `exit` as ErrExit.
func (ev *Evaluator) Evaluate(n node.Node) (*Object, error) {
	ev.enter()
	defer ev.leave()
	result, err := ev.eval(n)
	if err != nil {
		return nil, err
	}
	ev.register(result)
	return result, nil
}

// EvalString parses and evaluates source. Syntax errors are raised as
// ParseFailureException.
func (ev *Evaluator) EvalString(source, filename string) (*Object, error) {
	tree, err := ev.rt.ParseString(source, filename)
	if err != nil {
		ev.enter()
		defer ev.leave()
		return nil, ev.throwNew("ParseFailureException", err.Error())
	}
	previous := ev.file
	ev.file = filename
	defer func() { ev.file = previous }()
	return ev.Evaluate(tree)
}

// Call sends name to receiver from Go code.
func (ev *Evaluator) Call(receiver *Object, name string, args ...*Object) (*Object, error) {
	ev.enter()
	defer ev.leave()
	return ev.send(receiver, nil, name, args, ast.Position{})
}

// EvaluateProcedure runs a Procedure object with self bound to
// receiver.
func (ev *Evaluator) EvaluateProcedure(receiver, procedure *Object, args []*Object) (*Object, error) {
	ev.enter()
	defer ev.leave()
	return ev.invoke(receiver, procedure, args, ast.Position{})
}

func (ev *Evaluator) top() *objectStack { return ev.stacks[len(ev.stacks)-1] }

func (ev *Evaluator) push(st *objectStack) { ev.stacks = append(ev.stacks, st) }

func (ev *Evaluator) pop() {
	node.Assert(len(ev.stacks) > 1, "pop of the root object stack")
	ev.stacks[len(ev.stacks)-1] = nil
	ev.stacks = ev.stacks[:len(ev.stacks)-1]
}

func (ev *Evaluator) pushScope(sc *scope.Scope) {
	st := ev.top()
	st.scopes = append(st.scopes, sc)
}

func (ev *Evaluator) popScope() {
	st := ev.top()
	st.scopes = st.scopes[:len(st.scopes)-1]
}

// inScope evaluates body in a fresh scope on the current stack.
func (ev *Evaluator) inScope(body node.Node) (*Object, error) {
	ev.pushScope(scope.New())
	defer ev.popScope()
	return ev.eval(body)
}

// findLocal searches the scope stacks innermost first. A breakthrough
// stack lets the search continue into its caller.
func (ev *Evaluator) findLocal(name string) (*scope.Scope, scope.Data, bool) {
	for i := len(ev.stacks) - 1; i >= 0; i-- {
		st := ev.stacks[i]
		for j := len(st.scopes) - 1; j >= 0; j-- {
			if d, ok := st.scopes[j].Lookup(name); ok {
				return st.scopes[j], d, true
			}
		}
		if !st.breakthrough {
			break
		}
	}
	return nil, scope.Data{}, false
}

// lookupClass resolves a class name from the current context.
func (ev *Evaluator) lookupClass(name string) *ClassTemplate {
	return ev.rt.Lookup(name, ev.top().template, ev.pkg, ev.imports)
}

func (ev *Evaluator) lookup(id *ast.Identifier) (*Object, error) {
	switch {
	case id.Flags.Has(scope.Instance):
		if v, ok := ev.instanceVariable(id.Name); ok {
			return ev.orNil(v), nil
		}
		return nil, ev.throwNew("UnidentifiedObjectException", "@"+id.Name)
	case id.Flags.Has(scope.Meta):
		if _, d, ok := ev.metaVariable(id.Name); ok {
			return ev.rt.asObject(d.Value), nil
		}
		return nil, ev.throwNew("UnidentifiedObjectException", "@@"+id.Name)
	}
	if _, d, ok := ev.findLocal(id.Name); ok {
		return ev.rt.asObject(d.Value), nil
	}
	if d, ok := ev.rt.globals.Lookup(id.Name); ok {
		return ev.rt.asObject(d.Value), nil
	}
	if t := ev.lookupClass(id.Name); t != nil {
		return t.metaObject, nil
	}
	return nil, ev.throwNew("UnidentifiedObjectException", id.Name)
}

func (ev *Evaluator) definingLevel() *Object {
	st := ev.top()
	if st.self == nil || !st.self.isObject {
		return nil
	}
	if st.template != nil {
		if level := st.self.instanceFor(st.template); level != nil {
			return level
		}
	}
	return st.self
}

func (ev *Evaluator) instanceVariable(name string) (*Object, bool) {
	level := ev.definingLevel()
	if level == nil {
		if _, d, ok := ev.metaVariable(name); ok {
			return ev.rt.asObject(d.Value), true
		}
		return nil, false
	}
	return fieldOf(level, name)
}

// metaVariable finds a class variable from the running class up.
func (ev *Evaluator) metaVariable(name string) (*ClassTemplate, scope.Data, bool) {
	st := ev.top()
	t := st.template
	if t == nil && st.self != nil {
		t = st.self.template
	}
	for c := t; c != nil; c = c.Super() {
		if d, ok := c.meta.Lookup(name); ok {
			return c, d, true
		}
	}
	return nil, scope.Data{}, false
}

// assignable copies atomic values so that assignment never aliases a
// mutable number.
func (ev *Evaluator) assignable(o *Object) *Object {
	if o == nil {
		return ev.rt.nilObject
	}
	if o.isObject && o.template.Flags.Has(ast.ClassAtomic) {
		return o.Copy(node.Deep).(*Object)
	}
	return o
}

// assign binds value to the identifier following the scoping rules of
// its flags.
func (ev *Evaluator) assign(id *ast.Identifier, value *Object, flags scope.Flags) error {
	var err error
	switch {
	case id.Flags.Has(scope.Instance):
		err = ev.setInstanceVariable(id.Name, value)
	case id.Flags.Has(scope.Meta):
		err = ev.setMetaVariable(id.Name, value)
	case flags.Has(scope.Global):
		err = ev.rt.globals.Set(id.Name, value, flags&(scope.Global|scope.Constant))
	case flags.Has(scope.Constant):
		st := ev.top()
		err = st.scopes[len(st.scopes)-1].Set(id.Name, value, scope.Constant)
	default:
		if sc, _, ok := ev.findLocal(id.Name); ok {
			_, err = sc.Update(id.Name, value)
		} else {
			st := ev.top()
			err = st.scopes[len(st.scopes)-1].Set(id.Name, value, scope.NoFlags)
		}
	}
	if errors.Is(err, scope.ErrConstantRedefinition) {
		return ev.throwNew("ConstantRedefinitionException", id.Name)
	}
	if err != nil {
		return ev.wrapError(err)
	}
	return nil
}

func (ev *Evaluator) setInstanceVariable(name string, value *Object) error {
	level := ev.definingLevel()
	if level == nil {
		return ev.setMetaVariable(name, value)
	}
	for l := level; l != nil; l = l.super {
		if l.scope == nil {
			continue
		}
		if found, err := l.scope.Update(name, value); found {
			return err
		}
	}
	if level.scope == nil {
		level.scope = scope.New()
	}
	return level.scope.Set(name, value, scope.Instance)
}

func (ev *Evaluator) setMetaVariable(name string, value *Object) error {
	if c, _, ok := ev.metaVariable(name); ok {
		_, err := c.meta.Update(name, value)
		return err
	}
	st := ev.top()
	t := st.template
	if t == nil && st.self != nil {
		t = st.self.template
	}
	if t == nil || t == ev.rt.nilObject.template {
		return ev.throwNew("UnidentifiedObjectException", "@@"+name)
	}
	return t.meta.Set(name, value, scope.Meta)
}
