package evaluator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

// NativeFunc implements a builtin method. self is the most derived
// receiver.
type NativeFunc func(ev *Evaluator, self *Object, args []*Object) (*Object, error)

// MethodSpec is one entry of a builtin method table.
type MethodSpec struct {
	Name   string
	Flags  scope.Flags
	Native NativeFunc
	// Signature holds the fully qualified class of each argument. A nil
	// Signature accepts anything; an empty entry accepts any class at
	// that position.
	Signature []string
	// Variadic methods skip the arity check.
	Variadic bool
}

// Definition describes a class before its template is built. Builtin
// classes fill in the hooks; user classes carry their Source.
type Definition struct {
	Package    string
	Name       string
	Super      string
	Flags      ast.ClassFlags
	ScopeFlags scope.Flags

	MetaMethods []MethodSpec
	Methods     []MethodSpec

	// Shared instances are never copied: symbols, procedures.
	Shared bool

	Initialize   func(rt *Runtime, t *ClassTemplate) error
	Deinitialize func(rt *Runtime, t *ClassTemplate)
	Allocate     func(o *Object)
	Deallocate   func(o *Object)
	// Mark traces aux values that are not nodes.
	Mark     func(o *Object, mark func(node.Node))
	MetaMark func(t *ClassTemplate, mark func(node.Node))
	Copy     func(dst, src *Object, depth node.Depth)
	Compare  func(a, b *Object) node.Ordering
	Hash     func(o *Object) string
	// Evaluate turns an uninitialized literal into a live object.
	Evaluate func(ev *Evaluator, literal *Object) (*Object, error)
	// MarshallAux and UnmarshallAux replace the default aux encoding,
	// which writes the aux as a node.
	MarshallAux   func(o *Object, e *node.Encoder)
	UnmarshallAux func(rt *Runtime, o *Object, d *node.Decoder) error
	// Resolve may replace a freshly decoded object, e.g. with an
	// interned one.
	Resolve func(rt *Runtime, o *Object) (*Object, error)
	// CheckAux rejects a decoded aux that the class's natives cannot
	// work with.
	CheckAux func(aux node.Node, uninitialized bool) bool

	Source *ast.ClassDefinition
}

// ClassTemplate is the runtime form of a class: method tables, meta
// variables, instance variable defaults and the meta object.
type ClassTemplate struct {
	rt         *Runtime
	def        *Definition
	Package    string
	Name       string
	superName  string
	Flags      ast.ClassFlags
	ScopeFlags scope.Flags
	// MarshallID is the name written into marshalled data.
	MarshallID string

	superOnce sync.Once
	super     *ClassTemplate

	methods     *scope.Scope
	metaMethods *scope.Scope
	defaults    *scope.Scope
	meta        *scope.Scope

	metaObject *Object
	singleton  *Object
	outer      *ClassTemplate

	init    sync.Once
	initErr error

	mu sync.Mutex
	// metaInitialized is set once the user (@@) init ran.
	metaInitialized bool
}

func newClassTemplate(rt *Runtime, def *Definition) *ClassTemplate {
	t := &ClassTemplate{
		rt:          rt,
		def:         def,
		Package:     def.Package,
		Name:        def.Name,
		superName:   def.Super,
		Flags:       def.Flags,
		ScopeFlags:  def.ScopeFlags,
		methods:     scope.New(),
		metaMethods: scope.New(),
		defaults:    scope.New(),
		meta:        scope.New(),
	}
	t.MarshallID = t.FullName()
	t.metaObject = &Object{template: t, scope: t.meta}
	t.metaObject.hdr.SetTemplate(true)
	return t
}

// ready runs the one-time initialization: the method tables, the
// singleton instance and the Initialize hook.
func (t *ClassTemplate) ready() error {
	t.init.Do(func() {
		for _, spec := range t.def.Methods {
			t.methods.Set(spec.Name, t.rt.newNativeProcedure(t, spec), spec.Flags|scope.Method)
		}
		for _, spec := range t.def.MetaMethods {
			spec.Flags |= scope.Meta
			t.metaMethods.Set(spec.Name, t.rt.newNativeProcedure(t, spec), spec.Flags|scope.Method)
		}
		if t.superName != "" && t.Super() == nil {
			t.initErr = fmt.Errorf("class %s: unknown superclass %s", t.FullName(), t.superName)
			return
		}
		if t.Flags.Has(ast.ClassSingleton) {
			t.singleton = t.instantiate()
			t.singleton.hdr.SetTemplate(true)
		}
		if t.def.Initialize != nil {
			t.initErr = t.def.Initialize(t.rt, t)
		}
	})
	return t.initErr
}

func (t *ClassTemplate) FullName() string { return config.QualifiedName(t.Package, t.Name) }

// ShortName is the class name without its package.
func (t *ClassTemplate) ShortName() string { return shortName(t.FullName()) }

func (t *ClassTemplate) String() string { return t.FullName() }

func (t *ClassTemplate) Definition() *Definition { return t.def }

// Super returns the superclass template, or nil for Object.
func (t *ClassTemplate) Super() *ClassTemplate {
	t.superOnce.Do(func() {
		if t.superName != "" {
			t.super = t.rt.Template(t.superName)
		}
	})
	return t.super
}

// IsKindOf reports whether t is other or inherits from it.
func (t *ClassTemplate) IsKindOf(other *ClassTemplate) bool {
	for c := t; c != nil; c = c.Super() {
		if c == other {
			return true
		}
	}
	return false
}

// IsKindOfName is IsKindOf by fully qualified name.
func (t *ClassTemplate) IsKindOfName(fq string) bool {
	for c := t; c != nil; c = c.Super() {
		if c.FullName() == fq {
			return true
		}
	}
	return false
}

func (t *ClassTemplate) MetaObject() *Object { return t.metaObject }
func (t *ClassTemplate) Meta() *scope.Scope  { return t.meta }

// findMethod searches the method tables from t up. Meta lookups fall
// back to the instance methods of Object, since meta objects are
// objects too.
func (t *ClassTemplate) findMethod(name string, meta bool) (*Object, *ClassTemplate) {
	for c := t; c != nil; c = c.Super() {
		table := c.methods
		if meta {
			table = c.metaMethods
		}
		if p, ok := table.Get(name).(*Object); ok {
			return p, c
		}
	}
	if meta {
		root := t
		for root.Super() != nil {
			root = root.Super()
		}
		return root.findMethod(name, false)
	}
	return nil, nil
}

// RespondsTo reports whether instances (or, with meta, the class
// itself) understand name.
func (t *ClassTemplate) RespondsTo(name string, meta bool) bool {
	p, _ := t.findMethod(name, meta)
	return p != nil
}

// instantiate builds an uninitialized instance chain: one object per
// class level, each with a deep copy of its level's defaults.
func (t *ClassTemplate) instantiate() *Object {
	o := &Object{template: t, isObject: true, scope: t.defaults.Copy(node.Deep)}
	if s := t.Super(); s != nil {
		o.super = s.instantiate()
	}
	if t.def.Allocate != nil {
		t.def.Allocate(o)
	}
	return o
}

// newInstanceWithAux instantiates t and stores aux at t's level.
func (t *ClassTemplate) newInstanceWithAux(aux any) *Object {
	o := t.instantiate()
	o.aux = aux
	return o
}

// nestedName returns the fully qualified name of a class nested in t.
func (t *ClassTemplate) nestedName(name string) string {
	return t.FullName() + "." + name
}

func (t *ClassTemplate) trace(mark func(node.Node)) {
	t.methods.Trace(mark)
	t.metaMethods.Trace(mark)
	t.defaults.Trace(mark)
	t.meta.Trace(mark)
	mark(t.metaObject)
	if t.singleton != nil {
		mark(t.singleton)
	}
	if t.def.MetaMark != nil {
		t.def.MetaMark(t, mark)
	}
}

// qualify resolves a builtin class name written without its package.
func qualify(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	for _, b := range builtinPackages {
		if b.name == name {
			return config.QualifiedName(b.pkg, name)
		}
	}
	return name
}

var builtinPackages = []struct{ name, pkg string }{
	{config.ObjectClassName, config.CorePackage},
	{config.NilClassName, config.CorePackage},
	{config.YesClassName, config.CorePackage},
	{config.NoClassName, config.CorePackage},
	{config.StringClassName, config.CorePackage},
	{config.SymbolClassName, config.CorePackage},
	{config.ProcedureClassName, config.CorePackage},
	{config.BlockClassName, config.CorePackage},
	{config.FunctionClassName, config.CorePackage},
	{config.KernelClassName, config.CorePackage},
	{config.NumberClassName, config.MathsPackage},
	{config.ComplexNumberClassName, config.MathsPackage},
	{config.MatrixClassName, config.MathsPackage},
	{config.ArrayClassName, config.ContainerPackage},
	{config.ListClassName, config.ContainerPackage},
	{config.HashClassName, config.ContainerPackage},
	{config.PairClassName, config.ContainerPackage},
	{config.MutexClassName, config.ThreadingPackage},
	{config.FutureClassName, config.ThreadingPackage},
	{config.ThreadClassName, config.ThreadingPackage},
	{config.ConditionClassName, config.ThreadingPackage},
	{config.IOClassName, config.IOPackage},
	{config.StoreClassName, config.IOPackage},
	{config.ExceptionClassName, config.ExceptionPackage},
}
