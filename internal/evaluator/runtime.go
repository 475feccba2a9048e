package evaluator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/gc"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/parser"
	"github.com/funvibe/taffy/internal/scope"
)

// Options configure a Runtime. Zero values select defaults.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Out receives io put: output. Defaults to os.Stdout.
	Out io.Writer
}

// Runtime owns everything shared between evaluators: the class
// registry, the global scope, the collector and the future manager.
type Runtime struct {
	ID     uuid.UUID
	cfg    *config.Config
	logger *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	gc *gc.Collector

	mu          sync.RWMutex
	definitions map[string]*Definition
	templates   map[string]*ClassTemplate
	shortNames  map[string][]string

	globals *scope.Scope

	// parsing marks template flags on whole trees
	parseMu sync.Mutex

	symbolMu sync.Mutex
	symbols  map[string]*Object

	futures *FutureManager

	loadMu sync.Mutex
	loaded map[string]bool

	stores stores

	nilObject *Object
	yes       *Object
	no        *Object

	closeOnce sync.Once
}

// New creates a runtime with every builtin class registered.
func New(opts Options) (*Runtime, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	node.DefaultPrecision = opts.Config.Number.Precision

	rt := &Runtime{
		ID:          uuid.New(),
		cfg:         opts.Config,
		logger:      opts.Logger,
		out:         opts.Out,
		definitions: make(map[string]*Definition),
		templates:   make(map[string]*ClassTemplate),
		shortNames:  make(map[string][]string),
		globals:     scope.New(),
		symbols:     make(map[string]*Object),
		loaded:      make(map[string]bool),
	}
	rt.gc = gc.New(gc.Options{
		Threshold:  opts.Config.GC.Threshold,
		Growth:     opts.Config.GC.Growth,
		Background: opts.Config.GC.BackgroundEnabled(),
		Deallocate: rt.deallocate,
		Logger:     opts.Logger.With("component", "gc"),
	})
	rt.futures = newFutureManager(rt, opts.Config.Futures.MaxThreads)

	for _, def := range builtinDefinitions() {
		if err := rt.Define(def); err != nil {
			rt.gc.Close()
			return nil, err
		}
	}
	rt.nilObject = rt.mustTemplate(config.CorePackage, config.NilClassName).singleton
	rt.yes = rt.mustTemplate(config.CorePackage, config.YesClassName).singleton
	rt.no = rt.mustTemplate(config.CorePackage, config.NoClassName).singleton

	// builtins are built eagerly; user classes are built when defined
	for _, fq := range rt.definitionNames() {
		if rt.Template(fq) == nil {
			rt.gc.Close()
			return nil, fmt.Errorf("building builtin class %s", fq)
		}
	}
	rt.globals.Set(config.IOObjectName, rt.mustTemplate(config.IOPackage, config.IOClassName).singleton, scope.NoFlags)
	rt.globals.Set(config.KernelObjectName, rt.mustTemplate(config.CorePackage, config.KernelClassName).singleton, scope.NoFlags)

	rt.gc.AddRoot(rt.markRoots)
	rt.logger.Debug("runtime created", "id", rt.ID, "classes", len(rt.templates))
	return rt, nil
}

// Close stops the collector and the future manager, runs the
// deinitialize hooks and closes open stores. It does not wait for
// running evaluators.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.futures.Close()
		rt.gc.Close()
		defer rt.closeStores()
		rt.mu.RLock()
		templates := make([]*ClassTemplate, 0, len(rt.templates))
		for _, t := range rt.templates {
			templates = append(templates, t)
		}
		rt.mu.RUnlock()
		for _, t := range templates {
			if t.def.Deinitialize != nil {
				t.def.Deinitialize(rt, t)
			}
		}
	})
}

func (rt *Runtime) Config() *config.Config   { return rt.cfg }
func (rt *Runtime) Logger() *slog.Logger     { return rt.logger }
func (rt *Runtime) Collector() *gc.Collector { return rt.gc }
func (rt *Runtime) Globals() *scope.Scope    { return rt.globals }

// Nil, Yes and No return the singleton instances.
func (rt *Runtime) Nil() *Object { return rt.nilObject }
func (rt *Runtime) Yes() *Object { return rt.yes }
func (rt *Runtime) No() *Object  { return rt.no }

// Bool maps a Go bool to yes or no.
func (rt *Runtime) Bool(b bool) *Object {
	if b {
		return rt.yes
	}
	return rt.no
}

func (rt *Runtime) write(s string) error {
	rt.outMu.Lock()
	defer rt.outMu.Unlock()
	_, err := io.WriteString(rt.out, s)
	return err
}

// Define registers a class definition. A definition that already
// exists is replaced; its template, when built, is updated in place by
// the caller.
func (rt *Runtime) Define(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("class definition without a name")
	}
	fq := config.QualifiedName(def.Package, def.Name)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.definitions[fq]; !exists {
		short := shortName(fq)
		rt.shortNames[short] = append(rt.shortNames[short], fq)
	}
	rt.definitions[fq] = def
	return nil
}

func (rt *Runtime) definitionNames() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	names := make([]string, 0, len(rt.definitions))
	for fq := range rt.definitions {
		names = append(names, fq)
	}
	sort.Strings(names)
	return names
}

// Template returns the template for a fully qualified class name,
// building it on first use. It returns nil for unknown names.
func (rt *Runtime) Template(fq string) *ClassTemplate {
	t := rt.rawTemplate(fq)
	if t == nil {
		return nil
	}
	if err := t.ready(); err != nil {
		rt.logger.Error("class initialization failed", "class", fq, "error", err)
		return nil
	}
	return t
}

// rawTemplate returns the template shell without running its one-time
// initialization. Procedure objects are created with it while the
// Procedure template itself is being initialized.
func (rt *Runtime) rawTemplate(fq string) *ClassTemplate {
	rt.mu.RLock()
	t := rt.templates[fq]
	rt.mu.RUnlock()
	if t != nil {
		return t
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if t = rt.templates[fq]; t != nil {
		return t
	}
	def := rt.definitions[fq]
	if def == nil {
		return nil
	}
	t = newClassTemplate(rt, def)
	rt.templates[fq] = t
	return t
}

func (rt *Runtime) mustTemplate(pkg, name string) *ClassTemplate {
	fq := config.QualifiedName(pkg, name)
	t := rt.Template(fq)
	node.Assert(t != nil, "builtin class %s missing", fq)
	return t
}

// Lookup resolves a class name as written in source. Candidates are
// tried in order: nested classes of the current template, the current
// package, imports, the name itself, then every core package.
func (rt *Runtime) Lookup(name string, current *ClassTemplate, pkg string, imports []*ast.Import) *ClassTemplate {
	for t := current; t != nil; t = t.outer {
		if found := rt.Template(t.FullName() + "." + name); found != nil {
			return found
		}
	}
	if pkg != "" {
		if found := rt.Template(pkg + "." + name); found != nil {
			return found
		}
	}
	first, _, _ := strings.Cut(name, ".")
	for _, imp := range imports {
		switch {
		case imp.Wild:
			if found := rt.Template(imp.Name() + "." + name); found != nil {
				return found
			}
		case len(imp.Path) > 0 && imp.Path[len(imp.Path)-1] == first:
			prefix := strings.Join(imp.Path[:len(imp.Path)-1], ".")
			if found := rt.Template(config.QualifiedName(prefix, name)); found != nil {
				return found
			}
		}
	}
	if found := rt.Template(name); found != nil {
		return found
	}
	for _, p := range corePackages {
		if found := rt.Template(p + "." + name); found != nil {
			return found
		}
	}
	return nil
}

var corePackages = []string{
	config.CorePackage,
	config.MathsPackage,
	config.ContainerPackage,
	config.ThreadingPackage,
	config.IOPackage,
	config.ExceptionPackage,
}

func shortName(fq string) string {
	if i := strings.LastIndexByte(fq, '.'); i >= 0 {
		return fq[i+1:]
	}
	return fq
}

// Symbol returns the interned symbol object for name.
func (rt *Runtime) Symbol(name string) *Object {
	rt.symbolMu.Lock()
	defer rt.symbolMu.Unlock()
	if s, ok := rt.symbols[name]; ok {
		return s
	}
	t := rt.mustTemplate(config.CorePackage, config.SymbolClassName)
	s := t.newInstanceWithAux(node.NewString(name))
	s.hdr.SetTemplate(true)
	rt.symbols[name] = s
	return s
}

// ParseString parses source into a tree of template nodes. Literal
// objects in the tree are never registered with the collector.
func (rt *Runtime) ParseString(source, filename string) (*ast.Tree, error) {
	rt.parseMu.Lock()
	defer rt.parseMu.Unlock()
	tree, err := parser.ParseString(source, filename, rt)
	if err != nil {
		return nil, err
	}
	markTemplate(tree)
	return tree, nil
}

func markTemplate(n node.Node) {
	seen := make(map[node.Node]bool)
	stack := []node.Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top == nil || seen[top] {
			continue
		}
		seen[top] = true
		top.Header().SetTemplate(true)
		top.Trace(func(child node.Node) { stack = append(stack, child) })
	}
}

// markRoots keeps every class level value alive.
func (rt *Runtime) markRoots(mark func(node.Node)) {
	rt.globals.Trace(mark)
	rt.mu.RLock()
	templates := make([]*ClassTemplate, 0, len(rt.templates))
	for _, t := range rt.templates {
		templates = append(templates, t)
	}
	rt.mu.RUnlock()
	for _, t := range templates {
		t.trace(mark)
	}
	rt.symbolMu.Lock()
	for _, s := range rt.symbols {
		mark(s)
	}
	rt.symbolMu.Unlock()
	rt.futures.trace(mark)
}

func (rt *Runtime) deallocate(n node.Node) {
	o, ok := n.(*Object)
	if !ok {
		return
	}
	for level := o; level != nil; level = level.super {
		if hook := level.template.def.Deallocate; hook != nil {
			hook(level)
		}
	}
}

// markLoaded reports whether file was not loaded before.
func (rt *Runtime) markLoaded(file string) bool {
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	rt.loadMu.Lock()
	defer rt.loadMu.Unlock()
	if rt.loaded[file] {
		return false
	}
	rt.loaded[file] = true
	return true
}

// NewEvaluator creates an evaluator bound to this runtime.
func (rt *Runtime) NewEvaluator(ctx context.Context) *Evaluator {
	return newEvaluator(ctx, rt)
}

// EvalString parses and evaluates source on a fresh evaluator.
func (rt *Runtime) EvalString(ctx context.Context, source, filename string) (*Object, error) {
	ev := rt.NewEvaluator(ctx)
	defer ev.Close()
	return ev.EvalString(source, filename)
}
