package evaluator

import (
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/scope"
)

// defineClass creates a class or, when the name is already taken,
// merges the definition into the existing template. The value of the
// statement is the class's meta object.
func (ev *Evaluator) defineClass(def *ast.ClassDefinition, outer *ClassTemplate) (*Object, error) {
	pkg := ev.pkg
	if outer != nil {
		pkg = outer.FullName()
	}
	fq := config.QualifiedName(pkg, def.Name)

	t := ev.rt.Template(fq)
	created := t == nil
	if created {
		superFQ, err := ev.resolveSuper(def, fq)
		if err != nil {
			return nil, err
		}
		if err := ev.rt.Define(&Definition{
			Package: pkg,
			Name:    def.Name,
			Super:   superFQ,
			Flags:   def.Flags,
			Source:  def,
		}); err != nil {
			return nil, ev.wrapError(err)
		}
		if t = ev.rt.Template(fq); t == nil {
			return nil, ev.throwNew("UnidentifiedClassException", def.Name)
		}
		t.outer = outer
		ev.logger.Debug("class defined", "class", fq, "super", superFQ)
	} else if def.Super != "" {
		// an update may not move the class in the hierarchy
		superFQ, err := ev.resolveSuper(def, fq)
		if err != nil {
			return nil, err
		}
		if superFQ != t.superName {
			return nil, ev.throwNew("InvalidSuperClassException", def.Super)
		}
	}

	ev.push(&objectStack{scopes: []*scope.Scope{scope.New()}, self: t.metaObject, template: t})
	err := ev.fillClass(t, def)
	ev.pop()
	if err != nil {
		return nil, err
	}

	if created && t.Flags.Has(ast.ClassSingleton) {
		t.singleton = t.instantiate()
		t.singleton.hdr.SetTemplate(true)
		if _, err := ev.send(t.singleton, nil, config.InitMethodName, nil, ast.PosOf(def)); err != nil {
			return nil, err
		}
	}
	if err := ev.metaInit(t, def); err != nil {
		return nil, err
	}
	return t.metaObject, nil
}

func (ev *Evaluator) resolveSuper(def *ast.ClassDefinition, fq string) (string, error) {
	if def.Super == "" {
		if fq == objectFQ {
			return "", nil
		}
		return objectFQ, nil
	}
	super := ev.lookupClass(def.Super)
	if super == nil {
		return "", ev.throwNew("UnidentifiedClassException", def.Super)
	}
	if super.Flags.Has(ast.ClassFinal) {
		return "", ev.throwNew("InvalidSuperClassException", def.Super)
	}
	return super.FullName(), nil
}

// fillClass installs nested classes, variables, accessors and methods.
// It runs with the class's meta object as self.
func (ev *Evaluator) fillClass(t *ClassTemplate, def *ast.ClassDefinition) error {
	for _, n := range def.Classes {
		nested, ok := n.(*ast.ClassDefinition)
		if !ok {
			continue
		}
		if _, err := ev.defineClass(nested, t); err != nil {
			return err
		}
	}
	for _, n := range def.Variables {
		a, ok := n.(*ast.Assignment)
		if !ok {
			continue
		}
		if err := ev.defineVariable(t, a); err != nil {
			return err
		}
	}
	for _, n := range def.Methods {
		pair, ok := n.(*ast.GraphDataPair)
		if !ok {
			continue
		}
		header, ok := pair.Left.(*ast.MethodHeader)
		if !ok {
			continue
		}
		body, _ := pair.Right.(*ast.List)
		table := t.methods
		if header.Flags.Has(scope.Meta) {
			table = t.metaMethods
		}
		if err := table.Set(header.Name, ev.rt.newUserProcedure(t, header, body), header.Flags|scope.Method); err != nil {
			return ev.wrapError(err)
		}
	}
	return nil
}

// defineVariable evaluates a variable's default. Instance variables
// become template defaults; class variables keep any value they
// already have.
func (ev *Evaluator) defineVariable(t *ClassTemplate, a *ast.Assignment) error {
	id, ok := a.Identifier.(*ast.Identifier)
	if !ok {
		return ev.throwNew("RuntimeException", "class variable without a name")
	}
	value := ev.rt.nilObject
	if a.Value != nil {
		v, err := ev.eval(a.Value)
		if err != nil {
			return err
		}
		value = ev.assignable(v)
		ev.register(value)
	}

	meta := id.Flags.Has(scope.Meta)
	var err error
	switch {
	case meta && !t.meta.Has(id.Name):
		err = t.meta.Set(id.Name, value, id.Flags)
	case !meta:
		err = t.defaults.Set(id.Name, value, id.Flags)
	}
	if err != nil {
		return ev.wrapError(err)
	}

	table := t.methods
	if meta {
		table = t.metaMethods
	}
	if id.Flags.Has(scope.Reader) {
		reader := MethodSpec{Name: id.Name, Native: fieldReader(id.Name), Flags: scope.Getter}
		if meta {
			reader.Native = metaReader(t, id.Name)
			reader.Flags |= scope.Meta
		}
		table.Set(reader.Name, ev.rt.newNativeProcedure(t, reader), reader.Flags|scope.Method)
	}
	if id.Flags.Has(scope.Writer) {
		writer := MethodSpec{Name: setterName(id.Name), Native: fieldWriter(t, id.Name)}
		if meta {
			writer.Native = metaWriter(t, id.Name)
			writer.Flags |= scope.Meta
		}
		table.Set(writer.Name, ev.rt.newNativeProcedure(t, writer), writer.Flags|scope.Method)
	}
	return nil
}

// setterName maps value to setValue:.
func setterName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return "set" + string(unicode.ToUpper(r)) + name[size:] + ":"
}

func fieldWriter(t *ClassTemplate, name string) NativeFunc {
	return func(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
		value := ev.assignable(args[0])
		level := self.instanceFor(t)
		if level == nil || level.scope == nil {
			return nil, ev.throwNew("UnidentifiedObjectException", "@"+name)
		}
		if err := level.scope.Set(name, value, scope.NoFlags); err != nil {
			return nil, ev.wrapError(err)
		}
		return value, nil
	}
}

func metaReader(t *ClassTemplate, name string) NativeFunc {
	return func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
		return ev.rt.asObject(t.meta.Get(name)), nil
	}
}

func metaWriter(t *ClassTemplate, name string) NativeFunc {
	return func(ev *Evaluator, _ *Object, args []*Object) (*Object, error) {
		value := ev.assignable(args[0])
		if err := t.meta.Set(name, value, scope.NoFlags); err != nil {
			return nil, ev.wrapError(err)
		}
		return value, nil
	}
}

// metaInit runs a class's own (@@) init the first time the class is
// defined with one. Redefinitions never run it again.
func (ev *Evaluator) metaInit(t *ClassTemplate, def *ast.ClassDefinition) error {
	if !t.metaMethods.Has(config.InitMethodName) {
		return nil
	}
	t.mu.Lock()
	if t.metaInitialized {
		t.mu.Unlock()
		return nil
	}
	t.metaInitialized = true
	t.mu.Unlock()
	_, err := ev.send(t.metaObject, nil, config.InitMethodName, nil, ast.PosOf(def))
	return err
}
