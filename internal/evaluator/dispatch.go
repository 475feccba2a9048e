package evaluator

import (
	"errors"
	"strings"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

// procedure is the aux of a Procedure object: a method body with its
// owner. Natives carry a Go function, user methods a header and body.
type procedure struct {
	owner     *ClassTemplate
	name      string
	flags     scope.Flags
	native    NativeFunc
	signature []string
	variadic  bool

	header *ast.MethodHeader
	body   *ast.List
}

func (p *procedure) arity() int {
	switch {
	case p.header != nil:
		return len(p.header.Arguments)
	case p.signature != nil:
		return len(p.signature)
	}
	return strings.Count(p.name, ":")
}

func (p *procedure) frameName() string {
	if p.owner == nil {
		return p.name
	}
	return p.owner.ShortName() + " " + p.name
}

func (rt *Runtime) procedureObject(p *procedure) *Object {
	o := &Object{template: rt.rawTemplate(procedureFQ), isObject: true, aux: p}
	o.hdr.SetTemplate(true)
	return o
}

func (rt *Runtime) newNativeProcedure(owner *ClassTemplate, spec MethodSpec) *Object {
	return rt.procedureObject(&procedure{
		owner:     owner,
		name:      spec.Name,
		flags:     spec.Flags | scope.Method,
		native:    spec.Native,
		signature: spec.Signature,
		variadic:  spec.Variadic,
	})
}

func (rt *Runtime) newUserProcedure(owner *ClassTemplate, header *ast.MethodHeader, body *ast.List) *Object {
	return rt.procedureObject(&procedure{
		owner:  owner,
		name:   header.Name,
		flags:  header.Flags | scope.Method,
		header: header,
		body:   body,
	})
}

// send resolves name on the receiver, starting at start when set, and
// invokes the method found.
func (ev *Evaluator) send(receiver *Object, start *ClassTemplate, name string, args []*Object, pos ast.Position) (*Object, error) {
	receiver = ev.orNil(receiver)
	t := start
	if t == nil {
		t = receiver.template
	}
	method, owner := t.findMethod(name, !receiver.isObject)
	if method == nil {
		return nil, ev.throwNew("UnidentifiedMethodException", receiver.template.ShortName(), name)
	}
	p := method.aux.(*procedure)
	if p.flags.Has(scope.Protected) && !ev.mayCallProtected(owner) {
		return nil, ev.throwNew("UnidentifiedMethodException", receiver.template.ShortName(), name)
	}
	return ev.invoke(receiver, method, args, pos)
}

// mayCallProtected reports whether code running now belongs to owner
// or one of its subclasses.
func (ev *Evaluator) mayCallProtected(owner *ClassTemplate) bool {
	caller := ev.top().template
	return caller != nil && caller.IsKindOf(owner)
}

// invoke runs a Procedure object with self bound to receiver.
func (ev *Evaluator) invoke(self, method *Object, args []*Object, pos ast.Position) (*Object, error) {
	p, ok := auxOf[*procedure](method)
	if !ok {
		return nil, ev.throwNew("InvalidCastException", method.template.ShortName(), config.ProcedureClassName)
	}
	if len(ev.CallStack) >= ev.rt.cfg.Evaluator.MaxStackDepth {
		return nil, ev.throwNew("StackOverflowException")
	}
	if err := ev.checkArguments(p, args); err != nil {
		return nil, err
	}

	ev.CallStack = append(ev.CallStack, CallFrame{Name: p.frameName(), File: pos.Filename, Line: pos.Line})
	defer func() { ev.CallStack = ev.CallStack[:len(ev.CallStack)-1] }()

	release, err := ev.acquire(self, p.flags)
	if err != nil {
		return nil, err
	}
	defer release()

	if p.native != nil {
		result, err := p.native(ev, self, args)
		if err != nil {
			return nil, ev.wrapError(err)
		}
		return ev.orNil(result), nil
	}
	return ev.runBody(self, p, args)
}

func (ev *Evaluator) checkArguments(p *procedure, args []*Object) error {
	if !p.variadic && len(args) != p.arity() {
		return ev.throwNew("InvalidNumberArgumentsException", p.arity(), len(args))
	}
	if p.signature == nil || p.flags.Has(scope.NoCast) {
		return nil
	}
	for i, want := range p.signature {
		if want == "" || i >= len(args) {
			continue
		}
		if arg := ev.orNil(args[i]); !arg.template.IsKindOfName(want) {
			return ev.throwNew("InvalidCastException", arg.template.ShortName(), shortName(want))
		}
	}
	return nil
}

// runBody evaluates a user method: arguments bound in a fresh scope,
// a new object stack for self, return consumed here.
func (ev *Evaluator) runBody(self *Object, p *procedure, args []*Object) (*Object, error) {
	sc := scope.New()
	for i, name := range p.header.Arguments {
		if err := sc.Set(name, ev.assignable(args[i]), scope.NoFlags); err != nil {
			return nil, ev.wrapError(err)
		}
	}
	ev.push(&objectStack{
		scopes:       []*scope.Scope{sc},
		self:         self,
		template:     p.owner,
		breakthrough: p.flags.Has(scope.Breakthrough),
		callable:     true,
	})
	defer ev.pop()
	if err := ev.checkpoint(); err != nil {
		return nil, err
	}
	return ev.returned(ev.evalList(p.body))
}

func (ev *Evaluator) returned(result *Object, err error) (*Object, error) {
	var ret *ReturnSignal
	if errors.As(err, &ret) {
		return ev.orNil(ret.Value), nil
	}
	if err != nil {
		return nil, err
	}
	return ev.orNil(result), nil
}

// Procedures marshall by reference to their owner: the class name, the
// method name and, for user methods, the header and body.
func marshallProcedure(o *Object, e *node.Encoder) {
	p := o.aux.(*procedure)
	owner := ""
	if p.owner != nil {
		owner = p.owner.MarshallID
	}
	e.Write("XXbbw", owner, p.name, p.native != nil, p.flags.Has(scope.Meta), uint32(p.flags))
	if p.native == nil {
		var body node.Node
		if p.body != nil {
			body = p.body
		}
		e.Write("nn", p.header, body)
	}
}

func unmarshallProcedure(rt *Runtime, o *Object, d *node.Decoder) error {
	var (
		owner, name  string
		native, meta bool
		flags        uint32
	)
	if err := d.Read("XXbbw", &owner, &name, &native, &meta, &flags); err != nil {
		return err
	}
	t := rt.Template(owner)
	if t == nil {
		return d.Errorf("procedure of unknown class %q", owner)
	}
	if native {
		table := t.methods
		if meta {
			table = t.metaMethods
		}
		method, ok := table.Get(name).(*Object)
		if !ok {
			return d.Errorf("class %s has no native %q", owner, name)
		}
		o.aux = method.aux
		return nil
	}
	var header, body node.Node
	if err := d.Read("nn", &header, &body); err != nil {
		return err
	}
	h, ok := header.(*ast.MethodHeader)
	if !ok {
		return d.Errorf("procedure %q without a method header", name)
	}
	list, _ := body.(*ast.List)
	if body != nil && list == nil {
		return d.Errorf("procedure %q with a %s body", name, kindName(body))
	}
	o.aux = &procedure{owner: t, name: name, flags: scope.Flags(flags), header: h, body: list}
	return nil
}
