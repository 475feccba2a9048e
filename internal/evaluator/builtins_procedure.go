package evaluator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

func errMissingAux(class string) error {
	return fmt.Errorf("%w: %s without its data", node.ErrUnmarshall, class)
}

func procedureDefinition() *Definition {
	return &Definition{
		Package:       config.CorePackage,
		Name:          config.ProcedureClassName,
		Super:         objectFQ,
		Shared:        true,
		MarshallAux:   marshallProcedure,
		UnmarshallAux: unmarshallProcedure,
		Mark: func(o *Object, mark func(node.Node)) {
			if p, ok := o.aux.(*procedure); ok && p.body != nil {
				mark(p.body)
			}
		},
		Methods: []MethodSpec{
			{Name: config.AsStringMethodName, Native: procedureAsString},
			{Name: config.DescribeMethodName, Native: procedureAsString},
			{Name: "name", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				p, _ := auxOf[*procedure](self)
				return ev.rt.NewString(p.name), nil
			}},
		},
	}
}

func procedureAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	p, _ := auxOf[*procedure](self)
	return ev.rt.NewString("#Procedure(" + p.frameName() + ")"), nil
}

// blockData is the aux of a Block: its arguments, its body and the
// scopes it closed over, together with the self and class that were
// running when it was created.
type blockData struct {
	args     []string
	body     *ast.List
	scopes   []*scope.Scope
	self     *Object
	template *ClassTemplate
}

func blockDefinition() *Definition {
	return &Definition{
		Package:       config.CorePackage,
		Name:          config.BlockClassName,
		Super:         objectFQ,
		Evaluate:      evaluateBlock,
		Copy:          copyBlock,
		Mark:          markBlock,
		MarshallAux:   marshallBlock,
		UnmarshallAux: unmarshallBlock,
		Methods: []MethodSpec{
			{Name: config.ValueMethodName, Native: blockValue},
			{Name: "value:", Native: blockValue},
			{Name: "value:value:", Native: blockValue},
			{Name: "value:value:value:", Native: blockValue},
			{Name: config.ValueWithMethodName, Native: blockValueWithArguments, Signature: []string{arrayFQ}},
			{Name: config.CallMethodName, Native: blockValue, Variadic: true},
			{Name: "argumentCount", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				b, _ := auxOf[*blockData](self)
				return ev.rt.NewNumberInt(int64(len(b.args))), nil
			}},
			{Name: config.AsStringMethodName, Native: func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
				return ev.rt.NewString("#Block"), nil
			}},
		},
	}
}

// evaluateBlock closes a block literal over the running scopes.
func evaluateBlock(ev *Evaluator, literal *Object) (*Object, error) {
	src := literal.aux.(*blockData)
	st := ev.top()
	data := &blockData{
		args:     src.args,
		body:     src.body,
		scopes:   append([]*scope.Scope(nil), st.scopes...),
		self:     st.self,
		template: st.template,
	}
	return ev.rt.instanceOf(blockFQ, data), nil
}

func copyBlock(dst, src *Object, depth node.Depth) {
	b, ok := src.aux.(*blockData)
	if !ok {
		dst.aux = src.aux
		return
	}
	c := *b
	c.scopes = append([]*scope.Scope(nil), b.scopes...)
	if depth == node.Deep {
		globals := src.template.rt.globals
		for i, sc := range c.scopes {
			if sc != globals {
				c.scopes[i] = sc.Copy(node.Deep)
			}
		}
	}
	dst.aux = &c
}

func markBlock(o *Object, mark func(node.Node)) {
	b, ok := o.aux.(*blockData)
	if !ok {
		return
	}
	globals := o.template.rt.globals
	for _, sc := range b.scopes {
		if sc != globals {
			sc.Trace(mark)
		}
	}
	if b.self != nil {
		mark(b.self)
	}
	if b.body != nil {
		mark(b.body)
	}
}

// A marshalled block keeps its arguments, its body and the captured
// bindings flattened into one scope. self is not kept.
func marshallBlock(o *Object, e *node.Encoder) {
	b := o.aux.(*blockData)
	flat := scope.New()
	globals := o.template.rt.globals
	for _, sc := range b.scopes {
		if sc == globals {
			continue
		}
		for _, d := range sc.Snapshot() {
			flat.Set(d.Name, d.Value, d.Flags&^scope.Constant)
		}
	}
	var body node.Node
	if b.body != nil {
		body = b.body
	}
	e.Write("lnS", stringNodes(b.args), body, flat)
}

func unmarshallBlock(rt *Runtime, o *Object, d *node.Decoder) error {
	var (
		args []node.Node
		body node.Node
	)
	flat := scope.New()
	if err := d.Read("lnS", &args, &body, flat); err != nil {
		return err
	}
	names, err := nodeStrings(args)
	if err != nil {
		return d.Errorf("block arguments: %v", err)
	}
	list, _ := body.(*ast.List)
	if body != nil && list == nil {
		return d.Errorf("block with a %s body", kindName(body))
	}
	o.aux = &blockData{
		args:   names,
		body:   list,
		scopes: []*scope.Scope{rt.globals, flat},
		self:   rt.nilObject,
	}
	return nil
}

func stringNodes(values []string) []node.Node {
	result := make([]node.Node, len(values))
	for i, v := range values {
		result[i] = node.NewString(v)
	}
	return result
}

func nodeStrings(nodes []node.Node) ([]string, error) {
	result := make([]string, len(nodes))
	for i, n := range nodes {
		s, ok := n.(*node.String)
		if !ok {
			return nil, fmt.Errorf("%s where a name was expected", kindName(n))
		}
		result[i] = s.Value
	}
	return result, nil
}

func blockValue(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	return ev.callBlock(self, args)
}

func blockValueWithArguments(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	return ev.callBlock(self, ev.rt.objects(arrayOf(args[0]).Items))
}

// callBlock runs a block on a new object stack whose scopes are the
// captured ones plus a scope holding the arguments.
func (ev *Evaluator) callBlock(block *Object, args []*Object) (*Object, error) {
	b, ok := auxOf[*blockData](block)
	if !ok {
		return nil, ev.throwNew("InvalidCastException", block.template.ShortName(), config.BlockClassName)
	}
	if len(args) != len(b.args) {
		return nil, ev.throwNew("InvalidNumberArgumentsException", len(b.args), len(args))
	}
	if len(ev.CallStack) >= ev.rt.cfg.Evaluator.MaxStackDepth {
		return nil, ev.throwNew("StackOverflowException")
	}
	sc := scope.New()
	for i, name := range b.args {
		sc.Set(name, ev.assignable(args[i]), scope.NoFlags)
	}
	ev.CallStack = append(ev.CallStack, CallFrame{Name: config.BlockClassName})
	defer func() { ev.CallStack = ev.CallStack[:len(ev.CallStack)-1] }()

	scopes := append(append(make([]*scope.Scope, 0, len(b.scopes)+1), b.scopes...), sc)
	ev.push(&objectStack{scopes: scopes, self: ev.orNil(b.self), template: b.template, callable: true})
	defer ev.pop()
	return ev.returned(ev.evalList(b.body))
}

// functionData is the aux of a Function: f(x) = body, plus the cases
// added by f(0) = 1 style updates, which are matched first.
type functionData struct {
	args   []string
	body   node.Node
	scopes []*scope.Scope

	mu    sync.Mutex
	cases []functionCase
}

func (f *functionData) snapshot() []functionCase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]functionCase(nil), f.cases...)
}

type functionCase struct {
	values []*Object
	body   node.Node
}

func functionDefinition() *Definition {
	return &Definition{
		Package:       config.CorePackage,
		Name:          config.FunctionClassName,
		Super:         objectFQ,
		Evaluate:      evaluateFunction,
		Copy:          copyFunction,
		Mark:          markFunction,
		MarshallAux:   marshallFunction,
		UnmarshallAux: unmarshallFunction,
		Methods: []MethodSpec{
			{Name: config.CallMethodName, Native: functionCall, Variadic: true},
			{Name: config.ValueWithMethodName, Native: func(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
				return ev.callFunction(self, ev.rt.objects(arrayOf(args[0]).Items))
			}, Signature: []string{arrayFQ}},
			{Name: config.AsStringMethodName, Native: func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
				return ev.rt.NewString("#Function"), nil
			}},
		},
	}
}

func evaluateFunction(ev *Evaluator, literal *Object) (*Object, error) {
	src := literal.aux.(*functionData)
	st := ev.top()
	data := &functionData{
		args:   src.args,
		body:   src.body,
		scopes: append([]*scope.Scope(nil), st.scopes...),
	}
	return ev.rt.instanceOf(functionFQ, data), nil
}

func copyFunction(dst, src *Object, depth node.Depth) {
	f, ok := src.aux.(*functionData)
	if !ok {
		dst.aux = src.aux
		return
	}
	cases := f.snapshot()
	c := &functionData{
		args:   f.args,
		body:   f.body,
		scopes: append([]*scope.Scope(nil), f.scopes...),
		cases:  make([]functionCase, len(cases)),
	}
	for i, fc := range cases {
		c.cases[i] = functionCase{values: append([]*Object(nil), fc.values...), body: fc.body}
		if depth == node.Deep {
			for j, v := range fc.values {
				c.cases[i].values[j] = v.Copy(node.Deep).(*Object)
			}
		}
	}
	dst.aux = c
}

func markFunction(o *Object, mark func(node.Node)) {
	f, ok := o.aux.(*functionData)
	if !ok {
		return
	}
	globals := o.template.rt.globals
	for _, sc := range f.scopes {
		if sc != globals {
			sc.Trace(mark)
		}
	}
	if f.body != nil {
		mark(f.body)
	}
	for _, fc := range f.snapshot() {
		for _, v := range fc.values {
			mark(v)
		}
		if fc.body != nil {
			mark(fc.body)
		}
	}
}

func marshallFunction(o *Object, e *node.Encoder) {
	f := o.aux.(*functionData)
	cases := f.snapshot()
	e.Write("lnw", stringNodes(f.args), f.body, uint32(len(cases)))
	for _, fc := range cases {
		e.Write("ln", nodes(fc.values), fc.body)
	}
}

func unmarshallFunction(rt *Runtime, o *Object, d *node.Decoder) error {
	var (
		args  []node.Node
		body  node.Node
		count uint32
	)
	if err := d.Read("lnw", &args, &body, &count); err != nil {
		return err
	}
	names, err := nodeStrings(args)
	if err != nil {
		return d.Errorf("function arguments: %v", err)
	}
	if int(count) > d.Remaining() {
		return d.Errorf("function with %d cases and %d bytes left", count, d.Remaining())
	}
	f := &functionData{args: names, body: body, scopes: []*scope.Scope{rt.globals}}
	for i := uint32(0); i < count; i++ {
		var (
			values   []node.Node
			caseBody node.Node
		)
		if err := d.Read("ln", &values, &caseBody); err != nil {
			return err
		}
		if len(values) != len(names) {
			return d.Errorf("function case with %d values for %d arguments", len(values), len(names))
		}
		f.cases = append(f.cases, functionCase{values: rt.objects(values), body: caseBody})
	}
	o.aux = f
	return nil
}

func functionCall(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	return ev.callFunction(self, args)
}

// addFunctionCase adds or replaces the case for values. Cases are
// compared outside the lock.
func (ev *Evaluator) addFunctionCase(f *functionData, values []*Object, body node.Node) error {
	cases := f.snapshot()
	for i, fc := range cases {
		same, err := ev.itemsEqual(fc.values, values)
		if err != nil {
			return err
		}
		if same {
			f.mu.Lock()
			if i < len(f.cases) {
				f.cases[i].body = body
			}
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Lock()
	f.cases = append(f.cases, functionCase{values: values, body: body})
	f.mu.Unlock()
	return nil
}

// callFunction evaluates the first case whose values equal the
// arguments, or the general body with the arguments bound.
func (ev *Evaluator) callFunction(fn *Object, args []*Object) (*Object, error) {
	f, ok := auxOf[*functionData](fn)
	if !ok {
		return nil, ev.throwNew("InvalidCastException", fn.template.ShortName(), config.FunctionClassName)
	}
	if len(args) != len(f.args) {
		return nil, ev.throwNew("InvalidNumberArgumentsException", len(f.args), len(args))
	}
	if len(ev.CallStack) >= ev.rt.cfg.Evaluator.MaxStackDepth {
		return nil, ev.throwNew("StackOverflowException")
	}
	body := f.body
	for _, fc := range f.snapshot() {
		match, err := ev.itemsEqual(fc.values, args)
		if err != nil {
			return nil, err
		}
		if match {
			body = fc.body
			break
		}
	}

	sc := scope.New()
	for i, name := range f.args {
		sc.Set(name, ev.assignable(args[i]), scope.NoFlags)
	}
	ev.CallStack = append(ev.CallStack, CallFrame{Name: config.FunctionClassName})
	defer func() { ev.CallStack = ev.CallStack[:len(ev.CallStack)-1] }()
	scopes := append(append(make([]*scope.Scope, 0, len(f.scopes)+1), f.scopes...), sc)
	ev.push(&objectStack{scopes: scopes, self: ev.rt.nilObject, callable: true})
	defer ev.pop()
	result, err := ev.eval(body)
	if errors.Is(err, errBreak) {
		return nil, ev.throwNew("BreakWithoutALoopException")
	}
	return ev.returned(result, err)
}
