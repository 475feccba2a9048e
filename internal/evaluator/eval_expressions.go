package evaluator

import (
	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

// eval dispatches on the graph data variant.
func (ev *Evaluator) eval(n node.Node) (*Object, error) {
	switch n := n.(type) {
	case nil:
		return ev.rt.nilObject, nil
	case *Object:
		return n, nil
	case *ast.Tree:
		return ev.evalList(n.Statements())
	case *ast.List:
		return ev.evalList(n)
	case *ast.Class:
		return ev.evalClass(n)
	case *ast.GraphDataNode:
		return ev.eval(n.Node)
	case *ast.Identifier:
		return ev.evalIdentifier(n)
	case *ast.Assignment:
		return ev.evalAssignment(n)
	case *ast.MethodCall:
		return ev.evalMethodCall(n)
	case *ast.NotEqualCall:
		result, err := ev.eval(n.Call)
		if err != nil {
			return nil, err
		}
		return ev.rt.Bool(result != ev.rt.yes), nil
	case *ast.FlatArithmetic:
		return ev.evalFlatArithmetic(n)
	case *ast.And:
		return ev.evalAnd(n)
	case *ast.Or:
		return ev.evalOr(n)
	case *ast.In:
		return ev.evalIn(n)
	case *ast.True:
		return ev.rt.yes, nil
	case *ast.False:
		return ev.rt.no, nil
	case *ast.Nil:
		return ev.rt.nilObject, nil
	case *ast.Self, *ast.Super:
		return ev.orNil(ev.top().self), nil
	case *ast.UpSelf:
		if len(ev.stacks) < 2 {
			return ev.rt.nilObject, nil
		}
		return ev.orNil(ev.stacks[len(ev.stacks)-2].self), nil
	case *ast.Symbol:
		return ev.rt.Symbol(n.Name), nil
	case *ast.New:
		return ev.evalNew(n)
	case *ast.FunctionUpdate:
		return ev.evalFunctionUpdate(n)
	case *ast.If:
		return ev.evalIf(n)
	case *ast.While:
		return ev.evalWhile(n)
	case *ast.For:
		return ev.evalFor(n)
	case *ast.TryBlock:
		return ev.evalTry(n)
	case *ast.Throw:
		return ev.evalThrow(n)
	case *ast.Return:
		return ev.evalReturn(n)
	case *ast.Break:
		if ev.top().loops == 0 {
			return nil, ev.throwNew("BreakWithoutALoopException")
		}
		return nil, errBreak
	case *ast.Exit:
		return nil, ErrExit
	case *ast.Synchronized:
		return ev.evalSynchronized(n)
	case *ast.Package:
		ev.pkg = n.Name()
		return ev.rt.nilObject, nil
	case *ast.Import:
		return ev.evalImport(n)
	case *ast.ClassDefinition:
		return ev.defineClass(n, nil)
	}
	return nil, ev.throwNew("RuntimeException", "cannot evaluate "+kindName(n))
}

func (ev *Evaluator) evalList(list *ast.List) (*Object, error) {
	result := ev.rt.nilObject
	if list == nil {
		return result, nil
	}
	for _, item := range list.Items {
		if err := ev.checkpoint(); err != nil {
			return nil, err
		}
		value, err := ev.eval(item)
		if err != nil {
			return nil, err
		}
		result = value
	}
	return result, nil
}

// evalClass turns a literal of the program graph into a value. Literal
// containers are built fresh on every evaluation; atomic literals are
// copied so the graph never changes.
func (ev *Evaluator) evalClass(c *ast.Class) (*Object, error) {
	o, ok := c.Object.(*Object)
	if !ok {
		return nil, ev.throwNew("RuntimeException", "literal is not an object: "+kindName(c.Object))
	}
	switch {
	case o.uninitialized:
		for level := o; level != nil; level = level.super {
			if hook := level.template.def.Evaluate; hook != nil {
				return hook(ev, o)
			}
		}
		return o, nil
	case o.isObject && o.template.Flags.Has(ast.ClassAtomic):
		return o.Copy(node.Deep).(*Object), nil
	}
	return o, nil
}

func (ev *Evaluator) evalIdentifier(id *ast.Identifier) (*Object, error) {
	value, err := ev.lookup(id)
	if err != nil {
		return nil, err
	}
	return ev.awaitFuture(value)
}

func (ev *Evaluator) evalAssignment(a *ast.Assignment) (*Object, error) {
	id, ok := a.Identifier.(*ast.Identifier)
	if !ok {
		return nil, ev.throwNew("RuntimeException", "cannot assign to "+kindName(a.Identifier))
	}
	value, err := ev.eval(a.Value)
	if err != nil {
		return nil, err
	}
	value = ev.assignable(value)
	if err := ev.assign(id, value, a.Flags); err != nil {
		return nil, err
	}
	ev.register(value)
	return value, nil
}

func (ev *Evaluator) evalMethodCall(call *ast.MethodCall) (*Object, error) {
	if op, ok := ast.OperatorForAssignMethod(call.Name); ok {
		return ev.evalCompoundAssignment(call, op)
	}

	receiver, start, err := ev.receiver(call)
	if err != nil {
		return nil, err
	}
	pin(receiver)
	defer unpin(receiver)

	args, err := ev.evalArguments(call.Arguments)
	if err != nil {
		return nil, err
	}
	defer unpin(args...)
	return ev.send(receiver, start, call.Name, args, ast.PosOf(call))
}

// receiver evaluates the receiver of call. For super sends it also
// returns the template where method lookup starts.
func (ev *Evaluator) receiver(call *ast.MethodCall) (*Object, *ClassTemplate, error) {
	switch r := call.Receiver.(type) {
	case nil:
		return ev.orNil(ev.top().self), nil, nil
	case *ast.Super:
		st := ev.top()
		self := ev.orNil(st.self)
		t := st.template
		if t == nil {
			t = self.template
		}
		if t.Super() == nil {
			return nil, nil, ev.throwNew("UnidentifiedMethodException", self.template.ShortName(), call.Name)
		}
		return self, t.Super(), nil
	case *ast.Identifier:
		value, err := ev.lookup(r)
		if err != nil {
			return nil, nil, err
		}
		// future methods act on the future itself instead of its value
		if ev.isFuture(value) && value.template.RespondsTo(call.Name, false) {
			return value, nil, nil
		}
		value, err = ev.awaitFuture(value)
		return value, nil, err
	}
	value, err := ev.eval(call.Receiver)
	return value, nil, err
}

func (ev *Evaluator) evalArguments(nodes []node.Node) ([]*Object, error) {
	args := make([]*Object, 0, len(nodes))
	for _, n := range nodes {
		value, err := ev.eval(n)
		if err != nil {
			unpin(args...)
			return nil, err
		}
		pin(value)
		args = append(args, value)
	}
	return args, nil
}

// evalCompoundAssignment handles `x op= value`. A receiver that
// understands the compound method mutates itself; otherwise the binary
// operator result is assigned back to the target.
func (ev *Evaluator) evalCompoundAssignment(call *ast.MethodCall, op ast.Operator) (*Object, error) {
	pos := ast.PosOf(call)
	if target, ok := call.Receiver.(*ast.MethodCall); ok && target.Name == config.IndexMethodName {
		container, _, err := ev.receiver(target)
		if err != nil {
			return nil, err
		}
		pin(container)
		defer unpin(container)
		indexes, err := ev.evalArguments(target.Arguments)
		if err != nil {
			return nil, err
		}
		defer unpin(indexes...)
		values, err := ev.evalArguments(call.Arguments)
		if err != nil {
			return nil, err
		}
		defer unpin(values...)
		current, err := ev.send(container, nil, config.IndexMethodName, indexes, pos)
		if err != nil {
			return nil, err
		}
		if current.template.RespondsTo(call.Name, !current.isObject) {
			return ev.send(current, nil, call.Name, values, pos)
		}
		result, err := ev.send(current, nil, op.MethodName(), values, pos)
		if err != nil {
			return nil, err
		}
		setArgs := append(append([]*Object{}, indexes...), result)
		if _, err := ev.send(container, nil, config.IndexSetMethodName, setArgs, pos); err != nil {
			return nil, err
		}
		return result, nil
	}

	receiver, _, err := ev.receiver(call)
	if err != nil {
		return nil, err
	}
	pin(receiver)
	defer unpin(receiver)
	values, err := ev.evalArguments(call.Arguments)
	if err != nil {
		return nil, err
	}
	defer unpin(values...)
	if receiver.template.RespondsTo(call.Name, !receiver.isObject) {
		return ev.send(receiver, nil, call.Name, values, pos)
	}
	result, err := ev.send(receiver, nil, op.MethodName(), values, pos)
	if err != nil {
		return nil, err
	}
	if id, ok := call.Receiver.(*ast.Identifier); ok {
		result = ev.assignable(result)
		if err := ev.assign(id, result, 0); err != nil {
			return nil, err
		}
		ev.register(result)
	}
	return result, nil
}

// evalFlatArithmetic folds the chain through the operator method.
func (ev *Evaluator) evalFlatArithmetic(f *ast.FlatArithmetic) (*Object, error) {
	name := f.Operator.MethodName()
	pos := ast.PosOf(f)
	var pinned []*Object
	defer func() { unpin(pinned...) }()
	result, err := ast.Fold(f,
		func(n node.Node) (node.Node, error) {
			value, err := ev.eval(n)
			if err != nil {
				return nil, err
			}
			pin(value)
			pinned = append(pinned, value)
			return value, nil
		},
		func(left, right node.Node) (node.Node, error) {
			value, err := ev.send(left.(*Object), nil, name, []*Object{right.(*Object)}, pos)
			if err != nil {
				return nil, err
			}
			pin(value)
			pinned = append(pinned, value)
			return value, nil
		})
	if err != nil {
		return nil, err
	}
	return result.(*Object), nil
}

func (ev *Evaluator) evalAnd(n *ast.And) (*Object, error) {
	left, err := ev.eval(n.Left)
	if err != nil || left != ev.rt.yes {
		return ev.rt.no, err
	}
	right, err := ev.eval(n.Right)
	if err != nil {
		return nil, err
	}
	return ev.rt.Bool(right == ev.rt.yes), nil
}

func (ev *Evaluator) evalOr(n *ast.Or) (*Object, error) {
	left, err := ev.eval(n.Left)
	if err != nil {
		return nil, err
	}
	if left == ev.rt.yes {
		return ev.rt.yes, nil
	}
	right, err := ev.eval(n.Right)
	if err != nil {
		return nil, err
	}
	return ev.rt.Bool(right == ev.rt.yes), nil
}

func (ev *Evaluator) evalIn(n *ast.In) (*Object, error) {
	left, err := ev.eval(n.Left)
	if err != nil {
		return nil, err
	}
	pin(left)
	defer unpin(left)
	for _, v := range n.Values {
		value, err := ev.eval(v)
		if err != nil {
			return nil, err
		}
		equal, err := ev.equals(left, value)
		if err != nil {
			return nil, err
		}
		if equal {
			return ev.rt.yes, nil
		}
	}
	return ev.rt.no, nil
}

// evalNew instantiates a class and sends it init.
func (ev *Evaluator) evalNew(n *ast.New) (*Object, error) {
	id, ok := n.Identifier.(*ast.Identifier)
	if !ok {
		return nil, ev.throwNew("RuntimeException", "new needs a class name")
	}
	t := ev.lookupClass(id.Name)
	if t == nil {
		value, err := ev.lookup(id)
		if err != nil {
			return nil, ev.throwNew("UnidentifiedClassException", id.Name)
		}
		if value.isObject {
			return nil, ev.throwNew("NeedMetaClassException", value.template.ShortName())
		}
		t = value.template
	}
	return ev.newInstance(t, ast.PosOf(n))
}

func (ev *Evaluator) newInstance(t *ClassTemplate, pos ast.Position) (*Object, error) {
	switch {
	case t.Flags.Has(ast.ClassAbstract):
		return nil, ev.throwNew("AbstractClassInstantiationException", t.ShortName())
	case t.Flags.Has(ast.ClassSingleton):
		return nil, ev.throwNew("SingletonInstantiationException", t.ShortName())
	}
	o := t.instantiate()
	pin(o)
	defer unpin(o)
	if _, err := ev.send(o, nil, config.InitMethodName, nil, pos); err != nil {
		return nil, err
	}
	return o, nil
}

// equals is `==` as the language sees it.
func (ev *Evaluator) equals(a, b *Object) (bool, error) {
	if a == b {
		return true, nil
	}
	result, err := ev.send(a, nil, config.EqualsMethodName, []*Object{b}, ast.Position{})
	if err != nil {
		return false, err
	}
	return result == ev.rt.yes, nil
}

// Compare orders a and b through compare:, which must answer one of
// the symbols #lessThan, #equal or #greaterThan.
func (ev *Evaluator) Compare(a, b *Object) (node.Ordering, error) {
	result, err := ev.send(a, nil, config.CompareMethodName, []*Object{b}, ast.Position{})
	if err != nil {
		return node.Uncomparable, err
	}
	switch result {
	case ev.rt.Symbol("lessThan"):
		return node.Less, nil
	case ev.rt.Symbol("equal"):
		return node.Equal, nil
	case ev.rt.Symbol("greaterThan"):
		return node.Greater, nil
	}
	return node.Uncomparable, ev.throwNew("InvalidComparisonResultException", result)
}

func (ev *Evaluator) orderingSymbol(o node.Ordering) *Object {
	switch o {
	case node.Less:
		return ev.rt.Symbol("lessThan")
	case node.Greater:
		return ev.rt.Symbol("greaterThan")
	}
	return ev.rt.Symbol("equal")
}

// stringValue converts o with asString, which must answer a String.
func (ev *Evaluator) stringValue(o *Object) (string, error) {
	if s, ok := ev.stringOf(o); ok {
		return s, nil
	}
	result, err := ev.send(o, nil, config.AsStringMethodName, nil, ast.Position{})
	if err != nil {
		return "", err
	}
	if s, ok := ev.stringOf(result); ok {
		return s, nil
	}
	return "", ev.throwNew("InvalidCastException", result.template.ShortName(), config.StringClassName)
}

// stringOf returns the text of a String instance.
func (ev *Evaluator) stringOf(o *Object) (string, bool) {
	if o == nil || !o.isObject || !o.template.IsKindOfName(stringFQ) {
		return "", false
	}
	s, ok := auxOf[*node.String](o)
	if !ok {
		return "", false
	}
	return s.Value, true
}
