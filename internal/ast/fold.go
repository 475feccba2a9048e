package ast

import "github.com/funvibe/taffy/internal/node"

// Fold reduces the values of f with combine, left to right, or right to
// left for right associative operators. The values are passed through
// eval first; a nil eval uses them as they are.
func Fold(f *FlatArithmetic, eval func(node.Node) (node.Node, error),
	combine func(left, right node.Node) (node.Node, error)) (node.Node, error) {

	node.Assert(len(f.Values) > 0, "empty FlatArithmetic")
	value := func(i int) (node.Node, error) {
		if eval == nil {
			return f.Values[i], nil
		}
		return eval(f.Values[i])
	}

	if f.Operator.RightAssociative() {
		acc, err := value(len(f.Values) - 1)
		if err != nil {
			return nil, err
		}
		for i := len(f.Values) - 2; i >= 0; i-- {
			left, err := value(i)
			if err != nil {
				return nil, err
			}
			if acc, err = combine(left, acc); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}

	acc, err := value(0)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(f.Values); i++ {
		right, err := value(i)
		if err != nil {
			return nil, err
		}
		if acc, err = combine(acc, right); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Flatten merges ungrouped child chains of the same operator into f, in
// place, so that rewritten trees keep the one-node-per-chain shape. The
// merge is only done for associative operators.
func Flatten(f *FlatArithmetic) *FlatArithmetic {
	switch f.Operator {
	case OpAdd, OpMultiply, OpBitAnd, OpBitOr, OpBitXor:
	default:
		return f
	}
	values := make([]node.Node, 0, len(f.Values))
	for _, v := range f.Values {
		if child, ok := v.(*FlatArithmetic); ok && !child.Grouped && child.Operator == f.Operator {
			values = append(values, Flatten(child).Values...)
			continue
		}
		values = append(values, v)
	}
	f.Values = values
	return f
}

// Constant reports whether every value of f is a literal or a constant
// chain, i.e. the chain can be folded without a scope.
func Constant(f *FlatArithmetic) bool {
	for _, v := range f.Values {
		switch v := v.(type) {
		case *Class:
		case *FlatArithmetic:
			if !Constant(v) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Identifiers calls visit for every identifier name read by n. Function
// objects use it to find their free variables.
func Identifiers(n node.Node, visit func(name string)) {
	switch n := n.(type) {
	case nil:
	case *Identifier:
		visit(n.Name)
	case *FlatArithmetic:
		for _, v := range n.Values {
			Identifiers(v, visit)
		}
	case *MethodCall:
		Identifiers(n.Receiver, visit)
		for _, a := range n.Arguments {
			Identifiers(a, visit)
		}
	case *NotEqualCall:
		Identifiers(n.Call, visit)
	case *And:
		Identifiers(n.Left, visit)
		Identifiers(n.Right, visit)
	case *Or:
		Identifiers(n.Left, visit)
		Identifiers(n.Right, visit)
	case *List:
		for _, item := range n.Items {
			Identifiers(item, visit)
		}
	case *Return:
		Identifiers(n.Value, visit)
	case *Assignment:
		Identifiers(n.Value, visit)
	}
}
