package evaluator

import (
	"fmt"
	"math/big"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

var (
	objectFQ    = config.QualifiedName(config.CorePackage, config.ObjectClassName)
	nilFQ       = config.QualifiedName(config.CorePackage, config.NilClassName)
	stringFQ    = config.QualifiedName(config.CorePackage, config.StringClassName)
	symbolFQ    = config.QualifiedName(config.CorePackage, config.SymbolClassName)
	procedureFQ = config.QualifiedName(config.CorePackage, config.ProcedureClassName)
	blockFQ     = config.QualifiedName(config.CorePackage, config.BlockClassName)
	functionFQ  = config.QualifiedName(config.CorePackage, config.FunctionClassName)
	numberFQ    = config.QualifiedName(config.MathsPackage, config.NumberClassName)
	complexFQ   = config.QualifiedName(config.MathsPackage, config.ComplexNumberClassName)
	matrixFQ    = config.QualifiedName(config.MathsPackage, config.MatrixClassName)
	arrayFQ     = config.QualifiedName(config.ContainerPackage, config.ArrayClassName)
	listFQ      = config.QualifiedName(config.ContainerPackage, config.ListClassName)
	hashFQ      = config.QualifiedName(config.ContainerPackage, config.HashClassName)
	pairFQ      = config.QualifiedName(config.ContainerPackage, config.PairClassName)
	mutexFQ     = config.QualifiedName(config.ThreadingPackage, config.MutexClassName)
	futureFQ    = config.QualifiedName(config.ThreadingPackage, config.FutureClassName)
)

func (rt *Runtime) instanceOf(fq string, aux any) *Object {
	t := rt.Template(fq)
	node.Assert(t != nil, "builtin class %s missing", fq)
	return t.newInstanceWithAux(aux)
}

// NewNumber returns a floating Number object holding a copy of r.
func (rt *Runtime) NewNumber(r *big.Rat) *Object { return rt.instanceOf(numberFQ, node.NewNumber(r)) }

func (rt *Runtime) NewNumberInt(i int64) *Object {
	return rt.instanceOf(numberFQ, node.NumberFromInt(i))
}

func (rt *Runtime) NewComplex(re, im *big.Rat) *Object {
	return rt.instanceOf(complexFQ, node.NewComplex(re, im))
}

func (rt *Runtime) NewString(s string) *Object { return rt.instanceOf(stringFQ, node.NewString(s)) }

// NewArray wraps objects in an Array.
func (rt *Runtime) NewArray(items ...*Object) *Object {
	return rt.instanceOf(arrayFQ, node.NewArray(nodes(items)...))
}

func (rt *Runtime) NewList(items ...*Object) *Object {
	return rt.instanceOf(listFQ, node.NewList(nodes(items)...))
}

func (rt *Runtime) NewHash() *Object { return rt.instanceOf(hashFQ, node.NewHash()) }

func (rt *Runtime) NewPair(left, right *Object) *Object {
	return rt.instanceOf(pairFQ, node.NewPair(left, right))
}

// NewMatrix builds a rows x cols matrix of objects.
func (rt *Runtime) NewMatrix(rows, cols uint32, cells []*Object) *Object {
	return rt.instanceOf(matrixFQ, node.NewMatrix(rows, cols, nodes(cells)))
}

func nodes(objects []*Object) []node.Node {
	result := make([]node.Node, len(objects))
	for i, o := range objects {
		result[i] = o
	}
	return result
}

// objects converts container items back, mapping nil to Nil.
func (rt *Runtime) objects(items []node.Node) []*Object {
	result := make([]*Object, len(items))
	for i, n := range items {
		result[i] = rt.asObject(n)
	}
	return result
}

func (rt *Runtime) asObject(n node.Node) *Object {
	if o, ok := n.(*Object); ok && o != nil {
		return o
	}
	return rt.nilObject
}

// literal marks an object as part of the program graph.
func literal(o *Object, initialized bool) *Object {
	o.uninitialized = !initialized
	o.hdr.SetTemplate(true)
	return o
}

// The parser.Builder implementation: every literal the parser meets is
// created here and embedded in an ast.Class node.

func (rt *Runtime) Number(text string) (node.Node, error) {
	n, ok := node.ParseNumber(text)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return literal(rt.instanceOf(numberFQ, n), true), nil
}

// String returns an initialized String for plain text, or an
// uninitialized one holding the parts of an interpolated string.
func (rt *Runtime) String(parts *node.List) node.Node {
	if parts.Len() == 0 {
		return literal(rt.NewString(""), true)
	}
	if parts.Len() == 1 {
		if s, ok := parts.Items[0].(*node.String); ok {
			return literal(rt.instanceOf(stringFQ, s), true)
		}
	}
	return literal(rt.instanceOf(stringFQ, parts), false)
}

func (rt *Runtime) Array(items []node.Node) node.Node {
	return literal(rt.instanceOf(arrayFQ, node.NewArray(items...)), false)
}

// Hash receives ast.GraphDataPair entries.
func (rt *Runtime) Hash(pairs []node.Node) node.Node {
	return literal(rt.instanceOf(hashFQ, node.NewList(pairs...)), false)
}

func (rt *Runtime) Matrix(rows, cols uint32, cells []node.Node) node.Node {
	return literal(rt.instanceOf(matrixFQ, node.NewMatrix(rows, cols, cells)), false)
}

func (rt *Runtime) Block(args []string, body *ast.List) node.Node {
	return literal(rt.instanceOf(blockFQ, &blockData{args: args, body: body}), false)
}

func (rt *Runtime) Function(args []string, body node.Node) node.Node {
	return literal(rt.instanceOf(functionFQ, &functionData{args: args, body: body}), false)
}
