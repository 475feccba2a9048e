package parser

import (
	"fmt"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/node"
)

// Builder creates the literal values embedded in the program graph.
// String parts are *node.String for literal text and graph data for
// interpolated expressions. Hash receives ast.GraphDataPair entries.
type Builder interface {
	Number(text string) (node.Node, error)
	String(parts *node.List) node.Node
	Array(items []node.Node) node.Node
	Hash(pairs []node.Node) node.Node
	Matrix(rows, cols uint32, cells []node.Node) node.Node
	Block(args []string, body *ast.List) node.Node
	Function(args []string, body node.Node) node.Node
}

// PlainBuilder builds literals out of the node package primitives. It
// is enough for inspecting parse results without a runtime.
type PlainBuilder struct{}

func (PlainBuilder) Number(text string) (node.Node, error) {
	n, ok := node.ParseNumber(text)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return n, nil
}

func (PlainBuilder) String(parts *node.List) node.Node {
	if parts.Len() == 1 {
		if s, ok := parts.Items[0].(*node.String); ok {
			return s
		}
	}
	if parts.Len() == 0 {
		return node.NewString("")
	}
	return parts
}

func (PlainBuilder) Array(items []node.Node) node.Node { return node.NewArray(items...) }

func (PlainBuilder) Hash(pairs []node.Node) node.Node { return node.NewList(pairs...) }

func (PlainBuilder) Matrix(rows, cols uint32, cells []node.Node) node.Node {
	return node.NewMatrix(rows, cols, cells)
}

func (PlainBuilder) Block(args []string, body *ast.List) node.Node {
	return node.NewPair(stringArray(args), body)
}

func (PlainBuilder) Function(args []string, body node.Node) node.Node {
	return node.NewPair(stringArray(args), body)
}

func stringArray(values []string) *node.Array {
	items := make([]node.Node, len(values))
	for i, v := range values {
		items[i] = node.NewString(v)
	}
	return node.NewArray(items...)
}
