// Package ast holds the graph data variants: the program structure the
// parser produces and the evaluator walks. Each variant is a node.Node of
// kind node.KindGraphData with its own GraphKind.
package ast

import (
	"fmt"
	"strings"

	"github.com/funvibe/taffy/internal/node"
)

// GraphKind discriminates graph data variants.
type GraphKind uint8

const (
	GraphAnd GraphKind = iota
	GraphAssignment
	GraphBreak
	GraphCatchBlock
	GraphClass
	GraphExit
	GraphFalse
	GraphFlatArithmetic
	GraphFor
	GraphFunctionUpdate
	GraphList
	GraphNode
	GraphPair
	GraphTree
	GraphIdentifier
	GraphIf
	GraphImport
	GraphIn
	GraphMethodCall
	GraphMethodHeader
	GraphNew
	GraphNil
	GraphNotEqualCall
	GraphOr
	GraphPackage
	GraphReturn
	GraphSelf
	GraphSuper
	GraphSymbol
	GraphSynchronized
	GraphThrow
	GraphTrue
	GraphTryBlock
	GraphUpSelf
	GraphWhile
	GraphClassDefinition
	GraphLast
)

var graphKindNames = [...]string{
	GraphAnd:             "NODE_AND",
	GraphAssignment:      "NODE_ASSIGNMENT",
	GraphBreak:           "NODE_BREAK",
	GraphCatchBlock:      "NODE_CATCH_BLOCK",
	GraphClass:           "NODE_CLASS",
	GraphExit:            "NODE_EXIT",
	GraphFalse:           "NODE_NO",
	GraphFlatArithmetic:  "NODE_FLAT_ARITHMETIC",
	GraphFor:             "NODE_FOR",
	GraphFunctionUpdate:  "NODE_FUNCTION_UPDATE",
	GraphList:            "NODE_GRAPH_DATA_LIST",
	GraphNode:            "NODE_GRAPH_DATA_NODE",
	GraphPair:            "NODE_GRAPH_DATA_PAIR",
	GraphTree:            "NODE_GRAPH_DATA_TREE",
	GraphIdentifier:      "NODE_IDENTIFIER",
	GraphIf:              "NODE_IF",
	GraphImport:          "NODE_IMPORT",
	GraphIn:              "NODE_IN",
	GraphMethodCall:      "NODE_METHOD_CALL",
	GraphMethodHeader:    "NODE_METHOD_HEADER",
	GraphNew:             "NODE_NEW",
	GraphNil:             "NODE_NIL",
	GraphNotEqualCall:    "NODE_NOT_EQUAL_CALL",
	GraphOr:              "NODE_OR",
	GraphPackage:         "NODE_PACKAGE",
	GraphReturn:          "NODE_RETURN",
	GraphSelf:            "NODE_SELF",
	GraphSuper:           "NODE_SUPER",
	GraphSymbol:          "NODE_SYMBOL",
	GraphSynchronized:    "NODE_SYNCHRONIZED",
	GraphThrow:           "NODE_THROW",
	GraphTrue:            "NODE_TRUE",
	GraphTryBlock:        "NODE_TRY_BLOCK",
	GraphUpSelf:          "NODE_UP_SELF",
	GraphWhile:           "NODE_WHILE",
	GraphClassDefinition: "NODE_CLASS_DEFINITION",
}

func (k GraphKind) String() string {
	if int(k) < len(graphKindNames) {
		return graphKindNames[k]
	}
	return fmt.Sprintf("NODE_GRAPH_UNKNOWN(%d)", uint8(k))
}

// Position locates a graph node in its source file.
type Position struct {
	Filename string
	Line     uint32
}

func (p Position) String() string {
	if p.Filename == "" {
		return fmt.Sprintf("line %d", p.Line)
	}
	return fmt.Sprintf("%s:%d", p.Filename, p.Line)
}

// GraphData is implemented by every variant in this package.
type GraphData interface {
	node.Node
	GraphKind() GraphKind
	Pos() Position
}

// graph is embedded in every variant.
type graph struct {
	hdr      node.Header
	Position Position
}

func (g *graph) Kind() node.Kind       { return node.KindGraphData }
func (g *graph) Header() *node.Header  { return &g.hdr }
func (g *graph) Pos() Position         { return g.Position }
func (g *graph) SetPos(p Position)     { g.Position = p }
func (g *graph) Trace(func(node.Node)) {}
func (g *graph) copyPos() graph        { return graph{Position: g.Position} }
func (g *graph) begin(e *node.Encoder, k GraphKind) {
	e.Write("uuXw", uint8(node.KindGraphData), uint8(k), g.Position.Filename, g.Position.Line)
}

// Is reports whether n is graph data of kind k.
func Is(n node.Node, k GraphKind) bool {
	g, ok := n.(GraphData)
	return ok && g.GraphKind() == k
}

// KindOf returns the graph kind of n, or GraphLast for other nodes.
func KindOf(n node.Node) GraphKind {
	if g, ok := n.(GraphData); ok {
		return g.GraphKind()
	}
	return GraphLast
}

// PosOf returns the position of graph data, or the zero Position.
func PosOf(n node.Node) Position {
	if g, ok := n.(GraphData); ok {
		return g.Pos()
	}
	return Position{}
}

type unmarshallFunc func(d *node.Decoder, pos Position) (node.Node, error)

var unmarshallers [GraphLast]unmarshallFunc

func init() {
	unmarshallers = [GraphLast]unmarshallFunc{
		GraphAnd:             unmarshallAnd,
		GraphAssignment:      unmarshallAssignment,
		GraphBreak:           leaf(func(p Position) node.Node { return &Break{graph: graph{Position: p}} }),
		GraphCatchBlock:      unmarshallCatchBlock,
		GraphClass:           unmarshallClass,
		GraphExit:            leaf(func(p Position) node.Node { return &Exit{graph: graph{Position: p}} }),
		GraphFalse:           leaf(func(p Position) node.Node { return &False{graph: graph{Position: p}} }),
		GraphFlatArithmetic:  unmarshallFlatArithmetic,
		GraphFor:             unmarshallFor,
		GraphFunctionUpdate:  unmarshallFunctionUpdate,
		GraphList:            unmarshallList,
		GraphNode:            unmarshallGraphDataNode,
		GraphPair:            unmarshallGraphDataPair,
		GraphTree:            unmarshallTree,
		GraphIdentifier:      unmarshallIdentifier,
		GraphIf:              unmarshallIf,
		GraphImport:          unmarshallImport,
		GraphIn:              unmarshallIn,
		GraphMethodCall:      unmarshallMethodCall,
		GraphMethodHeader:    unmarshallMethodHeader,
		GraphNew:             unmarshallNew,
		GraphNil:             leaf(func(p Position) node.Node { return &Nil{graph: graph{Position: p}} }),
		GraphNotEqualCall:    unmarshallNotEqualCall,
		GraphOr:              unmarshallOr,
		GraphPackage:         unmarshallPackage,
		GraphReturn:          unmarshallReturn,
		GraphSelf:            leaf(func(p Position) node.Node { return &Self{graph: graph{Position: p}} }),
		GraphSuper:           leaf(func(p Position) node.Node { return &Super{graph: graph{Position: p}} }),
		GraphSymbol:          unmarshallSymbol,
		GraphSynchronized:    unmarshallSynchronized,
		GraphThrow:           unmarshallThrow,
		GraphTrue:            leaf(func(p Position) node.Node { return &True{graph: graph{Position: p}} }),
		GraphTryBlock:        unmarshallTryBlock,
		GraphUpSelf:          leaf(func(p Position) node.Node { return &UpSelf{graph: graph{Position: p}} }),
		GraphWhile:           unmarshallWhile,
		GraphClassDefinition: unmarshallClassDefinition,
	}
	node.RegisterUnmarshaller(node.KindGraphData, unmarshallGraphData)
}

func leaf(create func(Position) node.Node) unmarshallFunc {
	return func(_ *node.Decoder, pos Position) (node.Node, error) { return create(pos), nil }
}

func unmarshallGraphData(d *node.Decoder) (node.Node, error) {
	var (
		kind uint8
		pos  Position
	)
	if err := d.Read("uXw", &kind, &pos.Filename, &pos.Line); err != nil {
		return nil, err
	}
	if GraphKind(kind) >= GraphLast {
		return nil, d.Errorf("invalid graph data kind %d", kind)
	}
	return unmarshallers[kind](d, pos)
}

// readGraph decodes a nullable node that must be graph data when present.
func readGraph(d *node.Decoder) (node.Node, error) {
	var n node.Node
	if err := d.Read("n", &n); err != nil {
		return nil, err
	}
	if n != nil && n.Kind() != node.KindGraphData {
		return nil, d.Errorf("expected graph data, got %s", n.Kind())
	}
	return n, nil
}

// readGraphKind decodes a graph node of exactly kind k, or nil.
func readGraphKind(d *node.Decoder, k GraphKind) (node.Node, error) {
	n, err := readGraph(d)
	if err != nil || n == nil {
		return n, err
	}
	if KindOf(n) != k {
		return nil, d.Errorf("expected %s, got %s", k, KindOf(n))
	}
	return n, nil
}

func readStrings(d *node.Decoder) ([]string, error) {
	var count uint32
	if err := d.Read("w", &count); err != nil {
		return nil, err
	}
	if uint64(count) > uint64(d.Remaining()) {
		return nil, d.Errorf("%d strings with %d bytes left", count, d.Remaining())
	}
	result := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var s string
		if err := d.Read("X", &s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

func writeStrings(e *node.Encoder, values []string) {
	e.Write("w", uint32(len(values)))
	for _, s := range values {
		e.Write("X", s)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// same is the structural equality used by every CompareNode here.
func same(pairs ...node.Node) node.Ordering {
	for i := 0; i+1 < len(pairs); i += 2 {
		if node.Compare(pairs[i], pairs[i+1]) != node.Equal {
			return node.Uncomparable
		}
	}
	return node.Equal
}

func sameAll(a, b []node.Node) node.Ordering {
	if len(a) != len(b) || node.CompareAll(a, b) != node.Equal {
		return node.Uncomparable
	}
	return node.Equal
}

func orderingOf(equal bool) node.Ordering {
	if equal {
		return node.Equal
	}
	return node.Uncomparable
}

func str(n node.Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}

func joinStrings(nodes []node.Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = str(n)
	}
	return strings.Join(parts, sep)
}
