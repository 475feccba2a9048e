// Package node defines the universal value cell shared by the parsed
// program graph and by live runtime values.
//
// Every AST kind (package ast) and every runtime object (package
// evaluator) implements Node. The node layer owns the kind tags, the
// collector bookkeeping header, structural comparison, and the binary
// marshall format used for persistence and cross-goroutine transfer.
package node

import (
	"fmt"
	"sync/atomic"
)

// Kind discriminates node variants. A node's kind never changes.
type Kind uint8

const (
	KindNone Kind = iota
	KindNumber
	KindComplex
	KindMatrix
	KindArray
	KindHash
	KindList
	KindPair
	KindString
	KindGraphData
	KindClass
	KindLast
)

var kindNames = [...]string{
	KindNone:      "NODE_NONE",
	KindNumber:    "NODE_NUMBER",
	KindComplex:   "NODE_COMPLEX_NUMBER",
	KindMatrix:    "NODE_MATRIX",
	KindArray:     "NODE_ARRAY",
	KindHash:      "NODE_HASH",
	KindList:      "NODE_LIST",
	KindPair:      "NODE_PAIR",
	KindString:    "NODE_STRING",
	KindGraphData: "NODE_GRAPH_DATA",
	KindClass:     "NODE_CLASS",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("NODE_UNKNOWN(%d)", uint8(k))
}

// Depth selects how far Copy descends.
type Depth uint8

const (
	// Shallow duplicates the shell and shares owned children.
	Shallow Depth = iota
	// Deep duplicates owned children recursively.
	Deep
)

// Ordering is the result of comparing two nodes.
type Ordering int8

const (
	Less Ordering = iota - 1
	Equal
	Greater
	Uncomparable
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "LESS"
	case Equal:
		return "EQUAL"
	case Greater:
		return "GREATER"
	default:
		return "UNCOMPARABLE"
	}
}

// Node is implemented by every graph and runtime value.
type Node interface {
	Kind() Kind
	Header() *Header
	// Copy returns a floating duplicate.
	Copy(depth Depth) Node
	// Trace calls mark for every directly owned child.
	Trace(mark func(Node))
	// Marshall appends the kind tag and the payload.
	Marshall(e *Encoder)
	String() string
}

// Comparer is implemented by nodes with a structural ordering.
type Comparer interface {
	CompareNode(other Node) Ordering
}

// Hasher is implemented by nodes usable as Hash keys by value.
type Hasher interface {
	HashKey() string
}

// Header carries the collector bookkeeping for a node.
// The zero value is a floating, unmarked, unpinned node.
type Header struct {
	refs       atomic.Int32
	marked     atomic.Bool
	registered atomic.Bool
	template   atomic.Bool
}

// Retain pins the node against collection while native code holds it.
func (h *Header) Retain() { h.refs.Add(1) }

// Release drops a pin taken with Retain.
func (h *Header) Release() {
	if h.refs.Add(-1) < 0 {
		Assert(false, "node released more times than retained")
	}
}

func (h *Header) RefCount() int32 { return h.refs.Load() }

// Mark sets the mark flag and reports whether it was previously clear.
func (h *Header) Mark() bool { return !h.marked.Swap(true) }

func (h *Header) Unmark()      { h.marked.Store(false) }
func (h *Header) Marked() bool { return h.marked.Load() }

func (h *Header) SetRegistered(v bool) { h.registered.Store(v) }
func (h *Header) Registered() bool     { return h.registered.Load() }

// SetTemplate flags the node as a prototype. Templates are never
// registered with the collector.
func (h *Header) SetTemplate(v bool) { h.template.Store(v) }
func (h *Header) IsTemplate() bool   { return h.template.Load() }

// Floating reports whether the node is neither registered nor a template.
func (h *Header) Floating() bool {
	return !h.Registered() && !h.IsTemplate()
}

// Copy returns n.Copy(depth), passing nil through.
func Copy(n Node, depth Depth) Node {
	if n == nil {
		return nil
	}
	return n.Copy(depth)
}

// CopyAll copies every element of nodes.
func CopyAll(nodes []Node, depth Depth) []Node {
	if nodes == nil {
		return nil
	}
	result := make([]Node, len(nodes))
	for i, n := range nodes {
		if depth == Deep {
			result[i] = Copy(n, depth)
		} else {
			result[i] = n
		}
	}
	return result
}

// Compare orders a and b structurally.
func Compare(a, b Node) Ordering {
	switch {
	case a == nil && b == nil:
		return Equal
	case a == nil || b == nil:
		return Uncomparable
	case a == b:
		return Equal
	case a.Kind() != b.Kind():
		return Uncomparable
	}
	if c, ok := a.(Comparer); ok {
		return c.CompareNode(b)
	}
	return Uncomparable
}

// Equals reports whether Compare(a, b) is Equal.
func Equals(a, b Node) bool { return Compare(a, b) == Equal }

// CompareAll compares two node slices element-wise.
func CompareAll(a, b []Node) Ordering {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return Less
		}
		return Greater
	}
	for i := range a {
		if o := Compare(a[i], b[i]); o != Equal {
			return o
		}
	}
	return Equal
}

// TraceAll marks every non-nil node in nodes.
func TraceAll(nodes []Node, mark func(Node)) {
	for _, n := range nodes {
		if n != nil {
			mark(n)
		}
	}
}

// HashKey returns the key under which n is stored in a Hash.
// Nodes without a value hash are keyed by identity.
func HashKey(n Node) string {
	if n == nil {
		return "nil"
	}
	if h, ok := n.(Hasher); ok {
		return h.HashKey()
	}
	return fmt.Sprintf("%s@%p", n.Kind(), n)
}

// Assert panics when an internal invariant does not hold.
// Failures are runtime bugs, never user errors.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("taffy: internal error: "+format, args...))
	}
}
