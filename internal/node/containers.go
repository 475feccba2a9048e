package node

import (
	"strings"
	"sync"
)

// Array is a fixed-order, index-addressed sequence of nodes.
type Array struct {
	hdr   Header
	Items []Node
}

func NewArray(items ...Node) *Array { return &Array{Items: items} }

func (a *Array) Kind() Kind      { return KindArray }
func (a *Array) Header() *Header { return &a.hdr }

func (a *Array) Copy(depth Depth) Node {
	return &Array{Items: CopyAll(a.Items, depth)}
}

func (a *Array) Trace(mark func(Node)) { TraceAll(a.Items, mark) }

func (a *Array) Marshall(e *Encoder) { e.Write("ul", uint8(KindArray), a.Items) }

func (a *Array) CompareNode(other Node) Ordering {
	o, ok := other.(*Array)
	if !ok {
		return Uncomparable
	}
	return CompareAll(a.Items, o.Items)
}

func (a *Array) String() string { return "[" + joinNodes(a.Items) + "]" }

// List is a growable sequence of nodes. Strings with interpolation keep
// their parts in a List.
type List struct {
	hdr   Header
	Items []Node
}

func NewList(items ...Node) *List { return &List{Items: items} }

func (l *List) Kind() Kind      { return KindList }
func (l *List) Header() *Header { return &l.hdr }

func (l *List) Push(n Node) { l.Items = append(l.Items, n) }

func (l *List) Len() int { return len(l.Items) }

func (l *List) Copy(depth Depth) Node {
	return &List{Items: CopyAll(l.Items, depth)}
}

func (l *List) Trace(mark func(Node)) { TraceAll(l.Items, mark) }

func (l *List) Marshall(e *Encoder) { e.Write("ul", uint8(KindList), l.Items) }

func (l *List) CompareNode(other Node) Ordering {
	o, ok := other.(*List)
	if !ok {
		return Uncomparable
	}
	return CompareAll(l.Items, o.Items)
}

func (l *List) String() string { return "{" + joinNodes(l.Items) + "}" }

// Pair holds two nodes.
type Pair struct {
	hdr   Header
	Left  Node
	Right Node
}

func NewPair(left, right Node) *Pair { return &Pair{Left: left, Right: right} }

func (p *Pair) Kind() Kind      { return KindPair }
func (p *Pair) Header() *Header { return &p.hdr }

func (p *Pair) Copy(depth Depth) Node {
	if depth == Deep {
		return NewPair(Copy(p.Left, depth), Copy(p.Right, depth))
	}
	return NewPair(p.Left, p.Right)
}

func (p *Pair) Trace(mark func(Node)) { TraceAll([]Node{p.Left, p.Right}, mark) }

func (p *Pair) Marshall(e *Encoder) { e.Write("unn", uint8(KindPair), p.Left, p.Right) }

func (p *Pair) CompareNode(other Node) Ordering {
	o, ok := other.(*Pair)
	if !ok {
		return Uncomparable
	}
	if c := Compare(p.Left, o.Left); c != Equal {
		return c
	}
	return Compare(p.Right, o.Right)
}

func (p *Pair) String() string { return nodeString(p.Left) + " => " + nodeString(p.Right) }

// Hash maps keys to values, preserving insertion order. Keys are
// matched by HashKey, so Numbers and Strings hash by value.
type Hash struct {
	hdr     Header
	mu      sync.RWMutex
	entries []*Pair
	index   map[string]int
}

func NewHash() *Hash { return &Hash{index: make(map[string]int)} }

func (h *Hash) Kind() Kind      { return KindHash }
func (h *Hash) Header() *Header { return &h.hdr }

// Set inserts or replaces the value bound to key.
func (h *Hash) Set(key, value Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := HashKey(key)
	if i, ok := h.index[k]; ok {
		h.entries[i].Right = value
		return
	}
	h.index[k] = len(h.entries)
	h.entries = append(h.entries, NewPair(key, value))
}

func (h *Hash) Get(key Node) (Node, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	i, ok := h.index[HashKey(key)]
	if !ok {
		return nil, false
	}
	return h.entries[i].Right, true
}

// Delete removes key and reports whether it was present.
func (h *Hash) Delete(key Node) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := HashKey(key)
	i, ok := h.index[k]
	if !ok {
		return false
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	delete(h.index, k)
	for j := i; j < len(h.entries); j++ {
		h.index[HashKey(h.entries[j].Left)] = j
	}
	return true
}

func (h *Hash) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a snapshot of the key/value pairs in insertion order.
func (h *Hash) Entries() []*Pair {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]*Pair, len(h.entries))
	copy(result, h.entries)
	return result
}

func (h *Hash) Copy(depth Depth) Node {
	result := NewHash()
	for _, p := range h.Entries() {
		if depth == Deep {
			result.Set(Copy(p.Left, depth), Copy(p.Right, depth))
		} else {
			result.Set(p.Left, p.Right)
		}
	}
	return result
}

func (h *Hash) Trace(mark func(Node)) {
	for _, p := range h.Entries() {
		TraceAll([]Node{p.Left, p.Right}, mark)
	}
}

func (h *Hash) Marshall(e *Encoder) {
	entries := h.Entries()
	e.Write("uw", uint8(KindHash), uint32(len(entries)))
	for _, p := range entries {
		e.Write("nn", p.Left, p.Right)
	}
}

func (h *Hash) CompareNode(other Node) Ordering {
	o, ok := other.(*Hash)
	if !ok {
		return Uncomparable
	}
	if h.Len() != o.Len() {
		return Uncomparable
	}
	for _, p := range h.Entries() {
		v, found := o.Get(p.Left)
		if !found || Compare(p.Right, v) != Equal {
			return Uncomparable
		}
	}
	return Equal
}

func (h *Hash) String() string {
	var b strings.Builder
	b.WriteString("#Hash(")
	for i, p := range h.Entries() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(nodeString(p.Left))
		b.WriteString("=>")
		b.WriteString(nodeString(p.Right))
	}
	b.WriteString(")")
	return b.String()
}

// Matrix is a row-major grid of nodes. Literal matrices hold graph
// nodes until evaluated; evaluated matrices hold numbers.
type Matrix struct {
	hdr   Header
	Rows  uint32
	Cols  uint32
	Cells []Node
}

func NewMatrix(rows, cols uint32, cells []Node) *Matrix {
	Assert(uint64(rows)*uint64(cols) == uint64(len(cells)),
		"matrix %dx%d with %d cells", rows, cols, len(cells))
	return &Matrix{Rows: rows, Cols: cols, Cells: cells}
}

func (m *Matrix) Kind() Kind      { return KindMatrix }
func (m *Matrix) Header() *Header { return &m.hdr }

func (m *Matrix) At(row, col uint32) Node { return m.Cells[row*m.Cols+col] }

func (m *Matrix) Copy(depth Depth) Node {
	return &Matrix{Rows: m.Rows, Cols: m.Cols, Cells: CopyAll(m.Cells, depth)}
}

func (m *Matrix) Trace(mark func(Node)) { TraceAll(m.Cells, mark) }

func (m *Matrix) Marshall(e *Encoder) {
	e.Write("uwwl", uint8(KindMatrix), m.Rows, m.Cols, m.Cells)
}

func (m *Matrix) CompareNode(other Node) Ordering {
	o, ok := other.(*Matrix)
	if !ok || m.Rows != o.Rows || m.Cols != o.Cols {
		return Uncomparable
	}
	if CompareAll(m.Cells, o.Cells) != Equal {
		return Uncomparable
	}
	return Equal
}

func (m *Matrix) String() string {
	var b strings.Builder
	b.WriteString("||")
	for r := uint32(0); r < m.Rows; r++ {
		if r > 0 {
			b.WriteString("; ")
		}
		for c := uint32(0); c < m.Cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(nodeString(m.At(r, c)))
		}
	}
	b.WriteString("||")
	return b.String()
}

func nodeString(n Node) string {
	if n == nil {
		return "nil"
	}
	return n.String()
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = nodeString(n)
	}
	return strings.Join(parts, ", ")
}

func unmarshallArray(d *Decoder) (Node, error) {
	var items []Node
	if err := d.Read("l", &items); err != nil {
		return nil, err
	}
	return NewArray(items...), nil
}

func unmarshallList(d *Decoder) (Node, error) {
	var items []Node
	if err := d.Read("l", &items); err != nil {
		return nil, err
	}
	return NewList(items...), nil
}

func unmarshallPair(d *Decoder) (Node, error) {
	var left, right Node
	if err := d.Read("nn", &left, &right); err != nil {
		return nil, err
	}
	return NewPair(left, right), nil
}

func unmarshallHash(d *Decoder) (Node, error) {
	var count uint32
	if err := d.Read("w", &count); err != nil {
		return nil, err
	}
	h := NewHash()
	for i := uint32(0); i < count; i++ {
		var key, value Node
		if err := d.Read("nn", &key, &value); err != nil {
			return nil, err
		}
		h.Set(key, value)
	}
	return h, nil
}

func unmarshallMatrix(d *Decoder) (Node, error) {
	var rows, cols uint32
	var cells []Node
	if err := d.Read("wwl", &rows, &cols, &cells); err != nil {
		return nil, err
	}
	if uint64(rows)*uint64(cols) != uint64(len(cells)) {
		return nil, d.errorf("matrix %dx%d with %d cells", rows, cols, len(cells))
	}
	return NewMatrix(rows, cols, cells), nil
}
