package ast

import (
	"strings"

	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

func cp(n node.Node, depth node.Depth) node.Node {
	if depth == node.Deep {
		return node.Copy(n, depth)
	}
	return n
}

// And is the short-circuit `left and right`.
type And struct {
	graph
	Left, Right node.Node
}

func NewAnd(left, right node.Node) *And { return &And{Left: left, Right: right} }

func (a *And) GraphKind() GraphKind { return GraphAnd }
func (a *And) Copy(depth node.Depth) node.Node {
	return &And{graph: a.copyPos(), Left: cp(a.Left, depth), Right: cp(a.Right, depth)}
}
func (a *And) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{a.Left, a.Right}, mark) }
func (a *And) Marshall(e *node.Encoder)   { a.begin(e, GraphAnd); e.Write("nn", a.Left, a.Right) }
func (a *And) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*And)
	return orderingOf(ok && same(a.Left, b.Left, a.Right, b.Right) == node.Equal)
}
func (a *And) String() string { return str(a.Left) + " and " + str(a.Right) }

func unmarshallAnd(d *node.Decoder, pos Position) (node.Node, error) {
	l, r, err := readTwo(d)
	if err != nil {
		return nil, err
	}
	return &And{graph: graph{Position: pos}, Left: l, Right: r}, nil
}

// Or is the short-circuit `left or right`.
type Or struct {
	graph
	Left, Right node.Node
}

func NewOr(left, right node.Node) *Or { return &Or{Left: left, Right: right} }

func (o *Or) GraphKind() GraphKind { return GraphOr }
func (o *Or) Copy(depth node.Depth) node.Node {
	return &Or{graph: o.copyPos(), Left: cp(o.Left, depth), Right: cp(o.Right, depth)}
}
func (o *Or) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{o.Left, o.Right}, mark) }
func (o *Or) Marshall(e *node.Encoder)   { o.begin(e, GraphOr); e.Write("nn", o.Left, o.Right) }
func (o *Or) CompareNode(other node.Node) node.Ordering {
	b, ok := other.(*Or)
	return orderingOf(ok && same(o.Left, b.Left, o.Right, b.Right) == node.Equal)
}
func (o *Or) String() string { return str(o.Left) + " or " + str(o.Right) }

func unmarshallOr(d *node.Decoder, pos Position) (node.Node, error) {
	l, r, err := readTwo(d)
	if err != nil {
		return nil, err
	}
	return &Or{graph: graph{Position: pos}, Left: l, Right: r}, nil
}

func readTwo(d *node.Decoder) (node.Node, node.Node, error) {
	var l, r node.Node
	if err := d.Read("nn", &l, &r); err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

// Class embeds a literal object (a number, a string, an uninitialized
// array...) in the program graph.
type Class struct {
	graph
	Object node.Node
}

func NewClass(object node.Node) *Class { return &Class{Object: object} }

func (c *Class) GraphKind() GraphKind { return GraphClass }
func (c *Class) Copy(depth node.Depth) node.Node {
	return &Class{graph: c.copyPos(), Object: cp(c.Object, depth)}
}
func (c *Class) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{c.Object}, mark) }
func (c *Class) Marshall(e *node.Encoder)   { c.begin(e, GraphClass); e.Write("n", c.Object) }
func (c *Class) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Class)
	return orderingOf(ok && same(c.Object, b.Object) == node.Equal)
}
func (c *Class) String() string { return str(c.Object) }

func unmarshallClass(d *node.Decoder, pos Position) (node.Node, error) {
	var obj node.Node
	if err := d.Read("n", &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, d.Errorf("class node without an object")
	}
	return &Class{graph: graph{Position: pos}, Object: obj}, nil
}

// True, False, Nil, Self, Super and UpSelf carry no payload.
type (
	True   struct{ graph }
	False  struct{ graph }
	Nil    struct{ graph }
	Self   struct{ graph }
	Super  struct{ graph }
	UpSelf struct{ graph }
	Break  struct{ graph }
	Exit   struct{ graph }
)

func (t *True) GraphKind() GraphKind                  { return GraphTrue }
func (t *True) Copy(node.Depth) node.Node             { return &True{graph: t.copyPos()} }
func (t *True) Marshall(e *node.Encoder)              { t.begin(e, GraphTrue) }
func (t *True) CompareNode(o node.Node) node.Ordering { _, ok := o.(*True); return orderingOf(ok) }
func (t *True) String() string                        { return "yes" }

func (f *False) GraphKind() GraphKind                  { return GraphFalse }
func (f *False) Copy(node.Depth) node.Node             { return &False{graph: f.copyPos()} }
func (f *False) Marshall(e *node.Encoder)              { f.begin(e, GraphFalse) }
func (f *False) CompareNode(o node.Node) node.Ordering { _, ok := o.(*False); return orderingOf(ok) }
func (f *False) String() string                        { return "no" }

func (n *Nil) GraphKind() GraphKind                  { return GraphNil }
func (n *Nil) Copy(node.Depth) node.Node             { return &Nil{graph: n.copyPos()} }
func (n *Nil) Marshall(e *node.Encoder)              { n.begin(e, GraphNil) }
func (n *Nil) CompareNode(o node.Node) node.Ordering { _, ok := o.(*Nil); return orderingOf(ok) }
func (n *Nil) String() string                        { return "nil" }

func (s *Self) GraphKind() GraphKind                  { return GraphSelf }
func (s *Self) Copy(node.Depth) node.Node             { return &Self{graph: s.copyPos()} }
func (s *Self) Marshall(e *node.Encoder)              { s.begin(e, GraphSelf) }
func (s *Self) CompareNode(o node.Node) node.Ordering { _, ok := o.(*Self); return orderingOf(ok) }
func (s *Self) String() string                        { return "self" }

func (s *Super) GraphKind() GraphKind                  { return GraphSuper }
func (s *Super) Copy(node.Depth) node.Node             { return &Super{graph: s.copyPos()} }
func (s *Super) Marshall(e *node.Encoder)              { s.begin(e, GraphSuper) }
func (s *Super) CompareNode(o node.Node) node.Ordering { _, ok := o.(*Super); return orderingOf(ok) }
func (s *Super) String() string                        { return "super" }

func (u *UpSelf) GraphKind() GraphKind                  { return GraphUpSelf }
func (u *UpSelf) Copy(node.Depth) node.Node             { return &UpSelf{graph: u.copyPos()} }
func (u *UpSelf) Marshall(e *node.Encoder)              { u.begin(e, GraphUpSelf) }
func (u *UpSelf) CompareNode(o node.Node) node.Ordering { _, ok := o.(*UpSelf); return orderingOf(ok) }
func (u *UpSelf) String() string                        { return "upSelf" }

func (b *Break) GraphKind() GraphKind                  { return GraphBreak }
func (b *Break) Copy(node.Depth) node.Node             { return &Break{graph: b.copyPos()} }
func (b *Break) Marshall(e *node.Encoder)              { b.begin(e, GraphBreak) }
func (b *Break) CompareNode(o node.Node) node.Ordering { _, ok := o.(*Break); return orderingOf(ok) }
func (b *Break) String() string                        { return "break" }

func (x *Exit) GraphKind() GraphKind                  { return GraphExit }
func (x *Exit) Copy(node.Depth) node.Node             { return &Exit{graph: x.copyPos()} }
func (x *Exit) Marshall(e *node.Encoder)              { x.begin(e, GraphExit) }
func (x *Exit) CompareNode(o node.Node) node.Ordering { _, ok := o.(*Exit); return orderingOf(ok) }
func (x *Exit) String() string                        { return "exit" }

// FlatArithmetic is an n-ary chain of one operator: `1 + 2 + 3` is one
// node with three values. Grouped marks a parenthesized chain, which is
// never merged into an enclosing chain.
type FlatArithmetic struct {
	graph
	Operator Operator
	Values   []node.Node
	Grouped  bool
}

func NewFlatArithmetic(op Operator, values ...node.Node) *FlatArithmetic {
	return &FlatArithmetic{Operator: op, Values: values}
}

func (f *FlatArithmetic) GraphKind() GraphKind { return GraphFlatArithmetic }
func (f *FlatArithmetic) Copy(depth node.Depth) node.Node {
	return &FlatArithmetic{graph: f.copyPos(), Operator: f.Operator,
		Values: node.CopyAll(f.Values, depth), Grouped: f.Grouped}
}
func (f *FlatArithmetic) Trace(mark func(node.Node)) { node.TraceAll(f.Values, mark) }
func (f *FlatArithmetic) Marshall(e *node.Encoder) {
	f.begin(e, GraphFlatArithmetic)
	e.Write("ulb", uint8(f.Operator), f.Values, f.Grouped)
}
func (f *FlatArithmetic) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*FlatArithmetic)
	return orderingOf(ok && f.Operator == b.Operator && f.Grouped == b.Grouped &&
		sameAll(f.Values, b.Values) == node.Equal)
}
func (f *FlatArithmetic) String() string {
	return "(" + joinStrings(f.Values, " "+f.Operator.Symbol()+" ") + ")"
}

func unmarshallFlatArithmetic(d *node.Decoder, pos Position) (node.Node, error) {
	var (
		op      uint8
		values  []node.Node
		grouped bool
	)
	if err := d.Read("ulb", &op, &values, &grouped); err != nil {
		return nil, err
	}
	if Operator(op) >= OpLast || !Operator(op).Arithmetic() {
		return nil, d.Errorf("invalid arithmetic operator %d", op)
	}
	if len(values) < 2 {
		return nil, d.Errorf("flat arithmetic with %d values", len(values))
	}
	return &FlatArithmetic{graph: graph{Position: pos}, Operator: Operator(op), Values: values, Grouped: grouped}, nil
}

// GraphDataNode wraps a plain node (a raw string, a number) that is not
// itself graph data.
type GraphDataNode struct {
	graph
	Node node.Node
}

func NewGraphDataNode(n node.Node) *GraphDataNode { return &GraphDataNode{Node: n} }

func (g *GraphDataNode) GraphKind() GraphKind { return GraphNode }
func (g *GraphDataNode) Copy(depth node.Depth) node.Node {
	return &GraphDataNode{graph: g.copyPos(), Node: cp(g.Node, depth)}
}
func (g *GraphDataNode) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{g.Node}, mark) }
func (g *GraphDataNode) Marshall(e *node.Encoder)   { g.begin(e, GraphNode); e.Write("n", g.Node) }
func (g *GraphDataNode) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*GraphDataNode)
	return orderingOf(ok && same(g.Node, b.Node) == node.Equal)
}
func (g *GraphDataNode) String() string { return str(g.Node) }

func unmarshallGraphDataNode(d *node.Decoder, pos Position) (node.Node, error) {
	var n node.Node
	if err := d.Read("n", &n); err != nil {
		return nil, err
	}
	return &GraphDataNode{graph: graph{Position: pos}, Node: n}, nil
}

// GraphDataPair is a key/value pair in a hash literal, or a method
// header/body pair in a class definition.
type GraphDataPair struct {
	graph
	Left, Right node.Node
}

func NewGraphDataPair(left, right node.Node) *GraphDataPair {
	return &GraphDataPair{Left: left, Right: right}
}

func (p *GraphDataPair) GraphKind() GraphKind { return GraphPair }
func (p *GraphDataPair) Copy(depth node.Depth) node.Node {
	return &GraphDataPair{graph: p.copyPos(), Left: cp(p.Left, depth), Right: cp(p.Right, depth)}
}
func (p *GraphDataPair) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{p.Left, p.Right}, mark)
}
func (p *GraphDataPair) Marshall(e *node.Encoder) {
	p.begin(e, GraphPair)
	e.Write("nn", p.Left, p.Right)
}
func (p *GraphDataPair) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*GraphDataPair)
	return orderingOf(ok && same(p.Left, b.Left, p.Right, b.Right) == node.Equal)
}
func (p *GraphDataPair) String() string { return str(p.Left) + " => " + str(p.Right) }

func unmarshallGraphDataPair(d *node.Decoder, pos Position) (node.Node, error) {
	l, r, err := readTwo(d)
	if err != nil {
		return nil, err
	}
	return &GraphDataPair{graph: graph{Position: pos}, Left: l, Right: r}, nil
}

// Identifier names a binding. Flags carry the modifiers written in
// source: Instance for @x, Meta for @@x, Global, Constant.
type Identifier struct {
	graph
	Flags scope.Flags
	Name  string
}

func NewIdentifier(name string, flags scope.Flags) *Identifier {
	return &Identifier{Name: name, Flags: flags}
}

func (i *Identifier) GraphKind() GraphKind { return GraphIdentifier }
func (i *Identifier) Copy(node.Depth) node.Node {
	return &Identifier{graph: i.copyPos(), Flags: i.Flags, Name: i.Name}
}
func (i *Identifier) Marshall(e *node.Encoder) {
	i.begin(e, GraphIdentifier)
	e.Write("wX", uint32(i.Flags), i.Name)
}
func (i *Identifier) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Identifier)
	return orderingOf(ok && i.Name == b.Name && i.Flags == b.Flags)
}
func (i *Identifier) String() string {
	switch {
	case i.Flags.Has(scope.Meta):
		return "@@" + i.Name
	case i.Flags.Has(scope.Instance):
		return "@" + i.Name
	}
	return i.Name
}

func unmarshallIdentifier(d *node.Decoder, pos Position) (node.Node, error) {
	var (
		flags uint32
		name  string
	)
	if err := d.Read("wX", &flags, &name); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, d.Errorf("empty identifier")
	}
	return &Identifier{graph: graph{Position: pos}, Flags: scope.Flags(flags), Name: name}, nil
}

// In is `left in [a, b, c]`: yes when left == any value.
type In struct {
	graph
	Left   node.Node
	Values []node.Node
}

func NewIn(left node.Node, values []node.Node) *In { return &In{Left: left, Values: values} }

func (n *In) GraphKind() GraphKind { return GraphIn }
func (n *In) Copy(depth node.Depth) node.Node {
	return &In{graph: n.copyPos(), Left: cp(n.Left, depth), Values: node.CopyAll(n.Values, depth)}
}
func (n *In) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{n.Left}, mark)
	node.TraceAll(n.Values, mark)
}
func (n *In) Marshall(e *node.Encoder) { n.begin(e, GraphIn); e.Write("nl", n.Left, n.Values) }
func (n *In) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*In)
	return orderingOf(ok && same(n.Left, b.Left) == node.Equal && sameAll(n.Values, b.Values) == node.Equal)
}
func (n *In) String() string { return str(n.Left) + " in [" + joinStrings(n.Values, ", ") + "]" }

func unmarshallIn(d *node.Decoder, pos Position) (node.Node, error) {
	var (
		left   node.Node
		values []node.Node
	)
	if err := d.Read("nl", &left, &values); err != nil {
		return nil, err
	}
	return &In{graph: graph{Position: pos}, Left: left, Values: values}, nil
}

// MethodCall sends Name to Receiver. A nil receiver means self.
type MethodCall struct {
	graph
	Receiver  node.Node
	Name      string
	Arguments []node.Node
}

func NewMethodCall(receiver node.Node, name string, args ...node.Node) *MethodCall {
	return &MethodCall{Receiver: receiver, Name: name, Arguments: args}
}

func (m *MethodCall) GraphKind() GraphKind { return GraphMethodCall }
func (m *MethodCall) Copy(depth node.Depth) node.Node {
	return &MethodCall{graph: m.copyPos(), Receiver: cp(m.Receiver, depth), Name: m.Name,
		Arguments: node.CopyAll(m.Arguments, depth)}
}
func (m *MethodCall) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{m.Receiver}, mark)
	node.TraceAll(m.Arguments, mark)
}
func (m *MethodCall) Marshall(e *node.Encoder) {
	m.begin(e, GraphMethodCall)
	e.Write("nXl", m.Receiver, m.Name, m.Arguments)
}
func (m *MethodCall) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*MethodCall)
	return orderingOf(ok && m.Name == b.Name && same(m.Receiver, b.Receiver) == node.Equal &&
		sameAll(m.Arguments, b.Arguments) == node.Equal)
}
func (m *MethodCall) String() string {
	var b strings.Builder
	b.WriteString("[")
	if m.Receiver != nil {
		b.WriteString(str(m.Receiver))
	} else {
		b.WriteString("self")
	}
	b.WriteString(" ")
	parts := SplitSelector(m.Name)
	if len(m.Arguments) == 0 || len(parts) != len(m.Arguments) {
		b.WriteString(m.Name)
		for _, a := range m.Arguments {
			b.WriteString(" ")
			b.WriteString(str(a))
		}
	} else {
		for i, p := range parts {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(p)
			b.WriteString(" ")
			b.WriteString(str(m.Arguments[i]))
		}
	}
	b.WriteString("]")
	return b.String()
}

func unmarshallMethodCall(d *node.Decoder, pos Position) (node.Node, error) {
	var (
		receiver node.Node
		name     string
		args     []node.Node
	)
	if err := d.Read("nXl", &receiver, &name, &args); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, d.Errorf("method call without a name")
	}
	return &MethodCall{graph: graph{Position: pos}, Receiver: receiver, Name: name, Arguments: args}, nil
}

// SplitSelector splits "at:put:" into ["at:", "put:"]. Operator
// selectors and unary selectors are returned whole.
func SplitSelector(name string) []string {
	if strings.HasPrefix(name, "#") || !strings.HasSuffix(name, ":") {
		return []string{name}
	}
	var parts []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			parts = append(parts, name[start:i+1])
			start = i + 1
		}
	}
	return parts
}

// MethodHeader declares a method: its selector, argument names, and the
// scope flags (Meta for class methods, Synchronized, Const...).
type MethodHeader struct {
	graph
	Name      string
	Arguments []string
	Flags     scope.Flags
}

func NewMethodHeader(name string, args []string, flags scope.Flags) *MethodHeader {
	return &MethodHeader{Name: name, Arguments: args, Flags: flags}
}

func (h *MethodHeader) GraphKind() GraphKind { return GraphMethodHeader }
func (h *MethodHeader) Copy(node.Depth) node.Node {
	args := make([]string, len(h.Arguments))
	copy(args, h.Arguments)
	return &MethodHeader{graph: h.copyPos(), Name: h.Name, Arguments: args, Flags: h.Flags}
}
func (h *MethodHeader) Marshall(e *node.Encoder) {
	h.begin(e, GraphMethodHeader)
	e.Write("Xw", h.Name, uint32(h.Flags))
	writeStrings(e, h.Arguments)
}
func (h *MethodHeader) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*MethodHeader)
	return orderingOf(ok && h.Name == b.Name && h.Flags == b.Flags && equalStrings(h.Arguments, b.Arguments))
}
func (h *MethodHeader) String() string {
	parts := SplitSelector(h.Name)
	if len(h.Arguments) == 0 || len(parts) != len(h.Arguments) {
		return strings.TrimSpace(h.Name + " " + strings.Join(h.Arguments, " "))
	}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p + " " + h.Arguments[i])
	}
	return b.String()
}

func unmarshallMethodHeader(d *node.Decoder, pos Position) (node.Node, error) {
	var (
		name  string
		flags uint32
	)
	if err := d.Read("Xw", &name, &flags); err != nil {
		return nil, err
	}
	args, err := readStrings(d)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, d.Errorf("method header without a name")
	}
	return &MethodHeader{graph: graph{Position: pos}, Name: name, Arguments: args, Flags: scope.Flags(flags)}, nil
}

// New is `new ClassName`.
type New struct {
	graph
	Identifier node.Node
}

func NewNew(identifier node.Node) *New { return &New{Identifier: identifier} }

func (n *New) GraphKind() GraphKind { return GraphNew }
func (n *New) Copy(depth node.Depth) node.Node {
	return &New{graph: n.copyPos(), Identifier: cp(n.Identifier, depth)}
}
func (n *New) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{n.Identifier}, mark) }
func (n *New) Marshall(e *node.Encoder)   { n.begin(e, GraphNew); e.Write("n", n.Identifier) }
func (n *New) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*New)
	return orderingOf(ok && same(n.Identifier, b.Identifier) == node.Equal)
}
func (n *New) String() string { return "new " + str(n.Identifier) }

func unmarshallNew(d *node.Decoder, pos Position) (node.Node, error) {
	id, err := readGraphKind(d, GraphIdentifier)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, d.Errorf("new without a class name")
	}
	return &New{graph: graph{Position: pos}, Identifier: id}, nil
}

// NotEqualCall negates the result of an == call.
type NotEqualCall struct {
	graph
	Call node.Node
}

func NewNotEqualCall(call node.Node) *NotEqualCall { return &NotEqualCall{Call: call} }

func (n *NotEqualCall) GraphKind() GraphKind { return GraphNotEqualCall }
func (n *NotEqualCall) Copy(depth node.Depth) node.Node {
	return &NotEqualCall{graph: n.copyPos(), Call: cp(n.Call, depth)}
}
func (n *NotEqualCall) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{n.Call}, mark) }
func (n *NotEqualCall) Marshall(e *node.Encoder)   { n.begin(e, GraphNotEqualCall); e.Write("n", n.Call) }
func (n *NotEqualCall) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*NotEqualCall)
	return orderingOf(ok && same(n.Call, b.Call) == node.Equal)
}
func (n *NotEqualCall) String() string {
	if m, ok := n.Call.(*MethodCall); ok && len(m.Arguments) == 1 {
		return str(m.Receiver) + " != " + str(m.Arguments[0])
	}
	return "!(" + str(n.Call) + ")"
}

func unmarshallNotEqualCall(d *node.Decoder, pos Position) (node.Node, error) {
	call, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, d.Errorf("not-equal without a call")
	}
	return &NotEqualCall{graph: graph{Position: pos}, Call: call}, nil
}

// Symbol is `#name`.
type Symbol struct {
	graph
	Name string
}

func NewSymbol(name string) *Symbol { return &Symbol{Name: name} }

func (s *Symbol) GraphKind() GraphKind      { return GraphSymbol }
func (s *Symbol) Copy(node.Depth) node.Node { return &Symbol{graph: s.copyPos(), Name: s.Name} }
func (s *Symbol) Marshall(e *node.Encoder)  { s.begin(e, GraphSymbol); e.Write("X", s.Name) }
func (s *Symbol) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Symbol)
	return orderingOf(ok && s.Name == b.Name)
}
func (s *Symbol) String() string { return "#" + s.Name }

func unmarshallSymbol(d *node.Decoder, pos Position) (node.Node, error) {
	var name string
	if err := d.Read("X", &name); err != nil {
		return nil, err
	}
	return &Symbol{graph: graph{Position: pos}, Name: name}, nil
}

// FunctionUpdate adds a specific case to an existing function:
// `f(0) = 1` after `f(x) = x * f(x - 1)`.
type FunctionUpdate struct {
	graph
	Identifier node.Node
	Arguments  []node.Node
	Arithmetic node.Node
}

func NewFunctionUpdate(identifier node.Node, args []node.Node, arithmetic node.Node) *FunctionUpdate {
	return &FunctionUpdate{Identifier: identifier, Arguments: args, Arithmetic: arithmetic}
}

func (f *FunctionUpdate) GraphKind() GraphKind { return GraphFunctionUpdate }
func (f *FunctionUpdate) Copy(depth node.Depth) node.Node {
	return &FunctionUpdate{graph: f.copyPos(), Identifier: cp(f.Identifier, depth),
		Arguments: node.CopyAll(f.Arguments, depth), Arithmetic: cp(f.Arithmetic, depth)}
}
func (f *FunctionUpdate) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{f.Identifier, f.Arithmetic}, mark)
	node.TraceAll(f.Arguments, mark)
}
func (f *FunctionUpdate) Marshall(e *node.Encoder) {
	f.begin(e, GraphFunctionUpdate)
	e.Write("nln", f.Identifier, f.Arguments, f.Arithmetic)
}
func (f *FunctionUpdate) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*FunctionUpdate)
	return orderingOf(ok && same(f.Identifier, b.Identifier, f.Arithmetic, b.Arithmetic) == node.Equal &&
		sameAll(f.Arguments, b.Arguments) == node.Equal)
}
func (f *FunctionUpdate) String() string {
	return str(f.Identifier) + "(" + joinStrings(f.Arguments, ", ") + ") = " + str(f.Arithmetic)
}

func unmarshallFunctionUpdate(d *node.Decoder, pos Position) (node.Node, error) {
	id, err := readGraphKind(d, GraphIdentifier)
	if err != nil {
		return nil, err
	}
	var (
		args       []node.Node
		arithmetic node.Node
	)
	if err := d.Read("ln", &args, &arithmetic); err != nil {
		return nil, err
	}
	if id == nil || arithmetic == nil {
		return nil, d.Errorf("incomplete function update")
	}
	return &FunctionUpdate{graph: graph{Position: pos}, Identifier: id, Arguments: args, Arithmetic: arithmetic}, nil
}
