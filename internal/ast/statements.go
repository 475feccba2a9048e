package ast

import (
	"strings"

	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

// Assignment binds Value to Identifier. Flags carry `global` and
// `const` modifiers written at the assignment site.
type Assignment struct {
	graph
	Flags      scope.Flags
	Identifier node.Node
	Value      node.Node
}

func NewAssignment(identifier, value node.Node, flags scope.Flags) *Assignment {
	return &Assignment{Identifier: identifier, Value: value, Flags: flags}
}

func (a *Assignment) GraphKind() GraphKind { return GraphAssignment }
func (a *Assignment) Copy(depth node.Depth) node.Node {
	return &Assignment{graph: a.copyPos(), Flags: a.Flags,
		Identifier: cp(a.Identifier, depth), Value: cp(a.Value, depth)}
}
func (a *Assignment) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{a.Identifier, a.Value}, mark)
}
func (a *Assignment) Marshall(e *node.Encoder) {
	a.begin(e, GraphAssignment)
	e.Write("wnn", uint32(a.Flags), a.Identifier, a.Value)
}
func (a *Assignment) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Assignment)
	return orderingOf(ok && a.Flags == b.Flags &&
		same(a.Identifier, b.Identifier, a.Value, b.Value) == node.Equal)
}
func (a *Assignment) String() string {
	prefix := ""
	if a.Flags.Has(scope.Global) {
		prefix += "global "
	}
	if a.Flags.Has(scope.Constant) {
		prefix += "const "
	}
	if a.Value == nil {
		return prefix + str(a.Identifier)
	}
	return prefix + str(a.Identifier) + " = " + str(a.Value)
}

func unmarshallAssignment(d *node.Decoder, pos Position) (node.Node, error) {
	var flags uint32
	if err := d.Read("w", &flags); err != nil {
		return nil, err
	}
	id, err := readGraphKind(d, GraphIdentifier)
	if err != nil {
		return nil, err
	}
	var value node.Node
	if err := d.Read("n", &value); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, d.Errorf("assignment without an identifier")
	}
	return &Assignment{graph: graph{Position: pos}, Flags: scope.Flags(flags), Identifier: id, Value: value}, nil
}

// List is a statement sequence.
type List struct {
	graph
	Items []node.Node
}

func NewList(items ...node.Node) *List { return &List{Items: items} }

func (l *List) Push(n node.Node) { l.Items = append(l.Items, n) }
func (l *List) Len() int         { return len(l.Items) }

func (l *List) GraphKind() GraphKind { return GraphList }
func (l *List) Copy(depth node.Depth) node.Node {
	return &List{graph: l.copyPos(), Items: node.CopyAll(l.Items, depth)}
}
func (l *List) Trace(mark func(node.Node)) { node.TraceAll(l.Items, mark) }
func (l *List) Marshall(e *node.Encoder)   { l.begin(e, GraphList); e.Write("l", l.Items) }
func (l *List) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*List)
	return orderingOf(ok && sameAll(l.Items, b.Items) == node.Equal)
}
func (l *List) String() string { return joinStrings(l.Items, "; ") }

func unmarshallList(d *node.Decoder, pos Position) (node.Node, error) {
	var items []node.Node
	if err := d.Read("l", &items); err != nil {
		return nil, err
	}
	return &List{graph: graph{Position: pos}, Items: items}, nil
}

// readList decodes a statement list, nil allowed.
func readList(d *node.Decoder) (*List, error) {
	n, err := readGraphKind(d, GraphList)
	if err != nil || n == nil {
		return nil, err
	}
	return n.(*List), nil
}

// listOrNil avoids storing a typed nil *List in a node.Node field.
func listOrNil(l *List) node.Node {
	if l == nil {
		return nil
	}
	return l
}

func block(n node.Node) string { return "{ " + str(n) + " }" }

// Tree is the root of a parsed file.
type Tree struct {
	graph
	Contents node.Node
}

func NewTree(contents *List) *Tree { return &Tree{Contents: listOrNil(contents)} }

// Statements returns the top-level statement list.
func (t *Tree) Statements() *List {
	l, _ := t.Contents.(*List)
	return l
}

func (t *Tree) GraphKind() GraphKind { return GraphTree }
func (t *Tree) Copy(depth node.Depth) node.Node {
	return &Tree{graph: t.copyPos(), Contents: cp(t.Contents, depth)}
}
func (t *Tree) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{t.Contents}, mark) }
func (t *Tree) Marshall(e *node.Encoder)   { t.begin(e, GraphTree); e.Write("n", t.Contents) }
func (t *Tree) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Tree)
	return orderingOf(ok && same(t.Contents, b.Contents) == node.Equal)
}
func (t *Tree) String() string { return str(t.Contents) }

func unmarshallTree(d *node.Decoder, pos Position) (node.Node, error) {
	l, err := readList(d)
	if err != nil {
		return nil, err
	}
	return &Tree{graph: graph{Position: pos}, Contents: listOrNil(l)}, nil
}

// If is one link of an if / else if / else chain. A nil Condition is the
// trailing else.
type If struct {
	graph
	Condition node.Node
	Statement node.Node
	Next      node.Node
}

func NewIf(condition, statement, next node.Node) *If {
	return &If{Condition: condition, Statement: statement, Next: next}
}

func (i *If) GraphKind() GraphKind { return GraphIf }
func (i *If) Copy(depth node.Depth) node.Node {
	return &If{graph: i.copyPos(), Condition: cp(i.Condition, depth),
		Statement: cp(i.Statement, depth), Next: cp(i.Next, depth)}
}
func (i *If) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{i.Condition, i.Statement, i.Next}, mark)
}
func (i *If) Marshall(e *node.Encoder) {
	i.begin(e, GraphIf)
	e.Write("nnn", i.Condition, i.Statement, i.Next)
}
func (i *If) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*If)
	return orderingOf(ok && same(i.Condition, b.Condition, i.Statement, b.Statement, i.Next, b.Next) == node.Equal)
}
func (i *If) String() string {
	var s string
	if i.Condition == nil {
		s = block(i.Statement)
	} else {
		s = "if (" + str(i.Condition) + ") " + block(i.Statement)
	}
	if i.Next != nil {
		s += " else " + str(i.Next)
	}
	return s
}

func unmarshallIf(d *node.Decoder, pos Position) (node.Node, error) {
	cond, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	stmt, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	next, err := readGraphKind(d, GraphIf)
	if err != nil {
		return nil, err
	}
	return &If{graph: graph{Position: pos}, Condition: cond, Statement: stmt, Next: next}, nil
}

// For is `for (initial; condition; increment) { statement }`. Any of the
// three header parts may be nil.
type For struct {
	graph
	Initial   node.Node
	Condition node.Node
	Increment node.Node
	Statement node.Node
}

func NewFor(initial, condition, increment, statement node.Node) *For {
	return &For{Initial: initial, Condition: condition, Increment: increment, Statement: statement}
}

func (f *For) GraphKind() GraphKind { return GraphFor }
func (f *For) Copy(depth node.Depth) node.Node {
	return &For{graph: f.copyPos(), Initial: cp(f.Initial, depth), Condition: cp(f.Condition, depth),
		Increment: cp(f.Increment, depth), Statement: cp(f.Statement, depth)}
}
func (f *For) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{f.Initial, f.Condition, f.Increment, f.Statement}, mark)
}
func (f *For) Marshall(e *node.Encoder) {
	f.begin(e, GraphFor)
	e.Write("nnnn", f.Initial, f.Condition, f.Increment, f.Statement)
}
func (f *For) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*For)
	return orderingOf(ok && same(f.Initial, b.Initial, f.Condition, b.Condition,
		f.Increment, b.Increment, f.Statement, b.Statement) == node.Equal)
}
func (f *For) String() string {
	return "for (" + str(f.Initial) + "; " + str(f.Condition) + "; " + str(f.Increment) + ") " + block(f.Statement)
}

func unmarshallFor(d *node.Decoder, pos Position) (node.Node, error) {
	parts := make([]node.Node, 4)
	for i := range parts {
		n, err := readGraph(d)
		if err != nil {
			return nil, err
		}
		parts[i] = n
	}
	return &For{graph: graph{Position: pos}, Initial: parts[0], Condition: parts[1],
		Increment: parts[2], Statement: parts[3]}, nil
}

// While is `while (condition) { statement }`.
type While struct {
	graph
	Condition node.Node
	Statement node.Node
}

func NewWhile(condition, statement node.Node) *While {
	return &While{Condition: condition, Statement: statement}
}

func (w *While) GraphKind() GraphKind { return GraphWhile }
func (w *While) Copy(depth node.Depth) node.Node {
	return &While{graph: w.copyPos(), Condition: cp(w.Condition, depth), Statement: cp(w.Statement, depth)}
}
func (w *While) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{w.Condition, w.Statement}, mark)
}
func (w *While) Marshall(e *node.Encoder) {
	w.begin(e, GraphWhile)
	e.Write("nn", w.Condition, w.Statement)
}
func (w *While) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*While)
	return orderingOf(ok && same(w.Condition, b.Condition, w.Statement, b.Statement) == node.Equal)
}
func (w *While) String() string { return "while (" + str(w.Condition) + ") " + block(w.Statement) }

func unmarshallWhile(d *node.Decoder, pos Position) (node.Node, error) {
	cond, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	stmt, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	return &While{graph: graph{Position: pos}, Condition: cond, Statement: stmt}, nil
}

// CatchBlock is one `catch (Type name) { ... }` clause. A nil Type
// catches everything.
type CatchBlock struct {
	graph
	Type      node.Node
	Name      string
	Statement node.Node
}

func NewCatchBlock(typ node.Node, name string, statement node.Node) *CatchBlock {
	return &CatchBlock{Type: typ, Name: name, Statement: statement}
}

func (c *CatchBlock) GraphKind() GraphKind { return GraphCatchBlock }
func (c *CatchBlock) Copy(depth node.Depth) node.Node {
	return &CatchBlock{graph: c.copyPos(), Type: cp(c.Type, depth), Name: c.Name, Statement: cp(c.Statement, depth)}
}
func (c *CatchBlock) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{c.Type, c.Statement}, mark)
}
func (c *CatchBlock) Marshall(e *node.Encoder) {
	c.begin(e, GraphCatchBlock)
	e.Write("nXn", c.Type, c.Name, c.Statement)
}
func (c *CatchBlock) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*CatchBlock)
	return orderingOf(ok && c.Name == b.Name && same(c.Type, b.Type, c.Statement, b.Statement) == node.Equal)
}
func (c *CatchBlock) String() string {
	if c.Type == nil {
		return "catch (" + c.Name + ") " + block(c.Statement)
	}
	return "catch (" + str(c.Type) + " " + c.Name + ") " + block(c.Statement)
}

func unmarshallCatchBlock(d *node.Decoder, pos Position) (node.Node, error) {
	typ, err := readGraphKind(d, GraphIdentifier)
	if err != nil {
		return nil, err
	}
	var name string
	if err := d.Read("X", &name); err != nil {
		return nil, err
	}
	stmt, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	return &CatchBlock{graph: graph{Position: pos}, Type: typ, Name: name, Statement: stmt}, nil
}

// TryBlock is `try { statement } catch ...`.
type TryBlock struct {
	graph
	Statement node.Node
	Catches   []node.Node
}

func NewTryBlock(statement node.Node, catches ...node.Node) *TryBlock {
	return &TryBlock{Statement: statement, Catches: catches}
}

func (t *TryBlock) GraphKind() GraphKind { return GraphTryBlock }
func (t *TryBlock) Copy(depth node.Depth) node.Node {
	return &TryBlock{graph: t.copyPos(), Statement: cp(t.Statement, depth), Catches: node.CopyAll(t.Catches, depth)}
}
func (t *TryBlock) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{t.Statement}, mark)
	node.TraceAll(t.Catches, mark)
}
func (t *TryBlock) Marshall(e *node.Encoder) {
	t.begin(e, GraphTryBlock)
	e.Write("nl", t.Statement, t.Catches)
}
func (t *TryBlock) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*TryBlock)
	return orderingOf(ok && same(t.Statement, b.Statement) == node.Equal && sameAll(t.Catches, b.Catches) == node.Equal)
}
func (t *TryBlock) String() string {
	s := "try " + block(t.Statement)
	for _, c := range t.Catches {
		s += " " + str(c)
	}
	return s
}

func unmarshallTryBlock(d *node.Decoder, pos Position) (node.Node, error) {
	stmt, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	var catches []node.Node
	if err := d.Read("l", &catches); err != nil {
		return nil, err
	}
	for _, c := range catches {
		if KindOf(c) != GraphCatchBlock {
			return nil, d.Errorf("try block with a non-catch clause")
		}
	}
	return &TryBlock{graph: graph{Position: pos}, Statement: stmt, Catches: catches}, nil
}

// Return, Throw carry an optional value.
type Return struct {
	graph
	Value node.Node
}

func NewReturn(value node.Node) *Return { return &Return{Value: value} }

func (r *Return) GraphKind() GraphKind { return GraphReturn }
func (r *Return) Copy(depth node.Depth) node.Node {
	return &Return{graph: r.copyPos(), Value: cp(r.Value, depth)}
}
func (r *Return) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{r.Value}, mark) }
func (r *Return) Marshall(e *node.Encoder)   { r.begin(e, GraphReturn); e.Write("n", r.Value) }
func (r *Return) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Return)
	return orderingOf(ok && same(r.Value, b.Value) == node.Equal)
}
func (r *Return) String() string { return strings.TrimSpace("return " + str(r.Value)) }

func unmarshallReturn(d *node.Decoder, pos Position) (node.Node, error) {
	var v node.Node
	if err := d.Read("n", &v); err != nil {
		return nil, err
	}
	return &Return{graph: graph{Position: pos}, Value: v}, nil
}

type Throw struct {
	graph
	Value node.Node
}

func NewThrow(value node.Node) *Throw { return &Throw{Value: value} }

func (t *Throw) GraphKind() GraphKind { return GraphThrow }
func (t *Throw) Copy(depth node.Depth) node.Node {
	return &Throw{graph: t.copyPos(), Value: cp(t.Value, depth)}
}
func (t *Throw) Trace(mark func(node.Node)) { node.TraceAll([]node.Node{t.Value}, mark) }
func (t *Throw) Marshall(e *node.Encoder)   { t.begin(e, GraphThrow); e.Write("n", t.Value) }
func (t *Throw) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Throw)
	return orderingOf(ok && same(t.Value, b.Value) == node.Equal)
}
func (t *Throw) String() string { return "throw " + str(t.Value) }

func unmarshallThrow(d *node.Decoder, pos Position) (node.Node, error) {
	var v node.Node
	if err := d.Read("n", &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, d.Errorf("throw without a value")
	}
	return &Throw{graph: graph{Position: pos}, Value: v}, nil
}

// Synchronized is `synchronized (target) { statement }`.
type Synchronized struct {
	graph
	Target    node.Node
	Statement node.Node
}

func NewSynchronized(target, statement node.Node) *Synchronized {
	return &Synchronized{Target: target, Statement: statement}
}

func (s *Synchronized) GraphKind() GraphKind { return GraphSynchronized }
func (s *Synchronized) Copy(depth node.Depth) node.Node {
	return &Synchronized{graph: s.copyPos(), Target: cp(s.Target, depth), Statement: cp(s.Statement, depth)}
}
func (s *Synchronized) Trace(mark func(node.Node)) {
	node.TraceAll([]node.Node{s.Target, s.Statement}, mark)
}
func (s *Synchronized) Marshall(e *node.Encoder) {
	s.begin(e, GraphSynchronized)
	e.Write("nn", s.Target, s.Statement)
}
func (s *Synchronized) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Synchronized)
	return orderingOf(ok && same(s.Target, b.Target, s.Statement, b.Statement) == node.Equal)
}
func (s *Synchronized) String() string {
	return "synchronized (" + str(s.Target) + ") " + block(s.Statement)
}

func unmarshallSynchronized(d *node.Decoder, pos Position) (node.Node, error) {
	target, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	stmt, err := readGraph(d)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, d.Errorf("synchronized without a target")
	}
	return &Synchronized{graph: graph{Position: pos}, Target: target, Statement: stmt}, nil
}

// Package is `package a.b.c`.
type Package struct {
	graph
	Path []string
}

func NewPackage(path ...string) *Package { return &Package{Path: path} }

func (p *Package) Name() string { return strings.Join(p.Path, ".") }

func (p *Package) GraphKind() GraphKind { return GraphPackage }
func (p *Package) Copy(node.Depth) node.Node {
	return &Package{graph: p.copyPos(), Path: append([]string(nil), p.Path...)}
}
func (p *Package) Marshall(e *node.Encoder) { p.begin(e, GraphPackage); writeStrings(e, p.Path) }
func (p *Package) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Package)
	return orderingOf(ok && equalStrings(p.Path, b.Path))
}
func (p *Package) String() string { return "package " + p.Name() }

func unmarshallPackage(d *node.Decoder, pos Position) (node.Node, error) {
	path, err := readStrings(d)
	if err != nil {
		return nil, err
	}
	return &Package{graph: graph{Position: pos}, Path: path}, nil
}

// Import is `import a.b.C` or, with Wild, `import a.b.*`.
type Import struct {
	graph
	Path []string
	Wild bool
}

func NewImport(path []string, wild bool) *Import { return &Import{Path: path, Wild: wild} }

func (i *Import) Name() string { return strings.Join(i.Path, ".") }

func (i *Import) GraphKind() GraphKind { return GraphImport }
func (i *Import) Copy(node.Depth) node.Node {
	return &Import{graph: i.copyPos(), Path: append([]string(nil), i.Path...), Wild: i.Wild}
}
func (i *Import) Marshall(e *node.Encoder) {
	i.begin(e, GraphImport)
	writeStrings(e, i.Path)
	e.Write("b", i.Wild)
}
func (i *Import) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*Import)
	return orderingOf(ok && i.Wild == b.Wild && equalStrings(i.Path, b.Path))
}
func (i *Import) String() string {
	if i.Wild {
		return "import " + i.Name() + ".*"
	}
	return "import " + i.Name()
}

func unmarshallImport(d *node.Decoder, pos Position) (node.Node, error) {
	path, err := readStrings(d)
	if err != nil {
		return nil, err
	}
	var wild bool
	if err := d.Read("b", &wild); err != nil {
		return nil, err
	}
	return &Import{graph: graph{Position: pos}, Path: path, Wild: wild}, nil
}

// ClassFlags are the modifiers written before `class`.
type ClassFlags uint32

const (
	ClassAbstract ClassFlags = 1 << iota
	ClassAtomic
	ClassFinal
	ClassSingleton
	ClassSlice
	ClassReadWriteLock
)

func (f ClassFlags) Has(bit ClassFlags) bool { return f&bit == bit }

// ClassDefinition declares a user class. Variables holds Assignment
// nodes (the value is the default, possibly nil). Methods holds
// GraphDataPair{MethodHeader, List} entries. Classes holds nested
// definitions.
type ClassDefinition struct {
	graph
	Package   string
	Name      string
	Super     string
	Flags     ClassFlags
	Variables []node.Node
	Methods   []node.Node
	Classes   []node.Node
}

func (c *ClassDefinition) FullName() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

func (c *ClassDefinition) GraphKind() GraphKind { return GraphClassDefinition }
func (c *ClassDefinition) Copy(depth node.Depth) node.Node {
	return &ClassDefinition{graph: c.copyPos(), Package: c.Package, Name: c.Name, Super: c.Super, Flags: c.Flags,
		Variables: node.CopyAll(c.Variables, depth), Methods: node.CopyAll(c.Methods, depth),
		Classes: node.CopyAll(c.Classes, depth)}
}
func (c *ClassDefinition) Trace(mark func(node.Node)) {
	node.TraceAll(c.Variables, mark)
	node.TraceAll(c.Methods, mark)
	node.TraceAll(c.Classes, mark)
}
func (c *ClassDefinition) Marshall(e *node.Encoder) {
	c.begin(e, GraphClassDefinition)
	e.Write("XXXwlll", c.Package, c.Name, c.Super, uint32(c.Flags), c.Variables, c.Methods, c.Classes)
}
func (c *ClassDefinition) CompareNode(o node.Node) node.Ordering {
	b, ok := o.(*ClassDefinition)
	return orderingOf(ok && c.Package == b.Package && c.Name == b.Name && c.Super == b.Super && c.Flags == b.Flags &&
		sameAll(c.Variables, b.Variables) == node.Equal && sameAll(c.Methods, b.Methods) == node.Equal &&
		sameAll(c.Classes, b.Classes) == node.Equal)
}
func (c *ClassDefinition) String() string {
	var b strings.Builder
	b.WriteString("class ")
	b.WriteString(c.Name)
	if c.Super != "" {
		b.WriteString("(" + c.Super + ")")
	}
	b.WriteString(" {")
	for _, v := range c.Variables {
		b.WriteString(" " + str(v) + ";")
	}
	for _, m := range c.Methods {
		if p, ok := m.(*GraphDataPair); ok {
			b.WriteString(" " + str(p.Left) + " " + block(p.Right))
		}
	}
	for _, n := range c.Classes {
		b.WriteString(" " + str(n))
	}
	b.WriteString(" }")
	return b.String()
}

func unmarshallClassDefinition(d *node.Decoder, pos Position) (node.Node, error) {
	c := &ClassDefinition{graph: graph{Position: pos}}
	var flags uint32
	if err := d.Read("XXXwlll", &c.Package, &c.Name, &c.Super, &flags, &c.Variables, &c.Methods, &c.Classes); err != nil {
		return nil, err
	}
	c.Flags = ClassFlags(flags)
	if c.Name == "" {
		return nil, d.Errorf("class definition without a name")
	}
	for _, v := range c.Variables {
		if KindOf(v) != GraphAssignment {
			return nil, d.Errorf("class variable is %s", KindOf(v))
		}
	}
	for _, m := range c.Methods {
		p, ok := m.(*GraphDataPair)
		if !ok || KindOf(p.Left) != GraphMethodHeader {
			return nil, d.Errorf("malformed method in class %s", c.Name)
		}
	}
	for _, n := range c.Classes {
		if KindOf(n) != GraphClassDefinition {
			return nil, d.Errorf("nested class is %s", KindOf(n))
		}
	}
	return c, nil
}
