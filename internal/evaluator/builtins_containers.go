package evaluator

import (
	"strings"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

// maxContainerSize bounds createWithSize: and similar allocations.
const maxContainerSize = 1 << 24

// callValue calls a block or function with args.
func (ev *Evaluator) callValue(callable *Object, args ...*Object) (*Object, error) {
	return ev.send(callable, nil, config.CallMethodName, args, ast.Position{})
}

// joinValues converts items with asString and joins them.
func (ev *Evaluator) joinValues(items []*Object, sep string) (string, error) {
	texts := make([]string, len(items))
	for i, item := range items {
		text, err := ev.stringValue(item)
		if err != nil {
			return "", err
		}
		texts[i] = text
	}
	return strings.Join(texts, sep), nil
}

// evalItems evaluates literal container items into values.
func (ev *Evaluator) evalItems(items []node.Node) ([]*Object, error) {
	values, err := ev.evalArguments(items)
	if err != nil {
		return nil, err
	}
	unpin(values...)
	for i, v := range values {
		values[i] = ev.assignable(v)
	}
	return values, nil
}

func (ev *Evaluator) index(o *Object, size int) (int, error) {
	i, err := ev.smallInt(o)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= size {
		return 0, ev.throwNew("IndexOutOfBoundsException", i)
	}
	return i, nil
}

func arrayDefinition() *Definition {
	return &Definition{
		Package: config.ContainerPackage,
		Name:    config.ArrayClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NewArray()
			}
		},
		CheckAux: auxIs[*node.Array],
		Evaluate: func(ev *Evaluator, literal *Object) (*Object, error) {
			items, err := ev.evalItems(literal.aux.(*node.Array).Items)
			if err != nil {
				return nil, err
			}
			return ev.rt.NewArray(items...), nil
		},
		Methods: []MethodSpec{
			{Name: config.IndexMethodName, Native: arrayIndex},
			{Name: config.IndexSetMethodName, Native: arrayIndexSet, Variadic: true},
			{Name: config.EqualsMethodName, Native: arrayEquals},
			{Name: config.OperatorMethodName("+"), Native: arrayConcat},
			{Name: config.AsStringMethodName, Native: arrayAsString},
			{Name: config.DescribeMethodName, Native: arrayAsString},
			{Name: "size", Native: arraySize},
			{Name: "each:", Native: arrayEach},
			{Name: "collect:", Native: arrayCollect},
			{Name: "contains:", Native: arrayContains},
		},
		MetaMethods: []MethodSpec{
			{Name: "createWithSize:", Native: arrayCreateWithSize},
		},
	}
}

func arrayOf(o *Object) *node.Array {
	a, _ := auxOf[*node.Array](o)
	if a == nil {
		return node.NewArray()
	}
	return a
}

func arrayIndex(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	a := arrayOf(self)
	i, err := ev.index(args[0], len(a.Items))
	if err != nil {
		return nil, err
	}
	return ev.rt.asObject(a.Items[i]), nil
}

func arrayIndexSet(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	if len(args) != 2 {
		return nil, ev.throwNew("InvalidNumberArgumentsException", 2, len(args))
	}
	a := arrayOf(self)
	i, err := ev.index(args[0], len(a.Items))
	if err != nil {
		return nil, err
	}
	value := ev.assignable(args[1])
	a.Items[i] = value
	return value, nil
}

func arrayEquals(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	other := ev.orNil(args[0])
	if !other.template.IsKindOfName(arrayFQ) {
		return ev.rt.no, nil
	}
	equal, err := ev.itemsEqual(ev.rt.objects(arrayOf(self).Items), ev.rt.objects(arrayOf(other).Items))
	if err != nil {
		return nil, err
	}
	return ev.rt.Bool(equal), nil
}

func (ev *Evaluator) itemsEqual(a, b []*Object) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		equal, err := ev.equals(a[i], b[i])
		if err != nil || !equal {
			return false, err
		}
	}
	return true, nil
}

func arrayConcat(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	other := ev.orNil(args[0])
	if !other.template.IsKindOfName(arrayFQ) {
		return nil, ev.throwNew("InvalidCastException", other.template.ShortName(), config.ArrayClassName)
	}
	items := append(ev.rt.objects(arrayOf(self).Items), ev.rt.objects(arrayOf(other).Items)...)
	return ev.rt.NewArray(items...), nil
}

func arrayAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	text, err := ev.joinValues(ev.rt.objects(arrayOf(self).Items), ", ")
	if err != nil {
		return nil, err
	}
	return ev.rt.NewString("[" + text + "]"), nil
}

func arraySize(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewNumberInt(int64(len(arrayOf(self).Items))), nil
}

func arrayEach(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	for _, item := range ev.rt.objects(arrayOf(self).Items) {
		if _, err := ev.callValue(args[0], item); err != nil {
			return nil, err
		}
	}
	return self, nil
}

func arrayCollect(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	items := ev.rt.objects(arrayOf(self).Items)
	result := make([]*Object, len(items))
	for i, item := range items {
		value, err := ev.callValue(args[0], item)
		if err != nil {
			unpin(result[:i]...)
			return nil, err
		}
		pin(value)
		result[i] = value
	}
	unpin(result...)
	return ev.rt.NewArray(result...), nil
}

func arrayContains(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	for _, item := range ev.rt.objects(arrayOf(self).Items) {
		equal, err := ev.equals(item, ev.orNil(args[0]))
		if err != nil {
			return nil, err
		}
		if equal {
			return ev.rt.yes, nil
		}
	}
	return ev.rt.no, nil
}

func arrayCreateWithSize(ev *Evaluator, _ *Object, args []*Object) (*Object, error) {
	n, err := ev.smallInt(args[0])
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxContainerSize {
		return nil, ev.throwNew("NeedPositiveIntegerException", args[0])
	}
	items := make([]*Object, n)
	for i := range items {
		items[i] = ev.rt.nilObject
	}
	return ev.rt.NewArray(items...), nil
}

func listDefinition() *Definition {
	return &Definition{
		Package: config.ContainerPackage,
		Name:    config.ListClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NewList()
			}
		},
		CheckAux: auxIs[*node.List],
		Methods: []MethodSpec{
			{Name: "push:", Native: listPush},
			{Name: "pop", Native: listPop},
			{Name: "size", Native: listSize},
			{Name: config.IndexMethodName, Native: listIndex},
			{Name: "each:", Native: listEach},
			{Name: config.AsStringMethodName, Native: listAsString},
			{Name: config.DescribeMethodName, Native: listAsString},
		},
	}
}

func listOf(o *Object) *node.List {
	l, _ := auxOf[*node.List](o)
	if l == nil {
		return node.NewList()
	}
	return l
}

func listPush(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	listOf(self).Push(ev.assignable(args[0]))
	return self, nil
}

func listPop(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	l := listOf(self)
	if l.Len() == 0 {
		return ev.rt.nilObject, nil
	}
	last := l.Items[l.Len()-1]
	l.Items[l.Len()-1] = nil
	l.Items = l.Items[:l.Len()-1]
	return ev.rt.asObject(last), nil
}

func listSize(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewNumberInt(int64(listOf(self).Len())), nil
}

func listIndex(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	l := listOf(self)
	i, err := ev.index(args[0], l.Len())
	if err != nil {
		return nil, err
	}
	return ev.rt.asObject(l.Items[i]), nil
}

func listEach(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	for _, item := range ev.rt.objects(listOf(self).Items) {
		if _, err := ev.callValue(args[0], item); err != nil {
			return nil, err
		}
	}
	return self, nil
}

func listAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	text, err := ev.joinValues(ev.rt.objects(listOf(self).Items), ", ")
	if err != nil {
		return nil, err
	}
	return ev.rt.NewString("{" + text + "}"), nil
}

func hashDefinition() *Definition {
	return &Definition{
		Package: config.ContainerPackage,
		Name:    config.HashClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NewHash()
			}
		},
		CheckAux: func(aux node.Node, uninitialized bool) bool {
			switch aux.(type) {
			case *node.Hash:
				return true
			case *node.List, nil:
				// literal entries
				return uninitialized
			}
			return false
		},
		Evaluate: evaluateHash,
		Methods: []MethodSpec{
			{Name: config.IndexMethodName, Native: hashIndex},
			{Name: config.IndexSetMethodName, Native: hashIndexSet, Variadic: true},
			{Name: "keys", Native: hashKeys},
			{Name: "values", Native: hashValues},
			{Name: "size", Native: hashSize},
			{Name: "contains:", Native: hashContains},
			{Name: "remove:", Native: hashRemove},
			{Name: "each:", Native: hashEach},
			{Name: config.AsStringMethodName, Native: hashAsString},
			{Name: config.DescribeMethodName, Native: hashAsString},
		},
	}
}

func evaluateHash(ev *Evaluator, literal *Object) (*Object, error) {
	entries, _ := literal.aux.(*node.List)
	result := ev.rt.NewHash()
	pin(result)
	defer unpin(result)
	h := hashOf(result)
	if entries == nil {
		return result, nil
	}
	for _, entry := range entries.Items {
		pair, ok := entry.(*ast.GraphDataPair)
		if !ok {
			return nil, ev.throwNew("RuntimeException", "hash literal entry is not a pair")
		}
		kv, err := ev.evalItems([]node.Node{pair.Left, pair.Right})
		if err != nil {
			return nil, err
		}
		h.Set(kv[0], kv[1])
	}
	return result, nil
}

func hashOf(o *Object) *node.Hash {
	h, _ := auxOf[*node.Hash](o)
	if h == nil {
		return node.NewHash()
	}
	return h
}

func hashIndex(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	v, _ := hashOf(self).Get(ev.orNil(args[0]))
	return ev.rt.asObject(v), nil
}

func hashIndexSet(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	if len(args) != 2 {
		return nil, ev.throwNew("InvalidNumberArgumentsException", 2, len(args))
	}
	value := ev.assignable(args[1])
	hashOf(self).Set(ev.assignable(args[0]), value)
	return value, nil
}

func hashKeys(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	entries := hashOf(self).Entries()
	keys := make([]*Object, len(entries))
	for i, p := range entries {
		keys[i] = ev.rt.asObject(p.Left)
	}
	return ev.rt.NewArray(keys...), nil
}

func hashValues(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	entries := hashOf(self).Entries()
	values := make([]*Object, len(entries))
	for i, p := range entries {
		values[i] = ev.rt.asObject(p.Right)
	}
	return ev.rt.NewArray(values...), nil
}

func hashSize(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewNumberInt(int64(hashOf(self).Len())), nil
}

func hashContains(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	_, ok := hashOf(self).Get(ev.orNil(args[0]))
	return ev.rt.Bool(ok), nil
}

func hashRemove(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	return ev.rt.Bool(hashOf(self).Delete(ev.orNil(args[0]))), nil
}

// hashEach calls the block with each key and value.
func hashEach(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	for _, p := range hashOf(self).Entries() {
		if _, err := ev.callValue(args[0], ev.rt.asObject(p.Left), ev.rt.asObject(p.Right)); err != nil {
			return nil, err
		}
	}
	return self, nil
}

func hashAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	var b strings.Builder
	b.WriteString("#Hash(")
	for i, p := range hashOf(self).Entries() {
		if i > 0 {
			b.WriteString(", ")
		}
		text, err := ev.joinValues([]*Object{ev.rt.asObject(p.Left), ev.rt.asObject(p.Right)}, "=>")
		if err != nil {
			return nil, err
		}
		b.WriteString(text)
	}
	b.WriteString(")")
	return ev.rt.NewString(b.String()), nil
}

func pairDefinition() *Definition {
	return &Definition{
		Package: config.ContainerPackage,
		Name:    config.PairClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NewPair(nil, nil)
			}
		},
		CheckAux: auxIs[*node.Pair],
		Methods: []MethodSpec{
			{Name: "left", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				return ev.rt.asObject(pairOf(self).Left), nil
			}},
			{Name: "right", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				return ev.rt.asObject(pairOf(self).Right), nil
			}},
			{Name: config.AsStringMethodName, Native: pairAsString},
			{Name: config.DescribeMethodName, Native: pairAsString},
		},
		MetaMethods: []MethodSpec{
			{Name: "left:right:", Native: func(ev *Evaluator, _ *Object, args []*Object) (*Object, error) {
				return ev.rt.NewPair(ev.assignable(args[0]), ev.assignable(args[1])), nil
			}},
		},
	}
}

func pairOf(o *Object) *node.Pair {
	p, _ := auxOf[*node.Pair](o)
	if p == nil {
		return node.NewPair(nil, nil)
	}
	return p
}

func pairAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	p := pairOf(self)
	text, err := ev.joinValues([]*Object{ev.rt.asObject(p.Left), ev.rt.asObject(p.Right)}, " => ")
	if err != nil {
		return nil, err
	}
	return ev.rt.NewString(text), nil
}

func matrixDefinition() *Definition {
	return &Definition{
		Package: config.MathsPackage,
		Name:    config.MatrixClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NewMatrix(0, 0, nil)
			}
		},
		CheckAux: auxIs[*node.Matrix],
		Evaluate: func(ev *Evaluator, literal *Object) (*Object, error) {
			m := literal.aux.(*node.Matrix)
			cells, err := ev.evalItems(m.Cells)
			if err != nil {
				return nil, err
			}
			return ev.rt.NewMatrix(m.Rows, m.Cols, cells), nil
		},
		Methods: []MethodSpec{
			{Name: config.IndexMethodName, Native: matrixIndex, Variadic: true},
			{Name: config.IndexSetMethodName, Native: matrixIndexSet, Variadic: true},
			{Name: config.EqualsMethodName, Native: matrixEquals},
			{Name: config.OperatorMethodName("+"), Native: matrixAdd},
			{Name: config.OperatorMethodName("*"), Native: matrixMultiply},
			{Name: "rows", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				return ev.rt.NewNumberInt(int64(matrixOf(self).Rows)), nil
			}},
			{Name: "columns", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				return ev.rt.NewNumberInt(int64(matrixOf(self).Cols)), nil
			}},
			{Name: "transpose", Native: matrixTranspose},
			{Name: config.AsStringMethodName, Native: matrixAsString},
			{Name: config.DescribeMethodName, Native: matrixAsString},
		},
	}
}

func matrixOf(o *Object) *node.Matrix {
	m, _ := auxOf[*node.Matrix](o)
	if m == nil {
		return node.NewMatrix(0, 0, nil)
	}
	return m
}

func (ev *Evaluator) matrixArg(o *Object) (*node.Matrix, error) {
	o = ev.orNil(o)
	if !o.template.IsKindOfName(matrixFQ) {
		return nil, ev.throwNew("InvalidCastException", o.template.ShortName(), config.MatrixClassName)
	}
	return matrixOf(o), nil
}

func (ev *Evaluator) cell(m *node.Matrix, args []*Object) (int, error) {
	if len(args) < 2 {
		return 0, ev.throwNew("InvalidIndexesException", len(args))
	}
	r, err := ev.index(args[0], int(m.Rows))
	if err != nil {
		return 0, err
	}
	c, err := ev.index(args[1], int(m.Cols))
	if err != nil {
		return 0, err
	}
	return r*int(m.Cols) + c, nil
}

func matrixIndex(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	m := matrixOf(self)
	if len(args) != 2 {
		return nil, ev.throwNew("InvalidIndexesException", len(args))
	}
	i, err := ev.cell(m, args)
	if err != nil {
		return nil, err
	}
	return ev.rt.asObject(m.Cells[i]), nil
}

func matrixIndexSet(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	m := matrixOf(self)
	if len(args) != 3 {
		return nil, ev.throwNew("InvalidIndexesException", len(args))
	}
	i, err := ev.cell(m, args)
	if err != nil {
		return nil, err
	}
	value := ev.assignable(args[2])
	m.Cells[i] = value
	return value, nil
}

func matrixEquals(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	other := ev.orNil(args[0])
	if !other.template.IsKindOfName(matrixFQ) {
		return ev.rt.no, nil
	}
	a, b := matrixOf(self), matrixOf(other)
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return ev.rt.no, nil
	}
	equal, err := ev.itemsEqual(ev.rt.objects(a.Cells), ev.rt.objects(b.Cells))
	if err != nil {
		return nil, err
	}
	return ev.rt.Bool(equal), nil
}

func matrixAdd(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	a := matrixOf(self)
	b, err := ev.matrixArg(args[0])
	if err != nil {
		return nil, err
	}
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return nil, ev.throwNew("InvalidIndexesException", b.String())
	}
	cells := make([]*Object, len(a.Cells))
	defer func() { unpin(cells...) }()
	plus := config.OperatorMethodName("+")
	for i := range a.Cells {
		v, err := ev.send(ev.rt.asObject(a.Cells[i]), nil, plus, []*Object{ev.rt.asObject(b.Cells[i])}, ast.Position{})
		if err != nil {
			return nil, err
		}
		pin(v)
		cells[i] = v
	}
	return ev.rt.NewMatrix(a.Rows, a.Cols, cells), nil
}

// matrixMultiply multiplies by another matrix or scales by a number.
func matrixMultiply(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	a := matrixOf(self)
	times := config.OperatorMethodName("*")
	plus := config.OperatorMethodName("+")
	other := ev.orNil(args[0])
	var cells []*Object
	defer func() { unpin(cells...) }()

	if !other.template.IsKindOfName(matrixFQ) {
		for _, c := range a.Cells {
			v, err := ev.send(ev.rt.asObject(c), nil, times, []*Object{other}, ast.Position{})
			if err != nil {
				return nil, err
			}
			pin(v)
			cells = append(cells, v)
		}
		return ev.rt.NewMatrix(a.Rows, a.Cols, cells), nil
	}

	b := matrixOf(other)
	if a.Cols != b.Rows {
		return nil, ev.throwNew("InvalidIndexesException", b.String())
	}
	for r := uint32(0); r < a.Rows; r++ {
		for c := uint32(0); c < b.Cols; c++ {
			sum := ev.rt.NewNumberInt(0)
			for k := uint32(0); k < a.Cols; k++ {
				product, err := ev.send(ev.rt.asObject(a.At(r, k)), nil, times, []*Object{ev.rt.asObject(b.At(k, c))}, ast.Position{})
				if err != nil {
					return nil, err
				}
				if sum, err = ev.send(sum, nil, plus, []*Object{product}, ast.Position{}); err != nil {
					return nil, err
				}
			}
			pin(sum)
			cells = append(cells, sum)
		}
	}
	return ev.rt.NewMatrix(a.Rows, b.Cols, cells), nil
}

func matrixTranspose(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	m := matrixOf(self)
	cells := make([]*Object, 0, len(m.Cells))
	for c := uint32(0); c < m.Cols; c++ {
		for r := uint32(0); r < m.Rows; r++ {
			cells = append(cells, ev.rt.asObject(m.At(r, c)))
		}
	}
	return ev.rt.NewMatrix(m.Cols, m.Rows, cells), nil
}

func matrixAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	m := matrixOf(self)
	rows := make([]string, m.Rows)
	for r := uint32(0); r < m.Rows; r++ {
		text, err := ev.joinValues(ev.rt.objects(m.Cells[r*m.Cols:(r+1)*m.Cols]), ", ")
		if err != nil {
			return nil, err
		}
		rows[r] = text
	}
	return ev.rt.NewString("||" + strings.Join(rows, "; ") + "||"), nil
}
