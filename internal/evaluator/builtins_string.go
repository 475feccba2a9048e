package evaluator

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

func stringDefinition() *Definition {
	return &Definition{
		Package: config.CorePackage,
		Name:    config.StringClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NewString("")
			}
		},
		CheckAux: func(aux node.Node, uninitialized bool) bool {
			switch aux.(type) {
			case *node.String:
				return true
			case *node.List:
				// interpolation parts
				return uninitialized
			}
			return false
		},
		Hash:     auxHash,
		Evaluate: evaluateString,
		Methods: []MethodSpec{
			{Name: config.OperatorMethodName("+"), Native: stringConcat},
			{Name: config.EqualsMethodName, Native: stringEquals},
			{Name: config.CompareMethodName, Native: stringCompare, Signature: stringArg},
			{Name: config.IndexMethodName, Native: stringIndex},
			{Name: config.AsStringMethodName, Native: objectInit},
			{Name: config.DescribeMethodName, Native: stringDescription},
			{Name: "length", Native: stringLength},
			{Name: "asSymbol", Native: stringAsSymbol},
			{Name: "asNumber", Native: stringAsNumber},
			{Name: "contains:", Native: stringContains},
			{Name: "upperCase", Native: stringMap(strings.ToUpper)},
			{Name: "lowerCase", Native: stringMap(strings.ToLower)},
			{Name: "trim", Native: stringMap(strings.TrimSpace)},
			{Name: "split:", Native: stringSplit, Signature: stringArg},
		},
	}
}

// evaluateString builds an interpolated string from its parts. Text
// parts are copied as they are; expressions are converted with asString.
func evaluateString(ev *Evaluator, literal *Object) (*Object, error) {
	parts, ok := literal.aux.(*node.List)
	if !ok {
		return literal, nil
	}
	var b strings.Builder
	for _, part := range parts.Items {
		if s, ok := part.(*node.String); ok {
			b.WriteString(s.Value)
			continue
		}
		value, err := ev.eval(part)
		if err != nil {
			return nil, err
		}
		text, err := ev.stringValue(value)
		if err != nil {
			return nil, err
		}
		b.WriteString(text)
	}
	return ev.rt.NewString(b.String()), nil
}

func (ev *Evaluator) text(o *Object) string {
	s, _ := ev.stringOf(o)
	return s
}

func stringConcat(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	other, err := ev.stringValue(args[0])
	if err != nil {
		return nil, err
	}
	return ev.rt.NewString(ev.text(self) + other), nil
}

func stringEquals(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	other, ok := ev.stringOf(args[0])
	return ev.rt.Bool(ok && other == ev.text(self)), nil
}

func stringCompare(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	return ev.orderingSymbol(node.Ordering(strings.Compare(ev.text(self), ev.text(args[0])))), nil
}

func stringIndex(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	i, err := ev.smallInt(args[0])
	if err != nil {
		return nil, err
	}
	runes := []rune(ev.text(self))
	if i < 0 || i >= len(runes) {
		return nil, ev.throwNew("IndexOutOfBoundsException", i)
	}
	return ev.rt.NewString(string(runes[i])), nil
}

func stringDescription(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewString(strconv.Quote(ev.text(self))), nil
}

func stringLength(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewNumberInt(int64(utf8.RuneCountInString(ev.text(self)))), nil
}

func stringAsSymbol(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.Symbol(ev.text(self)), nil
}

func stringAsNumber(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	n, ok := node.ParseNumber(strings.TrimSpace(ev.text(self)))
	if !ok {
		return nil, ev.throwNew("InvalidCastException", config.StringClassName, config.NumberClassName)
	}
	return ev.rt.NewNumber(n.Rat()), nil
}

func stringContains(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	other, err := ev.stringValue(args[0])
	if err != nil {
		return nil, err
	}
	return ev.rt.Bool(strings.Contains(ev.text(self), other)), nil
}

func stringMap(fn func(string) string) NativeFunc {
	return func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
		return ev.rt.NewString(fn(ev.text(self))), nil
	}
}

func stringSplit(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	fields := strings.Split(ev.text(self), ev.text(args[0]))
	items := make([]*Object, len(fields))
	for i, f := range fields {
		items[i] = ev.rt.NewString(f)
	}
	return ev.rt.NewArray(items...), nil
}

// Symbols are interned: decoding one returns the runtime's instance.
func symbolDefinition() *Definition {
	return &Definition{
		Package: config.CorePackage,
		Name:    config.SymbolClassName,
		Super:   objectFQ,
		Shared:  true,
		Hash:    func(o *Object) string { return "Y:" + symbolName(o) },
		Resolve: func(rt *Runtime, o *Object) (*Object, error) {
			name, ok := o.aux.(*node.String)
			if !ok {
				return nil, errMissingAux(config.SymbolClassName)
			}
			return rt.Symbol(name.Value), nil
		},
		Methods: []MethodSpec{
			{Name: config.AsStringMethodName, Native: symbolAsString},
			{Name: config.DescribeMethodName, Native: symbolAsString},
			{Name: "name", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				return ev.rt.NewString(symbolName(self)), nil
			}},
		},
	}
}

func symbolName(o *Object) string {
	name, _ := auxOf[*node.String](o)
	if name == nil {
		return ""
	}
	return name.Value
}

func symbolAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewString("#" + symbolName(self)), nil
}
