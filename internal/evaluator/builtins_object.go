package evaluator

import (
	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

var (
	metaArg   = []string{""}
	stringArg = []string{stringFQ}
	symbolArg = []string{symbolFQ}
)

func objectDefinition() *Definition {
	return &Definition{
		Package: config.CorePackage,
		Name:    config.ObjectClassName,
		Methods: []MethodSpec{
			{Name: config.InitMethodName, Native: objectInit},
			{Name: config.AsStringMethodName, Native: objectAsString},
			{Name: config.DescribeMethodName, Native: objectDescription},
			{Name: config.EqualsMethodName, Native: objectEquals},
			{Name: config.OperatorMethodName("<"), Native: objectOrdering(node.Less, false)},
			{Name: config.OperatorMethodName("<="), Native: objectOrdering(node.Less, true)},
			{Name: config.OperatorMethodName(">"), Native: objectOrdering(node.Greater, false)},
			{Name: config.OperatorMethodName(">="), Native: objectOrdering(node.Greater, true)},
			{Name: config.HashMethodName, Native: objectHash},
			{Name: "className", Native: objectClassName},
			{Name: "class", Native: objectClass},
			{Name: "isKindOf:", Native: objectIsKindOf, Signature: metaArg},
			{Name: "respondsTo:", Native: objectRespondsTo, Signature: symbolArg},
			{Name: "copy", Native: objectCopy},
			{Name: config.MarshallMethodName, Native: objectMarshall},
		},
		MetaMethods: []MethodSpec{
			{Name: "new", Native: objectNew},
			{Name: "name", Native: objectClassName},
			{Name: "instance", Native: objectSingleton},
			{Name: config.UnmarshallMethodName, Native: objectUnmarshall, Signature: stringArg},
		},
	}
}

func objectInit(_ *Evaluator, self *Object, _ []*Object) (*Object, error) { return self, nil }

func objectAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	if !self.isObject {
		return ev.rt.NewString(self.template.FullName()), nil
	}
	return ev.rt.NewString("#" + self.template.ShortName()), nil
}

func objectDescription(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	text, err := ev.stringValue(self)
	if err != nil {
		return nil, err
	}
	return ev.rt.NewString(text), nil
}

// objectEquals compares through compare: when the class defines one,
// structurally otherwise.
func objectEquals(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	other := ev.orNil(args[0])
	if self == other {
		return ev.rt.yes, nil
	}
	if self.template.RespondsTo(config.CompareMethodName, !self.isObject) {
		o, err := ev.Compare(self, other)
		if err != nil {
			return nil, err
		}
		return ev.rt.Bool(o == node.Equal), nil
	}
	return ev.rt.Bool(node.Equals(self, other)), nil
}

func objectOrdering(want node.Ordering, orEqual bool) NativeFunc {
	return func(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
		o, err := ev.Compare(self, ev.orNil(args[0]))
		if err != nil {
			return nil, err
		}
		return ev.rt.Bool(o == want || (orEqual && o == node.Equal)), nil
	}
}

func objectHash(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewString(self.HashKey()), nil
}

func objectClassName(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewString(self.template.FullName()), nil
}

func objectClass(_ *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return self.template.metaObject, nil
}

func objectIsKindOf(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	class := ev.orNil(args[0])
	if class.isObject {
		return nil, ev.throwNew("NeedMetaClassException", class.template.ShortName())
	}
	return ev.rt.Bool(self.template.IsKindOf(class.template)), nil
}

func objectRespondsTo(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	return ev.rt.Bool(self.template.RespondsTo(symbolName(args[0]), !self.isObject)), nil
}

func objectCopy(_ *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return self.Copy(node.Deep).(*Object), nil
}

func objectMarshall(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.rt.NewString(string(Marshall(self))), nil
}

func objectNew(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.newInstance(self.template, ast.Position{})
}

func objectSingleton(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	if self.template.singleton == nil {
		return nil, ev.throwNew("UnidentifiedMethodException", self.template.ShortName(), "instance")
	}
	return self.template.singleton, nil
}

func objectUnmarshall(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	data, _ := ev.stringOf(args[0])
	o, err := ev.rt.Unmarshall([]byte(data))
	if err != nil {
		return nil, err
	}
	if !o.template.IsKindOf(self.template) {
		return nil, ev.throwNew("InvalidCastException", o.template.ShortName(), self.template.ShortName())
	}
	return o, nil
}

// Nil, Yes and No are singletons; yes and no are the only values if
// and while accept.
func constantDefinition(name, text string, extra ...MethodSpec) *Definition {
	asString := func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
		return ev.rt.NewString(text), nil
	}
	return &Definition{
		Package: config.CorePackage,
		Name:    name,
		Super:   objectFQ,
		Flags:   ast.ClassSingleton,
		Methods: append([]MethodSpec{
			{Name: config.AsStringMethodName, Native: asString},
			{Name: config.DescribeMethodName, Native: asString},
		}, extra...),
	}
}

func nilDefinition() *Definition { return constantDefinition(config.NilClassName, "nil") }

func yesDefinition() *Definition {
	return constantDefinition(config.YesClassName, "yes",
		MethodSpec{Name: config.NotMethodName, Native: func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
			return ev.rt.no, nil
		}})
}

func noDefinition() *Definition {
	return constantDefinition(config.NoClassName, "no",
		MethodSpec{Name: config.NotMethodName, Native: func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
			return ev.rt.yes, nil
		}})
}
