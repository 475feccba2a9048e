package evaluator

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

// Exception carries a thrown Taffy object through Go error returns.
type Exception struct {
	Object    *Object
	Backtrace []CallFrame
}

func (e *Exception) Error() string {
	name := e.Object.template.ShortName()
	if msg := exceptionMessage(e.Object); msg != "" {
		return name + ": " + msg
	}
	return name
}

// ClassName returns the fully qualified class of the thrown object.
func (e *Exception) ClassName() string { return e.Object.template.FullName() }

// Field returns the value bound to an exception field such as
// "objectName", or nil.
func (e *Exception) Field(name string) *Object {
	v, _ := fieldOf(e.Object, name)
	return v
}

// FieldString returns a String field's text.
func (e *Exception) FieldString(name string) string {
	if v := e.Field(name); v != nil {
		return v.String()
	}
	return ""
}

// ReturnSignal unwinds to the nearest procedure or block with a value.
type ReturnSignal struct {
	Value *Object
}

func (r *ReturnSignal) Error() string { return "return outside of a procedure" }

// ErrExit is returned when a program runs `exit`.
var ErrExit = errors.New("exit")

var errBreak = errors.New("break outside of a loop")

// isControl reports whether err is one of the evaluator's own control
// values rather than a host failure.
func isControl(err error) bool {
	var ex *Exception
	var ret *ReturnSignal
	return errors.As(err, &ex) || errors.As(err, &ret) || errors.Is(err, errBreak) || errors.Is(err, ErrExit)
}

// exceptionSpec lists the fields an exception class carries and the
// message built from them. {name} is replaced by the field's text.
type exceptionSpec struct {
	name    string
	fields  []string
	message string
}

var exceptionSpecs = []exceptionSpec{
	{"InvalidCastException", []string{"from", "to"}, "invalid cast from {from} to {to}"},
	{"NeedIntegerException", []string{"value"}, "need an integer, got {value}"},
	{"NeedDoubleException", []string{"value"}, "need a double, got {value}"},
	{"NeedByteException", []string{"value"}, "need a byte, got {value}"},
	{"NeedPositiveIntegerException", []string{"value"}, "need a positive integer, got {value}"},
	{"InvalidIndexesException", []string{"value"}, "invalid indexes {value}"},
	{"IndexOutOfBoundsException", []string{"index"}, "index {index} out of bounds"},
	{"InvalidComparisonResultException", []string{"value"}, "invalid comparison result {value}"},
	{"UnidentifiedMethodException", []string{"exceptionClassName", "exceptionMethodName"},
		"unidentified method '{exceptionMethodName}' for class '{exceptionClassName}'"},
	{"UnidentifiedClassException", []string{"className"}, "unidentified class '{className}'"},
	{"UnidentifiedObjectException", []string{"objectName"}, "unidentified object '{objectName}'"},
	{"InvalidSuperClassException", []string{"superName"}, "invalid super class '{superName}'"},
	{"AbstractClassInstantiationException", []string{"objectName"}, "cannot instantiate abstract class '{objectName}'"},
	{"SingletonInstantiationException", []string{"className"}, "cannot instantiate singleton class '{className}'"},
	{"NeedMetaClassException", []string{"className"}, "need a class, got an instance of '{className}'"},
	{"InvalidNumberArgumentsException", []string{"expected", "given"}, "expected {expected} arguments, given {given}"},
	{"DeadlockException", nil, "deadlock"},
	{"InvalidSynchronizerException", []string{"value"}, "cannot synchronize on {value}"},
	{"BlockNotSingularException", nil, "block is not singular"},
	{"UnmarshallFailureException", []string{"reason"}, "unmarshall failure: {reason}"},
	{"InvalidMarshalledDataException", []string{"reason"}, "invalid marshalled data: {reason}"},
	{"FileOpenException", []string{"filename"}, "cannot open '{filename}'"},
	{"FileWriteException", []string{"filename"}, "cannot write '{filename}'"},
	{"LibraryOpenException", []string{"libraryName"}, "cannot open library '{libraryName}'"},
	{"SocketSendFailureException", nil, "socket send failure"},
	{"ReturnWithNoCallStackException", nil, "return with no call stack"},
	{"BreakWithoutALoopException", nil, "break without a loop"},
	{"OperationOnFunctionOfNoArgumentsException", []string{"functionName"}, "function '{functionName}' takes no arguments"},
	{"DivideByZeroException", nil, "divide by zero"},
	{"PrecisionTooSmallException", []string{"value"}, "precision {value} too small"},
	{"ConstantRedefinitionException", []string{"identifierName"}, "constant '{identifierName}' cannot be redefined"},
	{"NonConstantUseOfConstantException", []string{"identifierName"}, "non-constant use of constant '{identifierName}'"},
	{"StackOverflowException", nil, "stack overflow"},
	{"ParseFailureException", []string{"reason"}, "{reason}"},
	{"AssertFailedException", []string{"value"}, "assertion failed: {value}"},
	{"RuntimeException", []string{"reason"}, "{reason}"},
}

func exceptionDefinitions() []*Definition {
	root := &Definition{
		Package: config.ExceptionPackage,
		Name:    config.ExceptionClassName,
		Super:   objectFQ,
		Methods: []MethodSpec{
			{Name: "message", Native: fieldReader("message")},
			{Name: "setMessage:", Native: exceptionSetMessage},
			{Name: config.AsStringMethodName, Native: exceptionAsString},
			{Name: config.DescribeMethodName, Native: exceptionAsString},
		},
		Initialize: func(rt *Runtime, t *ClassTemplate) error {
			return t.defaults.Set("message", nil, 0)
		},
	}
	defs := []*Definition{root}
	for _, spec := range exceptionSpecs {
		spec := spec
		def := &Definition{
			Package: config.ExceptionPackage,
			Name:    spec.name,
			Super:   exceptionFQ,
			Initialize: func(rt *Runtime, t *ClassTemplate) error {
				for _, f := range spec.fields {
					if err := t.defaults.Set(f, nil, 0); err != nil {
						return err
					}
				}
				return nil
			},
		}
		for _, f := range spec.fields {
			def.Methods = append(def.Methods, MethodSpec{Name: f, Native: fieldReader(f)})
		}
		defs = append(defs, def)
	}
	return defs
}

var exceptionFQ = config.QualifiedName(config.ExceptionPackage, config.ExceptionClassName)

func exceptionSpecFor(name string) (exceptionSpec, bool) {
	for _, s := range exceptionSpecs {
		if s.name == name {
			return s, true
		}
	}
	return exceptionSpec{}, false
}

// fieldOf finds a variable along o's chain.
func fieldOf(o *Object, name string) (*Object, bool) {
	for level := o; level != nil; level = level.super {
		if level.scope == nil {
			continue
		}
		if d, ok := level.scope.Lookup(name); ok {
			v, _ := d.Value.(*Object)
			return v, true
		}
	}
	return nil, false
}

func setField(o *Object, name string, value *Object) bool {
	for level := o; level != nil; level = level.super {
		if level.scope == nil {
			continue
		}
		if level.scope.Has(name) {
			level.scope.Set(name, value, 0)
			return true
		}
	}
	return false
}

func fieldReader(name string) NativeFunc {
	return func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
		v, _ := fieldOf(self, name)
		return ev.orNil(v), nil
	}
}

func exceptionMessage(o *Object) string {
	v, _ := fieldOf(o, "message")
	if v == nil {
		return ""
	}
	if s, ok := auxOf[*node.String](v); ok {
		return s.Value
	}
	return v.String()
}

func exceptionSetMessage(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	setField(self, "message", args[0])
	return self, nil
}

func exceptionAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	text := self.template.ShortName()
	if msg := exceptionMessage(self); msg != "" {
		text += ": " + msg
	}
	return ev.rt.NewString(text), nil
}

// newException instantiates the named exception class and fills in its
// fields. Values may be strings, integers, *big.Rat or objects.
func (ev *Evaluator) newException(name string, values ...any) *Object {
	t := ev.rt.Template(config.QualifiedName(config.ExceptionPackage, name))
	node.Assert(t != nil, "unknown exception %s", name)
	o := t.instantiate()
	spec, _ := exceptionSpecFor(name)
	texts := make(map[string]string, len(spec.fields))
	for i, f := range spec.fields {
		if i >= len(values) {
			break
		}
		v := ev.toObject(values[i])
		setField(o, f, v)
		texts[f] = ev.displayString(v)
	}
	msg := spec.message
	for f, text := range texts {
		msg = strings.ReplaceAll(msg, "{"+f+"}", text)
	}
	setField(o, "message", ev.rt.NewString(msg))
	return o
}

// throw builds the error for a thrown object, capturing the backtrace.
func (ev *Evaluator) throw(o *Object) error {
	frames := make([]CallFrame, len(ev.CallStack))
	copy(frames, ev.CallStack)
	return &Exception{Object: o, Backtrace: frames}
}

// throwNew throws a builtin exception by its short class name.
func (ev *Evaluator) throwNew(name string, values ...any) error {
	return ev.throw(ev.newException(name, values...))
}

func (ev *Evaluator) toObject(v any) *Object {
	switch v := v.(type) {
	case nil:
		return ev.rt.nilObject
	case *Object:
		return ev.orNil(v)
	case string:
		return ev.rt.NewString(v)
	case int:
		return ev.rt.NewNumberInt(int64(v))
	case int64:
		return ev.rt.NewNumberInt(v)
	case *big.Rat:
		return ev.rt.NewNumber(v)
	case error:
		return ev.rt.NewString(v.Error())
	}
	return ev.rt.NewString(fmt.Sprint(v))
}

// displayString is the text used inside exception messages: strings
// unquoted, everything else by its node form.
func (ev *Evaluator) displayString(o *Object) string {
	if o == nil || o == ev.rt.nilObject {
		return "nil"
	}
	if s, ok := auxOf[*node.String](o); ok {
		return s.Value
	}
	return o.String()
}

// wrapError turns host errors returned by natives into RuntimeException.
func (ev *Evaluator) wrapError(err error) error {
	if err == nil || isControl(err) {
		return err
	}
	if errors.Is(err, node.ErrUnmarshall) {
		return ev.throwNew("UnmarshallFailureException", err.Error())
	}
	return ev.throwNew("RuntimeException", err.Error())
}

// FormatBacktrace renders frames innermost first.
func FormatBacktrace(frames []CallFrame) string {
	var b strings.Builder
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		b.WriteString("  at ")
		b.WriteString(f.Name)
		if f.File != "" || f.Line > 0 {
			fmt.Fprintf(&b, " (%s:%d)", f.File, f.Line)
		}
		b.WriteString("\n")
	}
	return b.String()
}
