package config

// Version is reported by `taffy --version`.
const Version = "2.73.0-go"

const SourceFileExt = ".ty"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".ty", ".taffy"}

// Package names
const (
	CorePackage      = "org.taffy.core"
	ExceptionPackage = "org.taffy.core.exception"
	MathsPackage     = "org.taffy.core.maths"
	ContainerPackage = "org.taffy.core.container"
	ThreadingPackage = "org.taffy.core.threading"
	IOPackage        = "org.taffy.core.io"
)

// Built-in class names
const (
	ObjectClassName        = "Object"
	NilClassName           = "Nil"
	YesClassName           = "Yes"
	NoClassName            = "No"
	NumberClassName        = "Number"
	ComplexNumberClassName = "ComplexNumber"
	StringClassName        = "String"
	SymbolClassName        = "Symbol"
	ArrayClassName         = "Array"
	ListClassName          = "List"
	HashClassName          = "Hash"
	PairClassName          = "Pair"
	MatrixClassName        = "Matrix"
	ProcedureClassName     = "Procedure"
	BlockClassName         = "Block"
	FunctionClassName      = "Function"
	MutexClassName         = "Mutex"
	FutureClassName        = "Future"
	ThreadClassName        = "Thread"
	ConditionClassName     = "Condition"
	IOClassName            = "IO"
	KernelClassName        = "Kernel"
	StoreClassName         = "Store"
	ExceptionClassName     = "Exception"
)

// Singleton object names bound in the global scope
const (
	IOObjectName     = "io"
	KernelObjectName = "kernel"
)

// Well-known method names
const (
	InitMethodName       = "init"
	AsStringMethodName   = "asString"
	DescribeMethodName   = "description"
	CompareMethodName    = "compare:"
	HashMethodName       = "hash"
	EqualsMethodName     = "#operator(==):"
	CallMethodName       = "#operator(()):"
	IndexMethodName      = "#operator([]):"
	IndexSetMethodName   = "#operator([]=):"
	IncrementMethodName  = "#operator(++)"
	DecrementMethodName  = "#operator(--)"
	FactorialMethodName  = "#operator(!)"
	NegateMethodName     = "#prefixOperator(-)"
	NotMethodName        = "#prefixOperator(!)"
	BitNotMethodName     = "#prefixOperator(~)"
	ValueMethodName      = "value"
	ValueWithMethodName  = "valueWithArguments:"
	WaitForValueName     = "waitForValue"
	MarshallMethodName   = "marshall"
	UnmarshallMethodName = "unmarshall:"
)

// OperatorMethodName returns the binary operator method name for symbol,
// for example "#operator(+):".
func OperatorMethodName(symbol string) string {
	return "#operator(" + symbol + "):"
}

// PrefixOperatorMethodName returns "#prefixOperator(<symbol>)".
func PrefixOperatorMethodName(symbol string) string {
	return "#prefixOperator(" + symbol + ")"
}

// PostfixOperatorMethodName returns "#operator(<symbol>)".
func PostfixOperatorMethodName(symbol string) string {
	return "#operator(" + symbol + ")"
}

// QualifiedName joins a package and a class name.
func QualifiedName(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

// Evaluator defaults, overridable from taffy.yaml
const (
	DefaultMaxStackDepth    = 2000
	DefaultGCThreshold      = 4096
	DefaultGCGrowth         = 1.7
	DefaultFutureMaxThreads = 16
	DefaultNumberPrecision  = 20
	DefaultLogLevel         = "warn"
)
