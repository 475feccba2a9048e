package scope

import "strings"

// Flags describe a binding: its visibility, mutability, and for methods
// the locking and scoping rules applied when it is called.
type Flags uint32

const (
	Method Flags = 1 << iota
	Object
	Instance
	Meta
	Protected
	Public
	Constant
	Global
	Reader
	Writer
	Breakthrough
	Synchronized
	SynchronizedRead
	SynchronizedWrite
	ContainerLoop
	ModifiesContainer
	Const
	NoCast
	Getter

	// Local is the absence of Global.
	Local Flags = 0
	// NoFlags is the zero value, for readability at call sites.
	NoFlags Flags = 0
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Method, "METHOD"},
	{Object, "OBJECT"},
	{Instance, "INSTANCE"},
	{Meta, "META"},
	{Protected, "PROTECTED"},
	{Public, "PUBLIC"},
	{Constant, "CONSTANT"},
	{Global, "GLOBAL"},
	{Reader, "READER"},
	{Writer, "WRITER"},
	{Breakthrough, "BREAKTHROUGH"},
	{Synchronized, "SYNCHRONIZED"},
	{SynchronizedRead, "SYNCHRONIZED_READ"},
	{SynchronizedWrite, "SYNCHRONIZED_WRITE"},
	{ContainerLoop, "CONTAINER_LOOP"},
	{ModifiesContainer, "MODIFIES_CONTAINER"},
	{Const, "CONST"},
	{NoCast, "NO_CAST"},
	{Getter, "GETTER"},
}

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

// Any reports whether any bit of mask is set.
func (f Flags) Any(mask Flags) bool { return f&mask != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "LOCAL"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
