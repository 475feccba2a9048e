package node

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// NullMarker is written in place of a nil node.
const NullMarker byte = 0xFF

// MaxUnmarshallDepth bounds node nesting while decoding.
const MaxUnmarshallDepth = 512

// ErrUnmarshall is wrapped by every decoding failure.
var ErrUnmarshall = errors.New("unmarshall failure")

// Marshaller is implemented by non-node values written with the 'S'
// format code.
type Marshaller interface {
	MarshallTo(e *Encoder)
}

// Unmarshaller is the decoding counterpart of Marshaller.
type Unmarshaller interface {
	UnmarshallFrom(d *Decoder) error
}

// ClassResolver decodes class instances. Class templates live in the
// runtime, so the node layer delegates KindClass payloads to it.
type ClassResolver interface {
	UnmarshallClass(d *Decoder) (Node, error)
}

// UnmarshallFunc decodes the payload following a kind tag.
type UnmarshallFunc func(d *Decoder) (Node, error)

var (
	registryMu    sync.RWMutex
	unmarshallers [KindLast]UnmarshallFunc
)

// RegisterUnmarshaller installs the decoder for kind.
func RegisterUnmarshaller(kind Kind, fn UnmarshallFunc) {
	Assert(kind > KindNone && kind < KindLast, "register unmarshaller for %s", kind)
	registryMu.Lock()
	unmarshallers[kind] = fn
	registryMu.Unlock()
}

func init() {
	RegisterUnmarshaller(KindNumber, unmarshallNumber)
	RegisterUnmarshaller(KindComplex, unmarshallComplex)
	RegisterUnmarshaller(KindMatrix, unmarshallMatrix)
	RegisterUnmarshaller(KindArray, unmarshallArray)
	RegisterUnmarshaller(KindHash, unmarshallHash)
	RegisterUnmarshaller(KindList, unmarshallList)
	RegisterUnmarshaller(KindPair, unmarshallPair)
	RegisterUnmarshaller(KindString, unmarshallString)
}

// Marshall serializes n into a fresh byte slice.
func Marshall(n Node) []byte {
	e := NewEncoder()
	e.WriteNode(n)
	return e.Bytes()
}

// Unmarshall decodes exactly one node from data. Truncated, ill-typed
// or trailing input fails with an error wrapping ErrUnmarshall.
func Unmarshall(data []byte, classes ClassResolver) (Node, error) {
	d := NewDecoder(data, classes)
	n, err := d.ReadNode()
	if err != nil {
		return nil, err
	}
	if !d.Done() {
		return nil, d.errorf("%d trailing bytes", d.Remaining())
	}
	return n, nil
}

// Encoder accumulates the binary form of a node graph.
//
// Format codes accepted by Write:
//
//	n  Node (nil allowed)     l  []Node
//	a  *Array                 h  *Hash
//	p  *Pair                  m  *Matrix
//	N  *Number                g  graph data Node
//	v  uint16                 w  uint32
//	i  int32                  u  uint8
//	b  bool                   c  byte
//	X  string                 s  string
//	S  Marshaller
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) Len() int { return len(e.buf) }

// WriteNode appends n or the null marker.
func (e *Encoder) WriteNode(n Node) {
	if n == nil {
		e.buf = append(e.buf, NullMarker)
		return
	}
	n.Marshall(e)
}

// Write appends args according to format. A mismatch between a code
// and its argument is a programming error and panics.
func (e *Encoder) Write(format string, args ...any) {
	Assert(len(format) == len(args), "marshall format %q with %d args", format, len(args))
	for i := 0; i < len(format); i++ {
		arg := args[i]
		switch format[i] {
		case 'n', 'a', 'h', 'p', 'm', 'N', 'g':
			e.WriteNode(asNode(arg))
		case 'l':
			items, ok := arg.([]Node)
			Assert(ok, "format 'l' needs []Node, got %T", arg)
			e.buf = protowire.AppendVarint(e.buf, uint64(len(items)))
			for _, item := range items {
				e.WriteNode(item)
			}
		case 'v':
			e.buf = protowire.AppendVarint(e.buf, uint64(arg.(uint16)))
		case 'w':
			e.buf = protowire.AppendVarint(e.buf, uint64(arg.(uint32)))
		case 'i':
			e.buf = protowire.AppendVarint(e.buf, protowire.EncodeZigZag(int64(arg.(int32))))
		case 'u':
			e.buf = append(e.buf, arg.(uint8))
		case 'c':
			e.buf = append(e.buf, arg.(byte))
		case 'b':
			if arg.(bool) {
				e.buf = append(e.buf, 1)
			} else {
				e.buf = append(e.buf, 0)
			}
		case 'X', 's':
			e.buf = protowire.AppendString(e.buf, arg.(string))
		case 'S':
			m, ok := arg.(Marshaller)
			Assert(ok, "format 'S' needs a Marshaller, got %T", arg)
			m.MarshallTo(e)
		default:
			Assert(false, "unknown marshall format code %q", format[i])
		}
	}
}

// asNode converts typed nil pointers to a nil Node.
func asNode(arg any) Node {
	switch v := arg.(type) {
	case nil:
		return nil
	case *Array:
		if v == nil {
			return nil
		}
	case *Hash:
		if v == nil {
			return nil
		}
	case *Pair:
		if v == nil {
			return nil
		}
	case *Matrix:
		if v == nil {
			return nil
		}
	case *Number:
		if v == nil {
			return nil
		}
	}
	n, ok := arg.(Node)
	Assert(ok, "marshall format needs a Node, got %T", arg)
	return n
}

// Decoder reads a byte stream written by Encoder. It never panics on
// malformed input.
type Decoder struct {
	buf     []byte
	off     int
	depth   int
	Classes ClassResolver
}

func NewDecoder(data []byte, classes ClassResolver) *Decoder {
	return &Decoder{buf: data, Classes: classes}
}

func (d *Decoder) Done() bool     { return d.off >= len(d.buf) }
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrUnmarshall, d.off, fmt.Sprintf(format, args...))
}

// Errorf builds a decoding error for use by payload decoders outside
// this package.
func (d *Decoder) Errorf(format string, args ...any) error {
	return d.errorf(format, args...)
}

func (d *Decoder) byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, d.errorf("unexpected end of stream")
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *Decoder) varint() (uint64, error) {
	v, n := protowire.ConsumeVarint(d.buf[d.off:])
	if n < 0 {
		return 0, d.errorf("bad varint: %v", protowire.ParseError(n))
	}
	d.off += n
	return v, nil
}

// PeekByte returns the next byte without consuming it.
func (d *Decoder) PeekByte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, d.errorf("unexpected end of stream")
	}
	return d.buf[d.off], nil
}

// ReadNode decodes one node or a null marker.
func (d *Decoder) ReadNode() (Node, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	if tag == NullMarker {
		return nil, nil
	}
	kind := Kind(tag)
	if kind == KindNone || kind >= KindLast {
		return nil, d.errorf("invalid node kind %d", tag)
	}
	if d.depth >= MaxUnmarshallDepth {
		return nil, d.errorf("nesting deeper than %d", MaxUnmarshallDepth)
	}
	d.depth++
	defer func() { d.depth-- }()

	if kind == KindClass {
		if d.Classes == nil {
			return nil, d.errorf("class instance without a class resolver")
		}
		return d.Classes.UnmarshallClass(d)
	}
	registryMu.RLock()
	fn := unmarshallers[kind]
	registryMu.RUnlock()
	if fn == nil {
		return nil, d.errorf("no unmarshaller for %s", kind)
	}
	return fn(d)
}

// readKind decodes a node and checks its kind. Nil passes.
func (d *Decoder) readKind(want Kind) (Node, error) {
	n, err := d.ReadNode()
	if err != nil || n == nil {
		return n, err
	}
	if n.Kind() != want {
		return nil, d.errorf("expected %s, got %s", want, n.Kind())
	}
	return n, nil
}

// Read decodes values into the pointers in args according to format.
// See Encoder for the format codes.
func (d *Decoder) Read(format string, args ...any) error {
	if len(format) != len(args) {
		return d.errorf("format %q with %d args", format, len(args))
	}
	for i := 0; i < len(format); i++ {
		if err := d.readOne(format[i], args[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) readOne(code byte, arg any) error {
	switch code {
	case 'n':
		n, err := d.ReadNode()
		if err != nil {
			return err
		}
		*arg.(*Node) = n
	case 'g':
		n, err := d.readKind(KindGraphData)
		if err != nil {
			return err
		}
		*arg.(*Node) = n
	case 'a':
		n, err := d.readKind(KindArray)
		if err != nil {
			return err
		}
		if n != nil {
			*arg.(**Array) = n.(*Array)
		}
	case 'h':
		n, err := d.readKind(KindHash)
		if err != nil {
			return err
		}
		if n != nil {
			*arg.(**Hash) = n.(*Hash)
		}
	case 'p':
		n, err := d.readKind(KindPair)
		if err != nil {
			return err
		}
		if n != nil {
			*arg.(**Pair) = n.(*Pair)
		}
	case 'm':
		n, err := d.readKind(KindMatrix)
		if err != nil {
			return err
		}
		if n != nil {
			*arg.(**Matrix) = n.(*Matrix)
		}
	case 'N':
		n, err := d.readKind(KindNumber)
		if err != nil {
			return err
		}
		if n != nil {
			*arg.(**Number) = n.(*Number)
		}
	case 'l':
		count, err := d.varint()
		if err != nil {
			return err
		}
		// every element takes at least one byte
		if count > uint64(d.Remaining()) {
			return d.errorf("list of %d elements with %d bytes left", count, d.Remaining())
		}
		items := make([]Node, 0, count)
		for j := uint64(0); j < count; j++ {
			n, err := d.ReadNode()
			if err != nil {
				return err
			}
			items = append(items, n)
		}
		*arg.(*[]Node) = items
	case 'v':
		v, err := d.varint()
		if err != nil {
			return err
		}
		if v > 0xFFFF {
			return d.errorf("uint16 overflow: %d", v)
		}
		*arg.(*uint16) = uint16(v)
	case 'w':
		v, err := d.varint()
		if err != nil {
			return err
		}
		if v > 0xFFFFFFFF {
			return d.errorf("uint32 overflow: %d", v)
		}
		*arg.(*uint32) = uint32(v)
	case 'i':
		v, err := d.varint()
		if err != nil {
			return err
		}
		z := protowire.DecodeZigZag(v)
		if z < -1<<31 || z > 1<<31-1 {
			return d.errorf("int32 overflow: %d", z)
		}
		*arg.(*int32) = int32(z)
	case 'u', 'c':
		b, err := d.byte()
		if err != nil {
			return err
		}
		*arg.(*uint8) = b
	case 'b':
		b, err := d.byte()
		if err != nil {
			return err
		}
		if b > 1 {
			return d.errorf("invalid bool byte %d", b)
		}
		*arg.(*bool) = b == 1
	case 'X', 's':
		v, n := protowire.ConsumeString(d.buf[d.off:])
		if n < 0 {
			return d.errorf("bad string: %v", protowire.ParseError(n))
		}
		d.off += n
		*arg.(*string) = v
	case 'S':
		u, ok := arg.(Unmarshaller)
		if !ok {
			return d.errorf("format 'S' needs an Unmarshaller, got %T", arg)
		}
		return u.UnmarshallFrom(d)
	default:
		return d.errorf("unknown format code %q", code)
	}
	return nil
}
