package node

import (
	"errors"
	"math/big"
	"testing"
)

func num(s string) *Number {
	n, ok := ParseNumber(s)
	if !ok {
		panic("bad number " + s)
	}
	return n
}

func sampleNodes() map[string]Node {
	h := NewHash()
	h.Set(num("1"), NewString("one"))
	h.Set(NewString("two"), num("2.5"))
	return map[string]Node{
		"number":   num("4.1"),
		"negative": num("-12345678901234567890"),
		"complex":  NewComplex(big.NewRat(1, 2), big.NewRat(-3, 1)),
		"string":   NewString("hello, world"),
		"empty":    NewString(""),
		"array":    NewArray(num("1"), NewString("x"), nil),
		"list":     NewList(NewString("1+1 is "), num("2")),
		"pair":     NewPair(num("1"), NewString("v")),
		"hash":     h,
		"matrix":   NewMatrix(2, 2, []Node{num("1"), num("2"), num("3"), num("4")}),
		"nested":   NewArray(NewList(NewPair(NewArray(), h))),
	}
}

func TestMarshallRoundTrip(t *testing.T) {
	for name, original := range sampleNodes() {
		t.Run(name, func(t *testing.T) {
			data := Marshall(original)
			decoded, err := Unmarshall(data, nil)
			if err != nil {
				t.Fatalf("Unmarshall: %v", err)
			}
			if decoded.Kind() != original.Kind() {
				t.Fatalf("kind = %s, want %s", decoded.Kind(), original.Kind())
			}
			if got := Compare(original, decoded); got != Equal {
				t.Fatalf("Compare = %s, want EQUAL (%s vs %s)", got, original, decoded)
			}
		})
	}
}

func TestUnmarshallTruncated(t *testing.T) {
	for name, original := range sampleNodes() {
		t.Run(name, func(t *testing.T) {
			data := Marshall(original)
			for n := 0; n < len(data); n++ {
				decoded, err := Unmarshall(data[:n], nil)
				if err == nil {
					t.Fatalf("truncation to %d of %d bytes decoded %v", n, len(data), decoded)
				}
				if !errors.Is(err, ErrUnmarshall) {
					t.Fatalf("error %v does not wrap ErrUnmarshall", err)
				}
			}
		})
	}
}

func TestUnmarshallRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"kind none", []byte{0}},
		{"kind out of range", []byte{byte(KindLast)}},
		{"class without resolver", []byte{byte(KindClass), 0}},
		{"bad bool", []byte{byte(KindPair), NullMarker}},
		{"huge list", []byte{byte(KindArray), 0xFF, 0xFF, 0xFF, 0x0F}},
		{"exponent number", append([]byte{byte(KindNumber), 5}, "1e999"...)},
		{"zero denominator", append([]byte{byte(KindNumber), 3}, "1/0"...)},
		{"matrix shape", []byte{byte(KindMatrix), 2, 2, 1, NullMarker}},
		{"trailing", []byte{NullMarker, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshall(tt.data, nil); err == nil {
				t.Fatalf("Unmarshall(%v) succeeded", tt.data)
			}
		})
	}
}

func TestNullNode(t *testing.T) {
	n, err := Unmarshall([]byte{NullMarker}, nil)
	if err != nil || n != nil {
		t.Fatalf("Unmarshall(null) = %v, %v", n, err)
	}
}

func TestFormatCodes(t *testing.T) {
	e := NewEncoder()
	e.Write("vwiubcXS", uint16(65535), uint32(1<<31), int32(-7), uint8(3), true, byte('q'), "text", testScope{"k"})

	var (
		v  uint16
		w  uint32
		i  int32
		u  uint8
		b  bool
		c  byte
		x  string
		sc testScope
	)
	d := NewDecoder(e.Bytes(), nil)
	if err := d.Read("vwiubcXS", &v, &w, &i, &u, &b, &c, &x, &sc); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != 65535 || w != 1<<31 || i != -7 || u != 3 || !b || c != 'q' || x != "text" || sc.name != "k" {
		t.Fatalf("decoded %v %v %v %v %v %v %q %q", v, w, i, u, b, c, x, sc.name)
	}
	if !d.Done() {
		t.Fatalf("%d bytes left", d.Remaining())
	}
}

type testScope struct{ name string }

func (s testScope) MarshallTo(e *Encoder) { e.Write("X", s.name) }

func (s *testScope) UnmarshallFrom(d *Decoder) error { return d.Read("X", &s.name) }

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Node
		want Ordering
	}{
		{"less", num("1"), num("2"), Less},
		{"greater", num("2.5"), num("2"), Greater},
		{"equal decimal", num("4.1"), num("41/10"), Equal},
		{"kinds differ", num("1"), NewString("1"), Uncomparable},
		{"strings", NewString("a"), NewString("b"), Less},
		{"nil nil", nil, nil, Equal},
		{"nil left", nil, num("1"), Uncomparable},
		{"matrix", NewMatrix(1, 1, []Node{num("1")}), NewMatrix(1, 1, []Node{num("2")}), Uncomparable},
		{"arrays", NewArray(num("1")), NewArray(num("1"), num("2")), Less},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Fatalf("Compare = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCopyDepth(t *testing.T) {
	inner := NewList(num("1"))
	outer := NewArray(inner)

	shallow := outer.Copy(Shallow).(*Array)
	if shallow.Items[0] != inner {
		t.Fatal("shallow copy duplicated a child")
	}
	deep := outer.Copy(Deep).(*Array)
	if deep.Items[0] == inner {
		t.Fatal("deep copy shared a child")
	}
	if !Equals(deep, outer) {
		t.Fatal("deep copy is not structurally equal")
	}
	if deep.Header().Registered() || deep.Header().IsTemplate() {
		t.Fatal("copy is not floating")
	}
}

func TestHashOrderAndKeys(t *testing.T) {
	h := NewHash()
	h.Set(num("3"), NewString("c"))
	h.Set(num("1"), NewString("a"))
	h.Set(num("3.0"), NewString("C"))
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
	if got := h.String(); got != "#Hash(3=>C, 1=>a)" {
		t.Fatalf("String = %q", got)
	}
	if !h.Delete(num("3")) || h.Len() != 1 {
		t.Fatal("Delete failed")
	}
	if v, ok := h.Get(num("1")); !ok || v.String() != "a" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
}

func TestFormatRat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4.1", "4.1"},
		{"4", "4"},
		{"1/3", "0.33333"},
		{"-1/2", "-0.5"},
		{"6/12", "0.5"},
	}
	for _, tt := range tests {
		if got := num(tt.in).Text(5); got != tt.want {
			t.Errorf("Text(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHeader(t *testing.T) {
	var h Header
	if !h.Floating() {
		t.Fatal("zero header should float")
	}
	if !h.Mark() || h.Mark() {
		t.Fatal("Mark should report first marking only")
	}
	h.Unmark()
	h.Retain()
	if h.RefCount() != 1 {
		t.Fatal("Retain did not pin")
	}
	h.Release()
	h.SetTemplate(true)
	if h.Floating() {
		t.Fatal("template should not float")
	}
}

func FuzzUnmarshall(f *testing.F) {
	for _, n := range sampleNodes() {
		f.Add(Marshall(n))
	}
	for k := KindNone; k <= KindLast; k++ {
		f.Add([]byte{byte(k), 1, 2, 3})
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		n, err := Unmarshall(data, nil)
		if err == nil && n != nil {
			// a decoded node must survive another round trip
			if _, err := Unmarshall(Marshall(n), nil); err != nil {
				t.Fatalf("re-unmarshall: %v", err)
			}
		}
	})
}
