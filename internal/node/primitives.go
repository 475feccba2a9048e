package node

import (
	"math/big"
	"strings"
	"sync"
)

// DefaultPrecision is the number of fractional digits used when a
// non-integral Number is printed.
var DefaultPrecision = 20

// Number is an arbitrary precision rational. Operations that mutate a
// Number in place (+=, ++) go through Update so concurrent evaluators
// never observe a torn value.
type Number struct {
	hdr Header
	mu  sync.RWMutex
	val big.Rat
}

func NewNumber(r *big.Rat) *Number {
	n := &Number{}
	if r != nil {
		n.val.Set(r)
	}
	return n
}

func NumberFromInt(i int64) *Number {
	n := &Number{}
	n.val.SetInt64(i)
	return n
}

// ParseNumber parses decimal ("4.1"), fractional ("41/10") and
// exponent ("1e3") forms.
func ParseNumber(s string) (*Number, bool) {
	n := &Number{}
	if _, ok := n.val.SetString(s); !ok {
		return nil, false
	}
	return n, true
}

func (n *Number) Kind() Kind      { return KindNumber }
func (n *Number) Header() *Header { return &n.hdr }

// Rat returns a copy of the value.
func (n *Number) Rat() *big.Rat {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return new(big.Rat).Set(&n.val)
}

func (n *Number) Set(r *big.Rat) {
	n.mu.Lock()
	n.val.Set(r)
	n.mu.Unlock()
}

// Update mutates the value in place under the number's lock.
func (n *Number) Update(fn func(r *big.Rat)) {
	n.mu.Lock()
	fn(&n.val)
	n.mu.Unlock()
}

func (n *Number) IsInteger() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.val.IsInt()
}

// Int64 returns the value when it is an integer that fits in int64.
func (n *Number) Int64() (int64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.val.IsInt() || !n.val.Num().IsInt64() {
		return 0, false
	}
	return n.val.Num().Int64(), true
}

func (n *Number) Copy(Depth) Node { return NewNumber(n.Rat()) }

func (n *Number) Trace(func(Node)) {}

func (n *Number) Marshall(e *Encoder) {
	e.Write("uX", uint8(KindNumber), n.Rat().RatString())
}

func (n *Number) CompareNode(other Node) Ordering {
	o, ok := other.(*Number)
	if !ok {
		return Uncomparable
	}
	return Ordering(n.Rat().Cmp(o.Rat()))
}

func (n *Number) HashKey() string { return "N:" + n.Rat().RatString() }

func (n *Number) String() string { return FormatRat(n.Rat(), DefaultPrecision) }

// Text formats the number with at most precision fractional digits.
func (n *Number) Text(precision int) string { return FormatRat(n.Rat(), precision) }

// FormatRat prints integers without a fraction and trims trailing zeros
// from everything else.
func FormatRat(r *big.Rat, precision int) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(precision)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// Complex is a complex number with rational parts.
type Complex struct {
	hdr  Header
	Real big.Rat
	Imag big.Rat
}

func NewComplex(re, im *big.Rat) *Complex {
	c := &Complex{}
	if re != nil {
		c.Real.Set(re)
	}
	if im != nil {
		c.Imag.Set(im)
	}
	return c
}

func (c *Complex) Kind() Kind      { return KindComplex }
func (c *Complex) Header() *Header { return &c.hdr }

func (c *Complex) Copy(Depth) Node { return NewComplex(&c.Real, &c.Imag) }

func (c *Complex) Trace(func(Node)) {}

func (c *Complex) Marshall(e *Encoder) {
	e.Write("uXX", uint8(KindComplex), c.Real.RatString(), c.Imag.RatString())
}

func (c *Complex) CompareNode(other Node) Ordering {
	o, ok := other.(*Complex)
	if !ok {
		return Uncomparable
	}
	if c.Real.Cmp(&o.Real) == 0 && c.Imag.Cmp(&o.Imag) == 0 {
		return Equal
	}
	return Uncomparable
}

func (c *Complex) HashKey() string {
	return "C:" + c.Real.RatString() + "," + c.Imag.RatString()
}

func (c *Complex) String() string {
	re := FormatRat(&c.Real, DefaultPrecision)
	if c.Imag.Sign() < 0 {
		return re + " - " + FormatRat(new(big.Rat).Neg(&c.Imag), DefaultPrecision) + "i"
	}
	return re + " + " + FormatRat(&c.Imag, DefaultPrecision) + "i"
}

// String is a raw character buffer.
type String struct {
	hdr   Header
	Value string
}

func NewString(s string) *String { return &String{Value: s} }

func (s *String) Kind() Kind      { return KindString }
func (s *String) Header() *Header { return &s.hdr }

func (s *String) Copy(Depth) Node { return NewString(s.Value) }

func (s *String) Trace(func(Node)) {}

func (s *String) Marshall(e *Encoder) { e.Write("uX", uint8(KindString), s.Value) }

func (s *String) CompareNode(other Node) Ordering {
	o, ok := other.(*String)
	if !ok {
		return Uncomparable
	}
	return Ordering(strings.Compare(s.Value, o.Value))
}

func (s *String) HashKey() string { return "S:" + s.Value }

func (s *String) String() string { return s.Value }

func unmarshallNumber(d *Decoder) (Node, error) {
	var text string
	if err := d.Read("X", &text); err != nil {
		return nil, err
	}
	if !isRatString(text) {
		return nil, d.errorf("invalid number %q", text)
	}
	n, ok := ParseNumber(text)
	if !ok {
		return nil, d.errorf("invalid number %q", text)
	}
	return n, nil
}

// isRatString accepts only the "-a/b" form written by RatString, so a
// hostile stream cannot request a huge exponent.
func isRatString(s string) bool {
	if s == "" {
		return false
	}
	slash := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
		case c == '-' && i == 0:
		case c == '/' && !slash && i > 0:
			slash = true
		default:
			return false
		}
	}
	return true
}

func unmarshallComplex(d *Decoder) (Node, error) {
	var re, im string
	if err := d.Read("XX", &re, &im); err != nil {
		return nil, err
	}
	if !isRatString(re) || !isRatString(im) {
		return nil, d.errorf("invalid complex parts %q, %q", re, im)
	}
	c := &Complex{}
	if _, ok := c.Real.SetString(re); !ok {
		return nil, d.errorf("invalid real part %q", re)
	}
	if _, ok := c.Imag.SetString(im); !ok {
		return nil, d.errorf("invalid imaginary part %q", im)
	}
	return c, nil
}

func unmarshallString(d *Decoder) (Node, error) {
	var value string
	if err := d.Read("X", &value); err != nil {
		return nil, err
	}
	return NewString(value), nil
}
