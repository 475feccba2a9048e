package evaluator

import (
	"math"
	"math/big"
	"math/cmplx"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

// Limits on operations whose result size grows with an operand.
const (
	maxExactExponent = 1 << 16
	maxShift         = 1 << 20
	maxFactorial     = 1 << 14
	sqrtPrecision    = 256
)

// binaryNumberOp computes a Number operation on two rational operands.
type binaryNumberOp func(ev *Evaluator, a, b *big.Rat) (*Object, error)

func numberDefinition() *Definition {
	def := &Definition{
		Package: config.MathsPackage,
		Name:    config.NumberClassName,
		Super:   objectFQ,
		Flags:   ast.ClassAtomic,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NumberFromInt(0)
			}
		},
		CheckAux: auxIs[*node.Number],
		Hash:     auxHash,
		Methods: []MethodSpec{
			{Name: config.EqualsMethodName, Native: numberEquals},
			{Name: config.CompareMethodName, Native: numberCompare},
			{Name: config.OperatorMethodName("<"), Native: numberOrdering(func(c int) bool { return c < 0 })},
			{Name: config.OperatorMethodName("<="), Native: numberOrdering(func(c int) bool { return c <= 0 })},
			{Name: config.OperatorMethodName(">"), Native: numberOrdering(func(c int) bool { return c > 0 })},
			{Name: config.OperatorMethodName(">="), Native: numberOrdering(func(c int) bool { return c >= 0 })},
			{Name: config.IncrementMethodName, Native: numberStep(1)},
			{Name: config.DecrementMethodName, Native: numberStep(-1)},
			{Name: config.FactorialMethodName, Native: numberFactorial},
			{Name: config.NegateMethodName, Native: numberNegate},
			{Name: config.BitNotMethodName, Native: numberBitNot},
			{Name: config.AsStringMethodName, Native: numberAsString},
			{Name: config.DescribeMethodName, Native: numberAsString},
			{Name: "abs", Native: numberUnary(func(r *big.Rat) *big.Rat { return r.Abs(r) })},
			{Name: "floor", Native: numberUnary(floorRat)},
			{Name: "ceiling", Native: numberUnary(func(r *big.Rat) *big.Rat {
				return r.Neg(floorRat(r.Neg(r)))
			})},
			{Name: "round", Native: numberUnary(func(r *big.Rat) *big.Rat {
				return floorRat(r.Add(r, big.NewRat(1, 2)))
			})},
			{Name: "sqrt", Native: numberSqrt},
			{Name: "isInteger", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				n, err := ev.number(self)
				if err != nil {
					return nil, err
				}
				return ev.rt.Bool(n.IsInteger()), nil
			}},
		},
	}
	for _, op := range []struct {
		symbol string
		fn     binaryNumberOp
	}{
		{"+", ratArith((*big.Rat).Add)},
		{"-", ratArith((*big.Rat).Sub)},
		{"*", ratArith((*big.Rat).Mul)},
		{"/", ratDivide},
		{"^", ratRaise},
		{"%", intOp(func(z, x, y *big.Int) *big.Int { return z.Mod(x, y) }, true)},
		{"&", intOp((*big.Int).And, false)},
		{"|", intOp((*big.Int).Or, false)},
		{"^^", intOp((*big.Int).Xor, false)},
		{"<<", shiftOp(true)},
		{">>", shiftOp(false)},
	} {
		def.Methods = append(def.Methods, MethodSpec{
			Name:   config.OperatorMethodName(op.symbol),
			Native: numberBinary(op.symbol, op.fn),
		})
	}
	return def
}

// number returns the Number aux of o or raises InvalidCastException.
func (ev *Evaluator) number(o *Object) (*node.Number, error) {
	o = ev.orNil(o)
	if o.isObject && o.template.IsKindOfName(numberFQ) {
		if n, ok := auxOf[*node.Number](o); ok {
			return n, nil
		}
	}
	return nil, ev.throwNew("InvalidCastException", o.template.ShortName(), config.NumberClassName)
}

func (ev *Evaluator) complexOf(o *Object) (*node.Complex, bool) {
	o = ev.orNil(o)
	if !o.isObject || !o.template.IsKindOfName(complexFQ) {
		return nil, false
	}
	return auxOf[*node.Complex](o)
}

// integer returns the value of an integral Number.
func (ev *Evaluator) integer(o *Object) (*big.Int, error) {
	n, err := ev.number(o)
	if err != nil {
		return nil, err
	}
	r := n.Rat()
	if !r.IsInt() {
		return nil, ev.throwNew("NeedIntegerException", o)
	}
	return new(big.Int).Set(r.Num()), nil
}

// smallInt returns an integral Number as an int.
func (ev *Evaluator) smallInt(o *Object) (int, error) {
	n, err := ev.number(o)
	if err != nil {
		return 0, err
	}
	i, ok := n.Int64()
	if !ok || i > math.MaxInt32 || i < math.MinInt32 {
		return 0, ev.throwNew("NeedIntegerException", o)
	}
	return int(i), nil
}

func numberBinary(symbol string, fn binaryNumberOp) NativeFunc {
	return func(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
		a, err := ev.number(self)
		if err != nil {
			return nil, err
		}
		if c, ok := ev.complexOf(args[0]); ok {
			return complexBinary(ev, symbol, node.NewComplex(a.Rat(), new(big.Rat)), c)
		}
		b, err := ev.number(args[0])
		if err != nil {
			return nil, err
		}
		return fn(ev, a.Rat(), b.Rat())
	}
}

func ratArith(op func(z, x, y *big.Rat) *big.Rat) binaryNumberOp {
	return func(ev *Evaluator, a, b *big.Rat) (*Object, error) {
		return ev.rt.NewNumber(op(new(big.Rat), a, b)), nil
	}
}

func ratDivide(ev *Evaluator, a, b *big.Rat) (*Object, error) {
	if b.Sign() == 0 {
		return nil, ev.throwNew("DivideByZeroException")
	}
	return ev.rt.NewNumber(new(big.Rat).Quo(a, b)), nil
}

// ratRaise is exact for integral exponents and goes through complex
// floating point otherwise.
func ratRaise(ev *Evaluator, a, b *big.Rat) (*Object, error) {
	if b.IsInt() && b.Num().IsInt64() && abs64(b.Num().Int64()) <= maxExactExponent {
		e := b.Num().Int64()
		if e < 0 && a.Sign() == 0 {
			return nil, ev.throwNew("DivideByZeroException")
		}
		exp := big.NewInt(abs64(e))
		num := new(big.Int).Exp(a.Num(), exp, nil)
		den := new(big.Int).Exp(a.Denom(), exp, nil)
		if e < 0 {
			num, den = den, num
		}
		return ev.rt.NewNumber(new(big.Rat).SetFrac(num, den)), nil
	}
	x, _ := a.Float64()
	y, _ := b.Float64()
	if x >= 0 {
		return floatNumber(ev, math.Pow(x, y))
	}
	z := cmplx.Pow(complex(x, 0), complex(y, 0))
	re, err := floatRat(ev, real(z))
	if err != nil {
		return nil, err
	}
	im, err := floatRat(ev, imag(z))
	if err != nil {
		return nil, err
	}
	return ev.rt.NewComplex(re, im), nil
}

func abs64(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}

func floatRat(ev *Evaluator, f float64) (*big.Rat, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, ev.throwNew("NeedDoubleException", f)
	}
	return new(big.Rat).SetFloat64(f), nil
}

func floatNumber(ev *Evaluator, f float64) (*Object, error) {
	r, err := floatRat(ev, f)
	if err != nil {
		return nil, err
	}
	return ev.rt.NewNumber(r), nil
}

func intOp(op func(z, x, y *big.Int) *big.Int, nonZero bool) binaryNumberOp {
	return func(ev *Evaluator, a, b *big.Rat) (*Object, error) {
		if !a.IsInt() {
			return nil, ev.throwNew("NeedIntegerException", ev.rt.NewNumber(a))
		}
		if !b.IsInt() {
			return nil, ev.throwNew("NeedIntegerException", ev.rt.NewNumber(b))
		}
		if nonZero && b.Sign() == 0 {
			return nil, ev.throwNew("DivideByZeroException")
		}
		z := op(new(big.Int), a.Num(), b.Num())
		return ev.rt.NewNumber(new(big.Rat).SetInt(z)), nil
	}
}

func shiftOp(left bool) binaryNumberOp {
	return func(ev *Evaluator, a, b *big.Rat) (*Object, error) {
		if !a.IsInt() {
			return nil, ev.throwNew("NeedIntegerException", ev.rt.NewNumber(a))
		}
		if !b.IsInt() || b.Sign() < 0 || !b.Num().IsInt64() || b.Num().Int64() > maxShift {
			return nil, ev.throwNew("NeedPositiveIntegerException", ev.rt.NewNumber(b))
		}
		n := uint(b.Num().Int64())
		z := new(big.Int)
		if left {
			z.Lsh(a.Num(), n)
		} else {
			z.Rsh(a.Num(), n)
		}
		return ev.rt.NewNumber(new(big.Rat).SetInt(z)), nil
	}
}

func numberEquals(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	a, err := ev.number(self)
	if err != nil {
		return nil, err
	}
	if c, ok := ev.complexOf(args[0]); ok {
		return ev.rt.Bool(c.Imag.Sign() == 0 && c.Real.Cmp(a.Rat()) == 0), nil
	}
	other := ev.orNil(args[0])
	if !other.template.IsKindOfName(numberFQ) {
		return ev.rt.no, nil
	}
	b, err := ev.number(other)
	if err != nil {
		return nil, err
	}
	return ev.rt.Bool(a.Rat().Cmp(b.Rat()) == 0), nil
}

func numberCompare(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	a, err := ev.number(self)
	if err != nil {
		return nil, err
	}
	b, err := ev.number(args[0])
	if err != nil {
		return nil, err
	}
	return ev.orderingSymbol(node.Ordering(a.Rat().Cmp(b.Rat()))), nil
}

func numberOrdering(test func(int) bool) NativeFunc {
	return func(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
		a, err := ev.number(self)
		if err != nil {
			return nil, err
		}
		b, err := ev.number(args[0])
		if err != nil {
			return nil, err
		}
		return ev.rt.Bool(test(a.Rat().Cmp(b.Rat()))), nil
	}
}

// numberStep implements ++ and --, which change the number in place.
func numberStep(delta int64) NativeFunc {
	return func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
		n, err := ev.number(self)
		if err != nil {
			return nil, err
		}
		n.Update(func(r *big.Rat) { r.Add(r, big.NewRat(delta, 1)) })
		return self, nil
	}
}

func numberFactorial(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	n, err := ev.number(self)
	if err != nil {
		return nil, err
	}
	i, ok := n.Int64()
	if !ok || i < 0 || i > maxFactorial {
		return nil, ev.throwNew("NeedPositiveIntegerException", self)
	}
	if i == 0 {
		return ev.rt.NewNumberInt(1), nil
	}
	z := new(big.Int).MulRange(1, i)
	return ev.rt.NewNumber(new(big.Rat).SetInt(z)), nil
}

func numberNegate(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	n, err := ev.number(self)
	if err != nil {
		return nil, err
	}
	r := n.Rat()
	return ev.rt.NewNumber(r.Neg(r)), nil
}

func numberBitNot(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	i, err := ev.integer(self)
	if err != nil {
		return nil, err
	}
	return ev.rt.NewNumber(new(big.Rat).SetInt(i.Not(i))), nil
}

func numberAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	n, err := ev.number(self)
	if err != nil {
		return nil, err
	}
	return ev.rt.NewString(n.Text(ev.rt.cfg.Number.Precision)), nil
}

func numberUnary(fn func(r *big.Rat) *big.Rat) NativeFunc {
	return func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
		n, err := ev.number(self)
		if err != nil {
			return nil, err
		}
		return ev.rt.NewNumber(fn(n.Rat())), nil
	}
}

// floorRat rounds r down in place; big.Int.Div is Euclidean and the
// denominator is positive.
func floorRat(r *big.Rat) *big.Rat {
	q := new(big.Int).Div(r.Num(), r.Denom())
	return r.SetInt(q)
}

func numberSqrt(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	n, err := ev.number(self)
	if err != nil {
		return nil, err
	}
	r := n.Rat()
	if r.Sign() < 0 {
		return ev.rt.NewComplex(new(big.Rat), sqrtRat(r.Neg(r))), nil
	}
	return ev.rt.NewNumber(sqrtRat(r)), nil
}

func sqrtRat(r *big.Rat) *big.Rat {
	f := new(big.Float).SetPrec(sqrtPrecision).SetRat(r)
	f.Sqrt(f)
	result, _ := f.Rat(nil)
	return result
}

func complexDefinition() *Definition {
	def := &Definition{
		Package: config.MathsPackage,
		Name:    config.ComplexNumberClassName,
		Super:   objectFQ,
		Flags:   ast.ClassAtomic,
		Allocate: func(o *Object) {
			if o.aux == nil {
				o.aux = node.NewComplex(new(big.Rat), new(big.Rat))
			}
		},
		CheckAux: auxIs[*node.Complex],
		Hash:     auxHash,
		Methods: []MethodSpec{
			{Name: config.EqualsMethodName, Native: complexEquals},
			{Name: "real", Native: complexPart(true)},
			{Name: "imaginary", Native: complexPart(false)},
			{Name: config.AsStringMethodName, Native: complexAsString},
			{Name: config.DescribeMethodName, Native: complexAsString},
			{Name: config.NegateMethodName, Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				c, _ := ev.complexOf(self)
				re, im := new(big.Rat).Neg(&c.Real), new(big.Rat).Neg(&c.Imag)
				return ev.rt.NewComplex(re, im), nil
			}},
		},
		MetaMethods: []MethodSpec{
			{Name: "real:imaginary:", Native: complexNew},
		},
	}
	for _, symbol := range []string{"+", "-", "*", "/"} {
		symbol := symbol
		def.Methods = append(def.Methods, MethodSpec{
			Name: config.OperatorMethodName(symbol),
			Native: func(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
				a, _ := ev.complexOf(self)
				b, ok := ev.complexOf(args[0])
				if !ok {
					n, err := ev.number(args[0])
					if err != nil {
						return nil, err
					}
					b = node.NewComplex(n.Rat(), new(big.Rat))
				}
				return complexBinary(ev, symbol, a, b)
			},
		})
	}
	return def
}

func complexBinary(ev *Evaluator, symbol string, a, b *node.Complex) (*Object, error) {
	re, im := new(big.Rat), new(big.Rat)
	switch symbol {
	case "+":
		re.Add(&a.Real, &b.Real)
		im.Add(&a.Imag, &b.Imag)
	case "-":
		re.Sub(&a.Real, &b.Real)
		im.Sub(&a.Imag, &b.Imag)
	case "*":
		re.Sub(new(big.Rat).Mul(&a.Real, &b.Real), new(big.Rat).Mul(&a.Imag, &b.Imag))
		im.Add(new(big.Rat).Mul(&a.Real, &b.Imag), new(big.Rat).Mul(&a.Imag, &b.Real))
	case "/":
		den := new(big.Rat).Add(new(big.Rat).Mul(&b.Real, &b.Real), new(big.Rat).Mul(&b.Imag, &b.Imag))
		if den.Sign() == 0 {
			return nil, ev.throwNew("DivideByZeroException")
		}
		re.Add(new(big.Rat).Mul(&a.Real, &b.Real), new(big.Rat).Mul(&a.Imag, &b.Imag))
		im.Sub(new(big.Rat).Mul(&a.Imag, &b.Real), new(big.Rat).Mul(&a.Real, &b.Imag))
		re.Quo(re, den)
		im.Quo(im, den)
	default:
		return nil, ev.throwNew("UnidentifiedMethodException", config.ComplexNumberClassName, config.OperatorMethodName(symbol))
	}
	return ev.rt.NewComplex(re, im), nil
}

func complexEquals(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	a, _ := ev.complexOf(self)
	if b, ok := ev.complexOf(args[0]); ok {
		return ev.rt.Bool(a.Real.Cmp(&b.Real) == 0 && a.Imag.Cmp(&b.Imag) == 0), nil
	}
	other := ev.orNil(args[0])
	if !other.template.IsKindOfName(numberFQ) {
		return ev.rt.no, nil
	}
	n, err := ev.number(other)
	if err != nil {
		return nil, err
	}
	return ev.rt.Bool(a.Imag.Sign() == 0 && a.Real.Cmp(n.Rat()) == 0), nil
}

func complexPart(realPart bool) NativeFunc {
	return func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
		c, _ := ev.complexOf(self)
		if realPart {
			return ev.rt.NewNumber(&c.Real), nil
		}
		return ev.rt.NewNumber(&c.Imag), nil
	}
}

func complexAsString(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	c, _ := ev.complexOf(self)
	precision := ev.rt.cfg.Number.Precision
	text := node.FormatRat(&c.Real, precision)
	switch {
	case c.Imag.Sign() < 0:
		text += " - " + node.FormatRat(new(big.Rat).Neg(&c.Imag), precision) + "i"
	default:
		text += " + " + node.FormatRat(&c.Imag, precision) + "i"
	}
	return ev.rt.NewString(text), nil
}

func complexNew(ev *Evaluator, _ *Object, args []*Object) (*Object, error) {
	re, err := ev.number(args[0])
	if err != nil {
		return nil, err
	}
	im, err := ev.number(args[1])
	if err != nil {
		return nil, err
	}
	return ev.rt.NewComplex(re.Rat(), im.Rat()), nil
}
