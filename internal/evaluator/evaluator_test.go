package evaluator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/taffy/internal/config"
)

func newTestRuntime(t *testing.T) (*Runtime, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	rt, err := New(Options{Out: &out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt, &out
}

// run evaluates src on a fresh runtime and returns what it printed.
func run(t *testing.T, src string) (string, error) {
	t.Helper()
	rt, out := newTestRuntime(t)
	_, err := rt.EvalString(context.Background(), src, "test.ty")
	return out.String(), err
}

func TestEvalOutput(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic", "x = 1 + 2 * 3\nio putLine: x", "7\n"},
		{"fraction", "x = 1 / 4\nio putLine: x", "0.25\n"},
		{"compound", "a = 1\na += 3\na *= 2\nio putLine: a", "8\n"},
		{"increment", "a = 5\na++\nio putLine: a", "6\n"},
		{"string concat", "s = \"ab\" + \"cd\"\nio putLine: s", "abcd\n"},
		{"interpolation", "a = 2\nio putLine: \"a is #[a + 1]\"", "a is 3\n"},
		{"symbol", "io putLine: #foo", "#foo\n"},
		{"put", "io put: \"a\"\nio put: \"b\"", "ab"},
		{"if", "if (1 < 2) { io putLine: \"yes\" } else { io putLine: \"no\" }", "yes\n"},
		{"else if", "x = 3\nif (x == 1) { io putLine: 1 } else if (x == 3) { io putLine: 3 } else { io putLine: 0 }", "3\n"},
		{"while", "i = 0\ntotal = 0\nwhile (i < 5) { total += i\ni++ }\nio putLine: total", "10\n"},
		{"for break", "for (i = 0; i < 10; i++) { if (i == 3) { break }\nio put: i }", "012"},
		{"in", "if (2 in [1, 2, 3]) { io putLine: \"found\" }", "found\n"},
		{"array index", "a = [1, 2, 3]\nio putLine: a[1]\nio putLine: [a size]", "2\n3\n"},
		{"array set", "a = [1, 2, 3]\na[0] = 9\nio putLine: a", "[9, 2, 3]\n"},
		{"hash", "h = (1 => \"one\", 2 => \"two\")\nio putLine: h[2]", "two\n"},
		{"block", "b = ^{ <a, b> a + b }\nio putLine: [b value: 1 value: 2]", "3\n"},
		{"block closure", "n = 10\nb = ^{ <a> a + n }\nio putLine: b(5)", "15\n"},
		{"function", "f(x) = x * 2\nf(0) = 100\ny = f(3)\nz = f(0)\nio putLine: y\nio putLine: z", "6\n100\n"},
		{"function cases", "g(a, b) = a - b\ng(0, 0) = \"origin\"\ng(1, 1) = \"diagonal\"\nio putLine: g(5, 2)\nio putLine: g(0, 0)\nio putLine: g(1, 1)", "3\norigin\ndiagonal\n"},
		{"function case replaced", "f(x) = x\nf(2) = 20\nf(2) = 200\nio putLine: f(2)", "200\n"},
		{"compound fraction", "a = 1\na += 3\na += 0.1\nio putLine: (a == 4.1)", "yes\n"},
		{"matrix equality", "io putLine: (||1,2,3,4,5|| == ||1,2,3,3+1,6-1||)", "yes\n"},
		{"kernel eval", "io putLine: [kernel eval: \"1 + 1\"]", "2\n"},
		{"try catch", "try { [kernel assert: no] } catch (AssertFailedException e) { io putLine: \"caught\" }", "caught\n"},
		{"catch all", "try { 1 / 0 } catch (e) { io putLine: [e className] }", "org.taffy.core.exception.DivideByZeroException\n"},
		{"respondsTo", "io putLine: [1 respondsTo: #abs]", "yes\n"},
		{"not equal", "io putLine: (1 != 2)", "yes\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.src)
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

const counterClass = `
class Counter
{
    @n = 0, @r

    (@) add
    #synchronized
    {
        @n = @n + 1
        return (self)
    }

    (@@) zero
    {
        return (new Counter)
    }
}
`

func TestClasses(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"instance", counterClass + "c = new Counter\n[c add]\n[c add]\nio putLine: [c n]", "2\n"},
		{"meta method", counterClass + "c = [Counter zero]\nio putLine: [c n]", "0\n"},
		{"class name", counterClass + "c = new Counter\nio putLine: [c className]", "Counter\n"},
		{"kind of", counterClass + "c = new Counter\nio putLine: [c isKindOf: Counter]", "yes\n"},
		{"super", counterClass + `
class Double(Counter)
{
    (@) add
    {
        [super add]
        [super add]
        return (self)
    }
}
d = new Double
[d add]
io putLine: [d n]`, "2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.src)
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUncaughtExceptions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"[1 foo]", "UnidentifiedMethodException"},
		{"io putLine: missing", "UnidentifiedObjectException"},
		{"x = 1 / 0", "DivideByZeroException"},
		{"break", "BreakWithoutALoopException"},
		{"const c = 1\nc = 2", "ConstantRedefinitionException"},
		{"[kernel assert: no]", "AssertFailedException"},
		{"a = [1]\nio putLine: a[5]", "IndexOutOfBoundsException"},
		{"b = ^{ <a> a }\n[b value: 1 value: 2]", "InvalidNumberArgumentsException"},
		{"b = ^{ <a> a }\nb(1, 2)", "InvalidNumberArgumentsException"},
		{"f(x) = x\n[f value]", "UnidentifiedMethodException"},
		{"x = \"abc\" + ", "ParseFailureException"},
		{"m = new Mutex\n[m lock]\n[m lock]", "DeadlockException"},
		{"new NoSuchClass", "UnidentifiedClassException"},
		{"class A { }\nclass B { }\nclass A(B) { }", "InvalidSuperClassException"},
		{"class B { }\nclass A(B) { }\nclass A { }\nclass A(B) { }\nclass A(Object) { }", "InvalidSuperClassException"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := run(t, tt.src)
			var ex *Exception
			if !errors.As(err, &ex) {
				t.Fatalf("error = %v, want an exception", err)
			}
			if got := ex.Object.Template().ShortName(); got != tt.want {
				t.Errorf("exception = %s (%v), want %s", got, ex, tt.want)
			}
		})
	}
}

func TestExceptionBacktrace(t *testing.T) {
	src := `
class Thrower
{
    (@) fail
    {
        [kernel assert: no]
    }
}
t = new Thrower
[t fail]`
	_, err := run(t, src)
	var ex *Exception
	if !errors.As(err, &ex) {
		t.Fatalf("error = %v", err)
	}
	trace := FormatBacktrace(ex.Backtrace)
	if !strings.Contains(trace, "Thrower fail") {
		t.Errorf("backtrace %q does not name the method", trace)
	}
}

func TestExit(t *testing.T) {
	out, err := run(t, "io put: 1\nexit\nio put: 2")
	if !errors.Is(err, ErrExit) {
		t.Fatalf("error = %v, want ErrExit", err)
	}
	if out != "1" {
		t.Errorf("output = %q", out)
	}
}

func TestCancelledContext(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rt.EvalString(ctx, "while (yes) { }", "loop.ty")
	var ex *Exception
	if !errors.As(err, &ex) || ex.Object.Template().ShortName() != "RuntimeException" {
		t.Fatalf("error = %v", err)
	}
}

func TestStackOverflow(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.cfg.Evaluator.MaxStackDepth = 50
	_, err := rt.EvalString(context.Background(), `
class Deep
{
    (@) down { [self down] }
}
d = new Deep
[d down]`, "deep.ty")
	var ex *Exception
	if !errors.As(err, &ex) || ex.Object.Template().ShortName() != "StackOverflowException" {
		t.Fatalf("error = %v", err)
	}
}

func TestCallFromGo(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ev := rt.NewEvaluator(context.Background())
	defer ev.Close()

	n, err := ev.Call(rt.NewNumberInt(-4), "abs")
	if err != nil {
		t.Fatal(err)
	}
	if got := n.String(); got != "4" {
		t.Errorf("abs = %s", got)
	}
	s, err := ev.Call(rt.NewString("taffy"), config.AsStringMethodName)
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := ev.stringOf(s); text != "taffy" {
		t.Errorf("asString = %q", text)
	}
}
