package evaluator

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/funvibe/taffy/internal/config"
)

func TestFutures(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"value", "f = [Future createWithBlock: ^{ 40 + 2 }]\nio putLine: [f waitForValue]", "42\n"},
		{"arguments", "f = [Future createWithBlock: ^{ <a, b> a * b } withArguments: [6, 7]]\nio putLine: f", "42\n"},
		{"set value", "f = new Future\n[f setValue: 3]\nio putLine: [f hasValue]\nio putLine: f", "yes\n3\n"},
		{"implicit wait", "f = [Future createWithBlock: ^{ 5 }]\nx = f + 1\nio putLine: x", "6\n"},
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

func TestFutureRethrows(t *testing.T) {
	_, err := run(t, "f = [Future createWithBlock: ^{ 1 / 0 }]\n[f waitForValue]")
	if err == nil {
		t.Fatal("no error from a failing future")
	}
	var ex *Exception
	if !errors.As(err, &ex) || ex.Object.Template().ShortName() != "DivideByZeroException" {
		t.Fatalf("error = %v", err)
	}
}

const parallelCounter = counterClass + `
c = new Counter
l = new List
for (k = 0; k < 8; k++) {
    [l push: [Future createWithBlock: ^{ for (i = 0; i < 50; i++) { [c add] } }]]
}
[l each: ^{ <f> [f waitForValue] }]
io putLine: [c n]
`

func TestSynchronizedMethodsUnderFutures(t *testing.T) {
	got, err := run(t, parallelCounter)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != "400\n" {
		t.Errorf("count = %q, want 400", got)
	}
}

// With one future thread the remaining blocks run on the caller.
func TestFuturesBeyondThreadLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Futures.MaxThreads = 1
	var out bytes.Buffer
	rt, err := New(Options{Config: cfg, Out: &out})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	ev := rt.NewEvaluator(context.Background())
	defer ev.Close()

	_, err = ev.EvalString(parallelCounter, "limit.ty")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got := out.String(); got != "400\n" {
		t.Errorf("count = %q, want 400", got)
	}
	rt.futures.Wait()
	if n := rt.futures.Running(); n != 0 {
		t.Errorf("%d futures still running", n)
	}
}

func TestThreads(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"result", "t = [Thread new: ^{ 6 * 7 }]\n[t start]\n[t wait]\nio putLine: [t result]", "42\n"},
		{"start with", "t = [Thread new: ^{ <x> x + 1 }]\n[t startWith: 41]\n[t wait]\nio putLine: [t result]", "42\n"},
		{"idle", "t = [Thread new: ^{ 1 }]\nio putLine: [t isRunning?]\nio putLine: [t result]\nio putLine: [t kill]", "no\nnil\nno\n"},
		{"ids", "a = [Thread new: ^{ 1 }]\nb = [Thread new: ^{ 1 }]\nio putLine: ([b id] - [a id])", "1\n"},
		{"messages", `t = [Thread new: ^{ [t getMessage] + [t getMessage] }]
[t addMessage: 40]
[t addMessage: 2]
io putLine: [t hasMessage?]
[t start]
[t wait]
io putLine: [t result]
io putLine: [t hasMessage?]
io putLine: [t getMessage]`, "yes\n42\nno\nnil\n"},
		{"busy", `m = new Mutex
[m lock]
t = [Thread new: ^{
    [m lock]
    [m unlock]
    5
}]
[t start]
io putLine: [t start]
[m unlock]
[t wait]
io putLine: [t result]`, "no\n5\n"},
		{"restart", "t = [Thread new: ^{ 3 }]\n[t start]\n[t wait]\n[t start]\n[t wait]\nio putLine: [t result]", "3\n"},
		{"failure", "t = [Thread new: ^{ 1 / 0 }]\n[t start]\n[t wait]\nio putLine: [t result]", "nil\n"},
		{"kill", "t = [Thread new: ^{ while (yes) { } }]\n[t start]\nio putLine: [t kill]\nio putLine: [t isRunning?]\nio putLine: [t result]", "yes\nno\nnil\n"},
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

// conditionWaiters leaves three threads waiting on c.
const conditionWaiters = `
m = new Mutex
c = new Condition
waiting = new List
ts = new List
for (k = 0; k < 3; k++) {
    [ts push: [Thread new: ^{
        [m lock]
        [waiting push: 1]
        [c wait: m]
        [m unlock]
    }]]
}
[ts each: ^{ <t> [t start] }]
n = 0
while (n < 3) {
    [m lock]
    n = [waiting size]
    [m unlock]
}
`

func TestThreadsIgnoreThreadLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Futures.MaxThreads = 1
	var out bytes.Buffer
	rt, err := New(Options{Config: cfg, Out: &out})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	ev := rt.NewEvaluator(context.Background())
	defer ev.Close()
	if _, err := ev.EvalString(conditionWaiters, "threads.ty"); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if n := rt.futures.Running(); n != 3 {
		t.Errorf("%d threads running, want 3", n)
	}
	if _, err := ev.EvalString("[m lock]\n[c broadcast]\n[m unlock]\n[ts each: ^{ <t> [t wait] }]", "threads.ty"); err != nil {
		t.Fatalf("eval: %v", err)
	}
	rt.futures.Wait()
	if n := rt.futures.Running(); n != 0 {
		t.Errorf("%d threads still running", n)
	}
}

func TestConditionSignal(t *testing.T) {
	src := `
m = new Mutex
c = new Condition
box = new List
t = [Thread new: ^{
    [m lock]
    [box push: 7]
    [c signal]
    [m unlock]
}]
[m lock]
[t start]
while ([box size] == 0) { [c wait: m] }
[m unlock]
[t wait]
io putLine: [box size]
`
	got, err := run(t, src)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != "1\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConditionBroadcast(t *testing.T) {
	got, err := run(t, conditionWaiters+`
[m lock]
io putLine: [c broadcast]
[m unlock]
[ts each: ^{ <t> [t wait] }]
io putLine: [waiting size]
`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != "yes\n3\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConditionWaitNeedsMutex(t *testing.T) {
	_, err := run(t, "c = new Condition\nm = new Mutex\n[c wait: m]")
	var ex *Exception
	if !errors.As(err, &ex) || ex.Object.Template().ShortName() != "RuntimeException" {
		t.Fatalf("error = %v", err)
	}
}

// A reentrant mutex held twice is held twice again after the wait.
func TestConditionWaitKeepsHoldCount(t *testing.T) {
	src := `
m = new Mutex
[m initWithReentrant: yes]
c = new Condition
t = [Thread new: ^{
    [m lock]
    [c signal]
    [m unlock]
}]
[m lock]
[m lock]
[t start]
[c wait: m]
io putLine: [m unlock]
io putLine: [m unlock]
io putLine: [m unlock]
[t wait]
`
	got, err := run(t, src)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != "yes\nyes\nno\n" {
		t.Errorf("output = %q", got)
	}
}

func TestSynchronizedBlock(t *testing.T) {
	src := `
total = [0]
l = new List
for (k = 0; k < 4; k++) {
    [l push: [Future createWithBlock: ^{ for (i = 0; i < 25; i++) { synchronized (total) { total[0] = total[0] + 1 } } }]]
}
[l each: ^{ <f> [f waitForValue] }]
io putLine: total[0]
`
	got, err := run(t, src)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != "100\n" {
		t.Errorf("total = %q", got)
	}
}

func TestReadWriteUpgradeDeadlocks(t *testing.T) {
	src := `
class Box
{
    @v = 1

    (@) read
    #synchronizedRead
    {
        return ([self write])
    }

    (@) write
    #synchronizedWrite
    {
        @v = 2
    }
}
b = new Box
[b read]`
	_, err := run(t, src)
	var ex *Exception
	if !errors.As(err, &ex) || ex.Object.Template().ShortName() != "DeadlockException" {
		t.Fatalf("error = %v", err)
	}
}

// Independent evaluators share one runtime and its collector.
func TestParallelEvaluators(t *testing.T) {
	rt, _ := newTestRuntime(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := rt.NewEvaluator(context.Background())
			defer ev.Close()
			_, err := ev.EvalString("for (j = 0; j < 200; j++) { x = [j, \"x\"]\ny = [x size] }", "p.ty")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if _, err := rt.gc.Collect(); err != nil {
		t.Fatal(err)
	}
}

func TestCollectGarbage(t *testing.T) {
	got, err := run(t, "for (i = 0; i < 100; i++) { x = [i, i] }\nn = [kernel collectGarbage]\nio putLine: (n >= 0)")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != "yes\n" {
		t.Errorf("output = %q", got)
	}
}
