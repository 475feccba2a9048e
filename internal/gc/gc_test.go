package gc

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/funvibe/taffy/internal/node"
)

const waitFor = 2 * time.Second

func TestSweepKeepsReachableAndPinned(t *testing.T) {
	var (
		mu          sync.Mutex
		deallocated []node.Node
	)
	c := New(Options{Deallocate: func(n node.Node) {
		mu.Lock()
		deallocated = append(deallocated, n)
		mu.Unlock()
	}})
	defer c.Close()

	child := node.NewString("child")
	root := node.NewArray(child)
	garbage := node.NewString("garbage")
	pinned := node.NewString("pinned")
	pinned.Header().Retain()

	c.RegisterTree(root)
	c.Register(garbage)
	c.Register(pinned)
	remove := c.AddRoot(func(mark func(node.Node)) { mark(root) })

	swept, err := c.Collect()
	if err != nil {
		t.Fatal(err)
	}
	if swept != 1 || len(deallocated) != 1 || deallocated[0] != garbage {
		t.Fatalf("swept %d, deallocated %v", swept, deallocated)
	}
	if garbage.Header().Registered() {
		t.Fatal("swept node still flagged registered")
	}
	for _, n := range []node.Node{root, child, pinned} {
		if !c.Registered(n) {
			t.Fatalf("%v was swept", n)
		}
		if n.Header().Marked() {
			t.Fatalf("%v left marked", n)
		}
	}

	// a second collection with the root gone sweeps the tree
	remove()
	pinned.Header().Release()
	if swept, _ = c.Collect(); swept != 3 {
		t.Fatalf("second collection swept %d, want 3", swept)
	}
	if s := c.Stats(); s.Collections != 2 || s.Swept != 4 || s.Registered != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestMarkedFloatingNodeDoesNotHideChildren(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	child := node.NewString("child")
	c.Register(child)
	holder := node.NewArray(child) // floating, reachable from the root
	c.AddRoot(func(mark func(node.Node)) { mark(holder) })

	for i := 0; i < 3; i++ {
		if swept, _ := c.Collect(); swept != 0 {
			t.Fatalf("collection %d swept %d", i, swept)
		}
	}
}

func TestTemplatesAreNeverRegistered(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	n := node.NewString("template")
	n.Header().SetTemplate(true)
	c.Register(n)
	if c.Registered(n) || n.Header().Registered() {
		t.Fatal("template node was registered")
	}
	c.Register(nil)
}

func TestCollectWaitsForRunningEvaluators(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	c.Up()
	done := make(chan struct{})
	go func() {
		c.Collect()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("collection ran while an evaluator was up")
	case <-time.After(50 * time.Millisecond):
	}

	c.Down()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("collection did not run after Down")
	}
}

func TestSafePointYields(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	c.Up()
	done := make(chan struct{})
	go func() {
		c.Collect()
		close(done)
	}()

	deadline := time.After(waitFor)
	for {
		c.SafePoint()
		select {
		case <-done:
			c.Down()
			return
		case <-deadline:
			t.Fatal("collection never got a safe point")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSuspendGuard(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	c.Up()
	release := c.Suspend()
	if _, err := c.Collect(); err != nil {
		t.Fatal(err)
	}
	release()
	release()
	if s := c.Stats(); s.Running != 1 {
		t.Fatalf("running = %d after release, want 1", s.Running)
	}
	c.Down()
}

func TestUpBlocksDuringSynchronize(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	up := make(chan struct{})
	c.Synchronize(func() {
		go func() {
			c.Up()
			close(up)
		}()
		select {
		case <-up:
			t.Error("Up returned inside Synchronize")
		case <-time.After(50 * time.Millisecond):
		}
	})
	select {
	case <-up:
		c.Down()
	case <-time.After(waitFor):
		t.Fatal("Up never returned")
	}
}

func TestBackgroundCollectionAndThreshold(t *testing.T) {
	c := New(Options{Threshold: 8, Growth: 2, Background: true})
	defer c.Close()

	keep := node.NewList()
	c.AddRoot(func(mark func(node.Node)) { mark(keep) })
	for i := 0; i < 4; i++ {
		s := node.NewString("kept")
		keep.Push(s)
		c.Register(s)
	}
	for i := 0; i < 4; i++ {
		c.Register(node.NewString("garbage"))
	}

	deadline := time.Now().Add(waitFor)
	for c.Stats().Collections == 0 {
		if time.Now().After(deadline) {
			t.Fatal("threshold did not trigger a collection")
		}
		time.Sleep(time.Millisecond)
	}
	s := c.Stats()
	if s.Swept != 4 || s.Registered != 4 {
		t.Fatalf("stats = %+v", s)
	}
	if s.Threshold != 8 {
		t.Fatalf("threshold = %d, want the minimum 8", s.Threshold)
	}
}

func TestCollectAfterClose(t *testing.T) {
	c := New(Options{Background: true})
	c.Close()
	c.Close()
	if _, err := c.Collect(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestWatcher(t *testing.T) {
	events := map[Event]int{}
	c := New(Options{Watcher: func(_ node.Node, e Event) { events[e]++ }})
	defer c.Close()
	kept := node.NewString("kept")
	c.Register(kept)
	c.Register(node.NewString("gone"))
	c.AddRoot(func(mark func(node.Node)) { mark(kept) })
	c.Collect()
	if events[EventUnmark] != 1 || events[EventCondemn] != 1 {
		t.Fatalf("events = %v", events)
	}
}
