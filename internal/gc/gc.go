// Package gc tracks the liveness of registered runtime nodes.
//
// Go owns the memory; the collector decides when a node is dead from the
// language's point of view so that its deallocate hook (closing a store,
// releasing a future) runs exactly once. Evaluators announce themselves
// with Up and Down. A collection waits until no evaluator is running,
// marks from the roots and sweeps every unmarked, unpinned node.
package gc

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

// ErrClosed is returned by Collect after Close.
var ErrClosed = errors.New("gc: collector closed")

// RootFunc marks the nodes a root keeps alive.
type RootFunc func(mark func(node.Node))

// Event is reported to a Watcher for every node the sweep visits.
type Event uint8

const (
	EventUnmark Event = iota
	EventCondemn
)

func (e Event) String() string {
	if e == EventCondemn {
		return "condemn"
	}
	return "unmark"
}

type Options struct {
	// Threshold is the registered node count that triggers a background
	// collection. Zero selects config.DefaultGCThreshold.
	Threshold int
	// Growth scales the live count into the next threshold.
	Growth float64
	// Background starts the collection goroutine.
	Background bool
	// Deallocate runs for every swept node.
	Deallocate func(node.Node)
	// Watcher observes the sweep; tests use it.
	Watcher func(node.Node, Event)
	Logger  *slog.Logger
}

// Stats is a snapshot of collector counters.
type Stats struct {
	Registered  int
	Pending     int
	Roots       int
	Running     int
	Threshold   int
	Collections uint64
	Swept       uint64
}

type Collector struct {
	mu       sync.Mutex
	evalCond *sync.Cond // running evaluator count changed
	doneCond *sync.Cond // a collection finished

	running   bool
	evaluator int
	requested atomic.Bool

	regMu      sync.Mutex
	pending    []node.Node
	registered map[node.Node]struct{}

	rootMu   sync.Mutex
	roots    map[uint64]RootFunc
	nextRoot uint64

	threshold    int
	minThreshold int
	growth       float64
	deallocate   func(node.Node)
	watcher      func(node.Node, Event)
	logger       *slog.Logger

	collections atomic.Uint64
	swept       atomic.Uint64

	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
}

func New(opts Options) *Collector {
	if opts.Threshold <= 0 {
		opts.Threshold = config.DefaultGCThreshold
	}
	if opts.Growth <= 1 {
		opts.Growth = config.DefaultGCGrowth
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	c := &Collector{
		registered:   make(map[node.Node]struct{}),
		roots:        make(map[uint64]RootFunc),
		threshold:    opts.Threshold,
		minThreshold: opts.Threshold,
		growth:       opts.Growth,
		deallocate:   opts.Deallocate,
		watcher:      opts.Watcher,
		logger:       opts.Logger,
		trigger:      make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	c.evalCond = sync.NewCond(&c.mu)
	c.doneCond = sync.NewCond(&c.mu)
	if opts.Background {
		c.wg.Add(1)
		go c.loop()
	}
	return c
}

func (c *Collector) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case <-c.trigger:
			if _, err := c.Collect(); err != nil {
				return
			}
		}
	}
}

// Close stops the background goroutine. Registered nodes are left to Go.
func (c *Collector) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.stop)
	c.wg.Wait()
}

// Register queues a floating node. Registering a template or an already
// registered node is a no-op.
func (c *Collector) Register(n node.Node) {
	if n == nil {
		return
	}
	h := n.Header()
	if !h.Floating() {
		return
	}
	h.SetRegistered(true)

	c.regMu.Lock()
	c.pending = append(c.pending, n)
	over := len(c.pending)+len(c.registered) >= c.threshold
	c.regMu.Unlock()

	if over {
		c.requested.Store(true)
		select {
		case c.trigger <- struct{}{}:
		default:
		}
	}
}

// RegisterTree registers n and every floating node reachable from it.
func (c *Collector) RegisterTree(n node.Node) {
	walk(n, func(n node.Node) bool {
		if !n.Header().Floating() {
			return false
		}
		c.Register(n)
		return true
	})
}

// AddRoot installs a root and returns the function that removes it.
func (c *Collector) AddRoot(root RootFunc) (remove func()) {
	c.rootMu.Lock()
	id := c.nextRoot
	c.nextRoot++
	c.roots[id] = root
	c.rootMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.rootMu.Lock()
			delete(c.roots, id)
			c.rootMu.Unlock()
		})
	}
}

// Up announces a running evaluator. It blocks while a collection runs.
func (c *Collector) Up() {
	c.mu.Lock()
	for c.running {
		c.doneCond.Wait()
	}
	c.evaluator++
	c.mu.Unlock()
}

// Down announces that an evaluator stopped touching nodes.
func (c *Collector) Down() {
	c.mu.Lock()
	node.Assert(c.evaluator > 0, "gc down without up")
	c.evaluator--
	c.evalCond.Signal()
	c.mu.Unlock()
}

// BlockUp is Up after a blocking native call returns.
func (c *Collector) BlockUp() { c.Up() }

// Suspend takes the caller down for the duration of a blocking call:
//
//	release := c.Suspend()
//	defer release()
func (c *Collector) Suspend() (release func()) {
	c.Down()
	var once sync.Once
	return func() { once.Do(c.BlockUp) }
}

// SafePoint lets a running evaluator yield to a pending collection.
func (c *Collector) SafePoint() {
	if !c.requested.Load() {
		return
	}
	c.Down()
	c.BlockUp()
}

// Synchronize runs fn while no collection can start.
func (c *Collector) Synchronize(fn func()) {
	c.mu.Lock()
	for c.running {
		c.doneCond.Wait()
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.doneCond.Broadcast()
		c.mu.Unlock()
	}()
	fn()
}

// Collect runs one collection and returns the number of nodes swept.
// The caller must not be up.
func (c *Collector) Collect() (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	c.mu.Lock()
	for c.running {
		c.doneCond.Wait()
	}
	c.running = true
	c.requested.Store(true)
	for c.evaluator > 0 {
		c.evalCond.Wait()
	}
	c.mu.Unlock()

	swept, live := c.collect()

	c.mu.Lock()
	c.running = false
	c.requested.Store(false)
	c.doneCond.Broadcast()
	c.mu.Unlock()

	c.collections.Add(1)
	c.swept.Add(uint64(swept))
	c.logger.Debug("gc collection", "swept", swept, "live", live, "threshold", c.Stats().Threshold)
	return swept, nil
}

func (c *Collector) collect() (swept, live int) {
	c.regMu.Lock()
	for _, n := range c.pending {
		c.registered[n] = struct{}{}
	}
	c.pending = c.pending[:0]
	c.regMu.Unlock()

	c.rootMu.Lock()
	roots := make([]RootFunc, 0, len(c.roots))
	for _, r := range c.roots {
		roots = append(roots, r)
	}
	c.rootMu.Unlock()

	// floating nodes get marked too; every mark set here is cleared
	// before returning
	var visited []node.Node
	mark := func(n node.Node) {
		walk(n, func(n node.Node) bool {
			if !n.Header().Mark() {
				return false
			}
			visited = append(visited, n)
			return true
		})
	}
	for _, root := range roots {
		root(mark)
	}
	defer func() {
		for _, n := range visited {
			n.Header().Unmark()
		}
	}()

	var condemned []node.Node
	c.regMu.Lock()
	for n := range c.registered {
		h := n.Header()
		if h.Marked() || h.RefCount() > 0 {
			c.watch(n, EventUnmark)
			continue
		}
		c.watch(n, EventCondemn)
		delete(c.registered, n)
		h.SetRegistered(false)
		condemned = append(condemned, n)
	}
	live = len(c.registered)
	c.threshold = max(c.minThreshold, int(float64(live)*c.growth))
	c.regMu.Unlock()

	if c.deallocate != nil {
		for _, n := range condemned {
			c.deallocate(n)
		}
	}
	return len(condemned), live
}

func (c *Collector) watch(n node.Node, e Event) {
	if c.watcher != nil {
		c.watcher(n, e)
	}
}

// Registered reports whether n is known to the collector.
func (c *Collector) Registered(n node.Node) bool {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	if _, ok := c.registered[n]; ok {
		return true
	}
	for _, p := range c.pending {
		if p == n {
			return true
		}
	}
	return false
}

func (c *Collector) Stats() Stats {
	c.regMu.Lock()
	s := Stats{Registered: len(c.registered), Pending: len(c.pending), Threshold: c.threshold}
	c.regMu.Unlock()
	c.rootMu.Lock()
	s.Roots = len(c.roots)
	c.rootMu.Unlock()
	c.mu.Lock()
	s.Running = c.evaluator
	c.mu.Unlock()
	s.Collections = c.collections.Load()
	s.Swept = c.swept.Load()
	return s
}

// walk visits n and its children depth first with an explicit stack.
// visit returns false to skip a node's children.
func walk(n node.Node, visit func(node.Node) bool) {
	if n == nil {
		return
	}
	stack := []node.Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(top) {
			continue
		}
		top.Trace(func(child node.Node) {
			if child != nil {
				stack = append(stack, child)
			}
		})
	}
}
