package evaluator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/funvibe/taffy/internal/node"
)

// futureData is the aux of a Future.
type futureData struct {
	id    uuid.UUID
	mu    sync.Mutex
	cond  *sync.Cond
	done  bool
	value *Object
	err   error
}

func newFutureData() *futureData {
	f := &futureData{id: uuid.New()}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *futureData) set(value *Object, err error) {
	f.mu.Lock()
	f.value, f.err, f.done = value, err, true
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *futureData) ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *futureData) wait() (*Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.done {
		f.cond.Wait()
	}
	return f.value, f.err
}

// futureTask is a block running on its own goroutine. The copies it
// evaluates are roots until it finishes.
type futureTask struct {
	owner *Object
	block *Object
	args  []*Object
}

// FutureManager runs future blocks on goroutines. At most MaxThreads
// run at once; a block started beyond that runs on the caller. Spawned
// threads do not count against the limit.
type FutureManager struct {
	rt     *Runtime
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu     sync.Mutex
	live   map[uuid.UUID]*futureTask
	closed bool
	wg     sync.WaitGroup

	threads atomic.Uint32
}

func newFutureManager(rt *Runtime, maxThreads int) *FutureManager {
	if maxThreads < 1 {
		maxThreads = 1
	}
	return &FutureManager{
		rt:     rt,
		logger: rt.logger.With("component", "futures"),
		sem:    semaphore.NewWeighted(int64(maxThreads)),
		live:   make(map[uuid.UUID]*futureTask),
	}
}

// Start evaluates block with args and delivers the result to future.
func (m *FutureManager) Start(ev *Evaluator, future, block *Object, args []*Object) {
	data, _ := auxOf[*futureData](future)

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed || !m.sem.TryAcquire(1) {
		m.logger.Debug("future runs synchronously", "future", data.id)
		data.set(ev.callBlock(block, args))
		return
	}
	m.launch(ev, ev.Clone(), future, data, block, args, func() { m.sem.Release(1) })
}

// Spawn runs block under ctx on its own goroutine whatever the thread
// limit, delivering the result to data. stop runs once the block ends.
func (m *FutureManager) Spawn(ctx context.Context, stop func(), ev *Evaluator, owner *Object, data *futureData, block *Object, args []*Object) {
	child := ev.Clone()
	child.ctx = ctx
	m.launch(ev, child, owner, data, block, args, stop)
}

func (m *FutureManager) launch(ev, child *Evaluator, owner *Object, data *futureData, block *Object, args []*Object, done func()) {
	task := &futureTask{
		owner: owner,
		block: block.Copy(node.Deep).(*Object),
		args:  make([]*Object, len(args)),
	}
	for i, a := range args {
		task.args[i] = ev.assignable(a)
	}
	m.mu.Lock()
	m.live[data.id] = task
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(child, data, task, done)
}

func (m *FutureManager) run(ev *Evaluator, data *futureData, task *futureTask, done func()) {
	defer m.wg.Done()
	defer done()
	defer ev.Close()

	ev.enter()
	value, err := ev.callBlock(task.block, task.args)
	if err == nil {
		ev.register(value)
	}
	data.set(value, err)
	ev.leave()

	m.mu.Lock()
	delete(m.live, data.id)
	m.mu.Unlock()
	m.logger.Debug("future finished", "future", data.id, "error", err)
}

func (m *FutureManager) nextThreadID() uint32 { return m.threads.Add(1) }

// Running returns the number of futures on their own goroutines.
func (m *FutureManager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Wait blocks until every running future has finished.
func (m *FutureManager) Wait() { m.wg.Wait() }

// Close makes later futures run synchronously. Running ones are not
// interrupted.
func (m *FutureManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *FutureManager) trace(mark func(node.Node)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.live {
		mark(task.owner)
		mark(task.block)
		for _, a := range task.args {
			mark(a)
		}
	}
}

func (ev *Evaluator) isFuture(o *Object) bool {
	if o == nil || !o.isObject {
		return false
	}
	_, ok := auxOf[*futureData](o)
	return ok
}

// awaitFuture returns o, or the value of o when it is a future.
func (ev *Evaluator) awaitFuture(o *Object) (*Object, error) {
	if !ev.isFuture(o) {
		return o, nil
	}
	return ev.futureValue(o)
}

func (ev *Evaluator) futureValue(o *Object) (*Object, error) {
	data, _ := auxOf[*futureData](o)
	value, err := ev.await(data)
	if err != nil {
		return nil, err
	}
	return ev.orNil(value), nil
}

// await blocks until data is set, off the collector's books.
func (ev *Evaluator) await(data *futureData) (*Object, error) {
	release := func() {}
	if !data.ready() {
		release = ev.suspend()
	}
	defer release()
	return data.wait()
}
