package evaluator

import (
	"context"
	"fmt"
	"sync"

	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
)

var blockArg = []string{blockFQ}

func mutexDefinition() *Definition {
	return &Definition{
		Package: config.ThreadingPackage,
		Name:    config.MutexClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			o.aux = newReentrantLock(false)
		},
		// a decoded mutex is unlocked
		MarshallAux: func(o *Object, e *node.Encoder) {
			l, _ := o.aux.(*reentrantLock)
			e.Write("b", l != nil && l.reentrant)
		},
		UnmarshallAux: func(_ *Runtime, o *Object, d *node.Decoder) error {
			var reentrant bool
			if err := d.Read("b", &reentrant); err != nil {
				return err
			}
			o.aux = newReentrantLock(reentrant)
			return nil
		},
		Methods: []MethodSpec{
			{Name: "initWithReentrant:", Native: mutexInitWithReentrant},
			{Name: "lock", Native: mutexLock},
			{Name: "unlock", Native: mutexUnlock},
			{Name: "tryLock", Native: mutexTryLock},
			{Name: "isReentrant", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				l, _ := auxOf[*reentrantLock](self)
				return ev.rt.Bool(l.reentrant), nil
			}},
		},
	}
}

func mutexInitWithReentrant(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	setAux(self, newReentrantLock(ev.orNil(args[0]) == ev.rt.yes))
	return self, nil
}

func mutexLock(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	l, _ := auxOf[*reentrantLock](self)
	if err := ev.lock(l); err != nil {
		return nil, err
	}
	return self, nil
}

func mutexUnlock(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	l, _ := auxOf[*reentrantLock](self)
	return ev.rt.Bool(l.Unlock(ev)), nil
}

func mutexTryLock(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	l, _ := auxOf[*reentrantLock](self)
	return ev.rt.Bool(l.TryLock(ev)), nil
}

func futureDefinition() *Definition {
	return &Definition{
		Package: config.ThreadingPackage,
		Name:    config.FutureClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			o.aux = newFutureData()
		},
		Mark: func(o *Object, mark func(node.Node)) {
			f, ok := o.aux.(*futureData)
			if !ok {
				return
			}
			f.mu.Lock()
			if f.value != nil {
				mark(f.value)
			}
			f.mu.Unlock()
		},
		Copy: func(dst, src *Object, _ node.Depth) {
			// a copy shares the pending result
			dst.aux = src.aux
		},
		MarshallAux: marshallFuture,
		UnmarshallAux: func(rt *Runtime, o *Object, d *node.Decoder) error {
			var (
				done  bool
				value node.Node
			)
			if err := d.Read("bn", &done, &value); err != nil {
				return err
			}
			f := newFutureData()
			if done {
				f.set(rt.asObject(value), nil)
			}
			o.aux = f
			return nil
		},
		Methods: []MethodSpec{
			{Name: config.WaitForValueName, Native: futureWaitForValue},
			{Name: "setValue:", Native: futureSetValue},
			{Name: "hasValue", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				f, _ := auxOf[*futureData](self)
				return ev.rt.Bool(f.ready()), nil
			}},
			{Name: "id", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				f, _ := auxOf[*futureData](self)
				return ev.rt.NewString(f.id.String()), nil
			}},
		},
		MetaMethods: []MethodSpec{
			{Name: "createWithBlock:", Native: futureCreate, Signature: blockArg},
			{Name: "createWithBlock:withArguments:", Native: futureCreate, Signature: []string{blockFQ, arrayFQ}},
		},
	}
}

// A finished future marshalls with its value, a pending one as pending.
func marshallFuture(o *Object, e *node.Encoder) {
	f, ok := o.aux.(*futureData)
	if !ok {
		e.Write("bn", false, nil)
		return
	}
	f.mu.Lock()
	done, value, failed := f.done, f.value, f.err != nil
	f.mu.Unlock()
	if !done || failed || value == nil {
		e.Write("bn", false, nil)
		return
	}
	e.Write("bn", true, value)
}

func futureWaitForValue(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	return ev.futureValue(self)
}

func futureSetValue(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	f, _ := auxOf[*futureData](self)
	value := ev.assignable(args[0])
	ev.register(value)
	f.set(value, nil)
	return value, nil
}

// futureCreate starts the block and answers the future at once.
func futureCreate(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	var blockArgs []*Object
	if len(args) > 1 {
		blockArgs = ev.rt.objects(arrayOf(args[1]).Items)
	}
	if b, ok := auxOf[*blockData](args[0]); ok && len(b.args) != len(blockArgs) {
		return nil, ev.throwNew("InvalidNumberArgumentsException", len(b.args), len(blockArgs))
	}
	future := self.template.instantiate()
	pin(future)
	defer unpin(future)
	ev.register(future)
	ev.rt.futures.Start(ev, future, args[0], blockArgs)
	return future, nil
}

// threadData is the aux of a Thread. run is the latest run; a thread
// whose run has finished may be started again.
type threadData struct {
	id       uint32
	mu       sync.Mutex
	block    *Object
	run      *futureData
	cancel   context.CancelFunc
	messages []*Object
}

func (td *threadData) current() *futureData {
	td.mu.Lock()
	defer td.mu.Unlock()
	return td.run
}

func threadDefinition() *Definition {
	return &Definition{
		Package: config.ThreadingPackage,
		Name:    config.ThreadClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			o.aux = &threadData{id: o.template.rt.futures.nextThreadID()}
		},
		Mark: markThread,
		Copy: func(dst, src *Object, _ node.Depth) {
			dst.aux = src.aux
		},
		// a decoded thread keeps its block and is idle
		MarshallAux: func(o *Object, e *node.Encoder) {
			var block node.Node
			if td, ok := o.aux.(*threadData); ok {
				td.mu.Lock()
				if td.block != nil {
					block = td.block
				}
				td.mu.Unlock()
			}
			e.Write("n", block)
		},
		UnmarshallAux: func(rt *Runtime, o *Object, d *node.Decoder) error {
			var block node.Node
			if err := d.Read("n", &block); err != nil {
				return err
			}
			td := &threadData{id: rt.futures.nextThreadID()}
			if block != nil {
				td.block = rt.asObject(block)
			}
			o.aux = td
			return nil
		},
		Methods: []MethodSpec{
			{Name: "start", Native: threadStart},
			{Name: "startWith:", Native: threadStart},
			{Name: "wait", Native: threadWait},
			{Name: "kill", Native: threadKill},
			{Name: "result", Native: threadResult},
			{Name: "body", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				td, _ := auxOf[*threadData](self)
				td.mu.Lock()
				defer td.mu.Unlock()
				return ev.orNil(td.block), nil
			}},
			{Name: "id", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				td, _ := auxOf[*threadData](self)
				return ev.rt.NewNumberInt(int64(td.id)), nil
			}},
			{Name: "isRunning?", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				td, _ := auxOf[*threadData](self)
				run := td.current()
				return ev.rt.Bool(run != nil && !run.ready()), nil
			}},
			{Name: config.AsStringMethodName, Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				td, _ := auxOf[*threadData](self)
				return ev.rt.NewString(fmt.Sprintf("#Thread(%d)", td.id)), nil
			}},
			{Name: "addMessage:", Native: threadAddMessage},
			{Name: "getMessage", Native: threadGetMessage},
			{Name: "hasMessage?", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				td, _ := auxOf[*threadData](self)
				td.mu.Lock()
				defer td.mu.Unlock()
				return ev.rt.Bool(len(td.messages) > 0), nil
			}},
		},
		MetaMethods: []MethodSpec{
			{Name: "new:", Native: threadNew, Signature: blockArg},
		},
	}
}

func markThread(o *Object, mark func(node.Node)) {
	td, ok := o.aux.(*threadData)
	if !ok {
		return
	}
	td.mu.Lock()
	defer td.mu.Unlock()
	if td.block != nil {
		mark(td.block)
	}
	for _, m := range td.messages {
		mark(m)
	}
	if td.run != nil {
		td.run.mu.Lock()
		if td.run.value != nil {
			mark(td.run.value)
		}
		td.run.mu.Unlock()
	}
}

func threadNew(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	thread := self.template.instantiate()
	td, _ := thread.aux.(*threadData)
	td.block = args[0]
	pin(thread)
	defer unpin(thread)
	ev.register(thread)
	return thread, nil
}

// threadStart answers self, or no when the thread is already running.
func threadStart(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	td, _ := auxOf[*threadData](self)
	td.mu.Lock()
	if td.block == nil || (td.run != nil && !td.run.ready()) {
		td.mu.Unlock()
		return ev.rt.Bool(false), nil
	}
	block := td.block
	if b, ok := auxOf[*blockData](block); ok && len(b.args) != len(args) {
		td.mu.Unlock()
		return nil, ev.throwNew("InvalidNumberArgumentsException", len(b.args), len(args))
	}
	run := newFutureData()
	ctx, cancel := context.WithCancel(ev.ctx)
	td.run, td.cancel = run, cancel
	td.mu.Unlock()

	ev.rt.futures.Spawn(ctx, cancel, ev, self, run, block, args)
	return self, nil
}

func threadWait(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	td, _ := auxOf[*threadData](self)
	if run := td.current(); run != nil {
		// an uncaught exception ends the run; result answers nil for it
		_, _ = ev.await(run)
	}
	return self, nil
}

// threadKill stops a running thread at its next statement and waits
// for it.
func threadKill(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	td, _ := auxOf[*threadData](self)
	td.mu.Lock()
	run, cancel := td.run, td.cancel
	td.mu.Unlock()
	if run == nil || run.ready() {
		return ev.rt.Bool(false), nil
	}
	cancel()
	_, _ = ev.await(run)
	return ev.rt.Bool(true), nil
}

func threadResult(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	td, _ := auxOf[*threadData](self)
	run := td.current()
	if run == nil || !run.ready() {
		return ev.rt.nilObject, nil
	}
	value, err := run.wait()
	if err != nil {
		return ev.rt.nilObject, nil
	}
	return ev.orNil(value), nil
}

func threadAddMessage(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	td, _ := auxOf[*threadData](self)
	msg := ev.assignable(args[0])
	ev.register(msg)
	td.mu.Lock()
	td.messages = append(td.messages, msg)
	td.mu.Unlock()
	return ev.rt.Bool(true), nil
}

// threadGetMessage answers the oldest message, or nil when there is none.
func threadGetMessage(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
	td, _ := auxOf[*threadData](self)
	td.mu.Lock()
	defer td.mu.Unlock()
	if len(td.messages) == 0 {
		return ev.rt.nilObject, nil
	}
	msg := td.messages[0]
	td.messages[0] = nil
	td.messages = td.messages[1:]
	return msg, nil
}

// conditionData is the aux of a Condition. Waiters queue in arrival
// order; signal wakes the oldest.
type conditionData struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

func (c *conditionData) enqueue() chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	return ch
}

func (c *conditionData) dequeue(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *conditionData) signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) > 0 {
		close(c.waiters[0])
		c.waiters = c.waiters[1:]
	}
}

func (c *conditionData) broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		close(w)
	}
	c.waiters = nil
}

func conditionDefinition() *Definition {
	return &Definition{
		Package: config.ThreadingPackage,
		Name:    config.ConditionClassName,
		Super:   objectFQ,
		Allocate: func(o *Object) {
			o.aux = &conditionData{}
		},
		// copies and decoded conditions have no waiters
		Copy: func(dst, _ *Object, _ node.Depth) {
			dst.aux = &conditionData{}
		},
		MarshallAux: func(*Object, *node.Encoder) {},
		UnmarshallAux: func(_ *Runtime, o *Object, _ *node.Decoder) error {
			o.aux = &conditionData{}
			return nil
		},
		Methods: []MethodSpec{
			{Name: "wait:", Native: conditionWait, Signature: []string{mutexFQ}},
			{Name: "signal", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				c, _ := auxOf[*conditionData](self)
				c.signal()
				return ev.rt.Bool(true), nil
			}},
			{Name: "broadcast", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				c, _ := auxOf[*conditionData](self)
				c.broadcast()
				return ev.rt.Bool(true), nil
			}},
			{Name: config.AsStringMethodName, Native: func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
				return ev.rt.NewString("#Condition"), nil
			}},
		},
	}
}

// conditionWait releases the mutex, sleeps until signalled and takes
// the mutex back. The caller must hold the mutex.
func conditionWait(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	c, _ := auxOf[*conditionData](self)
	l, _ := auxOf[*reentrantLock](args[0])
	ch := c.enqueue()
	held := l.release(ev)
	if held == 0 {
		c.dequeue(ch)
		return nil, ev.throwNew("RuntimeException", "condition wait without holding the mutex")
	}
	release := ev.suspend()
	select {
	case <-ch:
	case <-ev.ctx.Done():
		c.dequeue(ch)
	}
	release()
	if err := ev.lock(l); err != nil {
		return nil, err
	}
	l.restore(ev, held)
	if err := ev.checkpoint(); err != nil {
		return nil, err
	}
	return ev.rt.Bool(true), nil
}
