package evaluator

import (
	"errors"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

// evalIf walks the chain; a condition selects its branch only when it
// is the yes object itself.
func (ev *Evaluator) evalIf(n *ast.If) (*Object, error) {
	for link := n; link != nil; {
		if link.Condition == nil {
			return ev.inScope(link.Statement)
		}
		cond, err := ev.eval(link.Condition)
		if err != nil {
			return nil, err
		}
		if cond == ev.rt.yes {
			return ev.inScope(link.Statement)
		}
		next, _ := link.Next.(*ast.If)
		link = next
	}
	return ev.rt.nilObject, nil
}

func (ev *Evaluator) loopContinues(cond node.Node) (bool, error) {
	if cond == nil {
		return true, nil
	}
	value, err := ev.eval(cond)
	if err != nil {
		return false, err
	}
	return value != ev.rt.nilObject && value != ev.rt.no, nil
}

// loop runs body while the condition holds, with increment after each
// pass. The result is the last body value.
func (ev *Evaluator) loop(cond, body, increment node.Node) (*Object, error) {
	st := ev.top()
	st.loops++
	defer func() { st.loops-- }()

	result := ev.rt.nilObject
	for {
		if err := ev.checkpoint(); err != nil {
			return nil, err
		}
		ok, err := ev.loopContinues(cond)
		if err != nil {
			return nil, err
		}
		if !ok {
			return result, nil
		}
		value, err := ev.inScope(body)
		if errors.Is(err, errBreak) {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		result = value
		if increment != nil {
			if _, err := ev.eval(increment); err != nil {
				return nil, err
			}
		}
	}
}

func (ev *Evaluator) evalWhile(n *ast.While) (*Object, error) {
	ev.pushScope(scope.New())
	defer ev.popScope()
	return ev.loop(n.Condition, n.Statement, nil)
}

func (ev *Evaluator) evalFor(n *ast.For) (*Object, error) {
	ev.pushScope(scope.New())
	defer ev.popScope()
	if n.Initial != nil {
		if _, err := ev.eval(n.Initial); err != nil {
			return nil, err
		}
	}
	return ev.loop(n.Condition, n.Statement, n.Increment)
}

// evalTry runs the body in the current scope. The first catch whose
// type matches binds the exception in a fresh scope.
func (ev *Evaluator) evalTry(n *ast.TryBlock) (*Object, error) {
	result, err := ev.eval(n.Statement)
	var ex *Exception
	if !errors.As(err, &ex) {
		return result, err
	}
	for _, c := range n.Catches {
		catch, ok := c.(*ast.CatchBlock)
		if !ok {
			continue
		}
		matched, matchErr := ev.catches(catch, ex.Object)
		if matchErr != nil {
			return nil, matchErr
		}
		if !matched {
			continue
		}
		sc := scope.New()
		sc.Set(catch.Name, ex.Object, scope.NoFlags)
		ev.pushScope(sc)
		value, err := ev.eval(catch.Statement)
		ev.popScope()
		return value, err
	}
	return nil, err
}

func (ev *Evaluator) catches(catch *ast.CatchBlock, thrown *Object) (bool, error) {
	if catch.Type == nil {
		return true, nil
	}
	id, ok := catch.Type.(*ast.Identifier)
	if !ok {
		return false, ev.throwNew("RuntimeException", "catch type is not a class name")
	}
	t := ev.lookupClass(id.Name)
	if t == nil {
		return false, ev.throwNew("UnidentifiedClassException", id.Name)
	}
	if t.FullName() == exceptionFQ {
		return true, nil
	}
	return thrown.template.IsKindOf(t), nil
}

func (ev *Evaluator) evalThrow(n *ast.Throw) (*Object, error) {
	value, err := ev.eval(n.Value)
	if err != nil {
		return nil, err
	}
	return nil, ev.throw(value)
}

func (ev *Evaluator) evalReturn(n *ast.Return) (*Object, error) {
	if !ev.top().callable {
		return nil, ev.throwNew("ReturnWithNoCallStackException")
	}
	value, err := ev.eval(n.Value)
	if err != nil {
		return nil, err
	}
	return nil, &ReturnSignal{Value: value}
}

// evalSynchronized holds the target's reentrant lock for the body.
func (ev *Evaluator) evalSynchronized(n *ast.Synchronized) (*Object, error) {
	target, err := ev.eval(n.Target)
	if err != nil {
		return nil, err
	}
	if target == ev.rt.nilObject {
		return nil, ev.throwNew("InvalidSynchronizerException", target)
	}
	lock := target.reentrant()
	if err := ev.lock(lock); err != nil {
		return nil, err
	}
	defer lock.Unlock(ev)
	return ev.inScope(n.Statement)
}

// lock acquires l, going down for the collector while it blocks.
func (ev *Evaluator) lock(l *reentrantLock) error {
	if l.TryLock(ev) {
		return nil
	}
	release := ev.suspend()
	err := l.Lock(ev)
	release()
	if err != nil {
		return ev.throwNew("DeadlockException")
	}
	return nil
}

// acquire takes the locks a method's flags ask for and returns their
// release.
func (ev *Evaluator) acquire(self *Object, flags scope.Flags) (func(), error) {
	switch {
	case flags.Has(scope.Synchronized):
		l := self.reentrant()
		if err := ev.lock(l); err != nil {
			return nil, err
		}
		return func() { l.Unlock(ev) }, nil

	case flags.Has(scope.SynchronizedWrite):
		if ev.readLocks[self] > 0 {
			return nil, ev.throwNew("DeadlockException")
		}
		if ev.writeLocks[self] == 0 && !self.rw.TryLock() {
			release := ev.suspend()
			self.rw.Lock()
			release()
		}
		ev.writeLocks[self]++
		return func() {
			if ev.writeLocks[self]--; ev.writeLocks[self] == 0 {
				delete(ev.writeLocks, self)
				self.rw.Unlock()
			}
		}, nil

	case flags.Has(scope.SynchronizedRead):
		if ev.writeLocks[self] > 0 {
			return func() {}, nil
		}
		if ev.readLocks[self] == 0 && !self.rw.TryRLock() {
			release := ev.suspend()
			self.rw.RLock()
			release()
		}
		ev.readLocks[self]++
		return func() {
			if ev.readLocks[self]--; ev.readLocks[self] == 0 {
				delete(ev.readLocks, self)
				self.rw.RUnlock()
			}
		}, nil
	}
	return func() {}, nil
}

// evalFunctionUpdate adds a specific case to a function: f(0) = 1.
func (ev *Evaluator) evalFunctionUpdate(n *ast.FunctionUpdate) (*Object, error) {
	id, ok := n.Identifier.(*ast.Identifier)
	if !ok {
		return nil, ev.throwNew("RuntimeException", "function update needs a name")
	}
	fn, err := ev.lookup(id)
	if err != nil {
		return nil, err
	}
	data, ok := auxOf[*functionData](fn)
	if !ok {
		return nil, ev.throwNew("InvalidCastException", fn.template.ShortName(), config.FunctionClassName)
	}
	if len(data.args) == 0 {
		return nil, ev.throwNew("OperationOnFunctionOfNoArgumentsException", id.Name)
	}
	if len(n.Arguments) != len(data.args) {
		return nil, ev.throwNew("InvalidNumberArgumentsException", len(data.args), len(n.Arguments))
	}
	values, err := ev.evalArguments(n.Arguments)
	if err != nil {
		return nil, err
	}
	defer unpin(values...)
	cases := make([]*Object, len(values))
	for i, v := range values {
		cases[i] = ev.assignable(v)
	}
	if err := ev.addFunctionCase(data, cases, n.Arithmetic); err != nil {
		return nil, err
	}
	return fn, nil
}
