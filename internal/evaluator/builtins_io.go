package evaluator

import (
	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
)

func ioDefinition() *Definition {
	return &Definition{
		Package: config.IOPackage,
		Name:    config.IOClassName,
		Super:   objectFQ,
		Flags:   ast.ClassSingleton,
		Methods: []MethodSpec{
			{Name: "put:", Native: ioPut("")},
			{Name: "putLine:", Native: ioPut("\n")},
			{Name: "newLine", Native: func(ev *Evaluator, self *Object, _ []*Object) (*Object, error) {
				if err := ev.rt.write("\n"); err != nil {
					return nil, ev.throwNew("FileWriteException", "stdout")
				}
				return self, nil
			}},
		},
	}
}

func ioPut(suffix string) NativeFunc {
	return func(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
		text, err := ev.stringValue(args[0])
		if err != nil {
			return nil, err
		}
		if err := ev.rt.write(text + suffix); err != nil {
			ev.logger.Warn("write failed", "error", err)
			return nil, ev.throwNew("FileWriteException", "stdout")
		}
		return self, nil
	}
}

func kernelDefinition() *Definition {
	return &Definition{
		Package: config.CorePackage,
		Name:    config.KernelClassName,
		Super:   objectFQ,
		Flags:   ast.ClassSingleton,
		Methods: []MethodSpec{
			{Name: "assert:", Native: kernelAssert},
			{Name: "collectGarbage", Native: kernelCollectGarbage},
			{Name: "eval:", Native: kernelEval, Signature: stringArg},
			{Name: "marshall:", Native: func(ev *Evaluator, _ *Object, args []*Object) (*Object, error) {
				return objectMarshall(ev, ev.orNil(args[0]), nil)
			}},
			{Name: "unmarshall:", Native: kernelUnmarshall, Signature: stringArg},
			{Name: "version", Native: func(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
				return ev.rt.NewString(config.Version), nil
			}},
		},
	}
}

func kernelAssert(ev *Evaluator, self *Object, args []*Object) (*Object, error) {
	if ev.orNil(args[0]) != ev.rt.yes {
		return nil, ev.throwNew("AssertFailedException", args[0])
	}
	return ev.rt.yes, nil
}

// kernelCollectGarbage runs a collection and answers the number of
// objects swept. The evaluator is down while it waits.
func kernelCollectGarbage(ev *Evaluator, _ *Object, _ []*Object) (*Object, error) {
	release := ev.suspend()
	swept, err := ev.rt.gc.Collect()
	release()
	if err != nil {
		return nil, ev.wrapError(err)
	}
	ev.logger.Debug("collection requested", "swept", swept)
	return ev.rt.NewNumberInt(int64(swept)), nil
}

func kernelEval(ev *Evaluator, _ *Object, args []*Object) (*Object, error) {
	return ev.EvalString(ev.text(args[0]), "<eval>")
}

func kernelUnmarshall(ev *Evaluator, _ *Object, args []*Object) (*Object, error) {
	o, err := ev.rt.Unmarshall([]byte(ev.text(args[0])))
	if err != nil {
		return nil, ev.throwNew("UnmarshallFailureException", err.Error())
	}
	return o, nil
}
