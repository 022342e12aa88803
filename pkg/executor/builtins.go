package executor

import "github.com/dts/scheduler/pkg/protocol"

// registerBuiltins installs the handlers the executor ships with out of the
// box, matching the original implementation's single example registration.
func registerBuiltins(registry *protocol.FunctionRegistry) {
	registry.Register("fib", fib)
}

// fib computes the n-th Fibonacci number, polling the cancellation flag once
// per loop iteration the way every long-running handler is expected to.
func fib(params map[string]any, task *protocol.Task) (map[string]any, error) {
	n := intParam(params, "n", 0)
	if n < 0 {
		return nil, protocol.NewKindedError(protocol.KindInvariant, "negative input for fib")
	}
	if n <= 1 {
		return map[string]any{"result": float64(n)}, nil
	}

	a, b := 0, 1
	for i := 2; i <= n; i++ {
		if task.IsCancelled() {
			return map[string]any{"result": "cancelled"}, nil
		}
		a, b = b, a+b
	}
	return map[string]any{"result": float64(b)}, nil
}

func intParam(params map[string]any, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
