package interp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclave-labs/agentscript/internal/interp"
	"github.com/enclave-labs/agentscript/internal/transform"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/runtime"
)

// runScript transforms raw source the same way the governor does and
// executes it under the given env.
func runScript(t *testing.T, source string, env *runtime.Env) (interface{}, error) {
	t.Helper()
	prepared, err := transform.Transform(source, transform.Options{
		WrapEntry:           true,
		RewriteCapabilities: true,
		RewriteLoops:        true,
	})
	require.NoError(t, err, "transform should accept the test script")

	if env == nil {
		env = &runtime.Env{}
	}
	env.EntryName = transform.EntryName

	it := interp.New()
	defer it.Close()
	return it.Execute(context.Background(), prepared, env)
}

func TestExecute_ArithmeticAndPrecedence(t *testing.T) {
	value, err := runScript(t, `return 2 + 3 * 4;`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(14), value)
}

func TestExecute_TernaryAndLogical(t *testing.T) {
	value, err := runScript(t, `
		const a = null;
		const b = a ?? "fallback";
		return b === "fallback" && 1 < 2 ? "yes" : "no";
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", value)
}

func TestExecute_StringMethods(t *testing.T) {
	value, err := runScript(t, `return ("foo" + "bar").toUpperCase().slice(0, 4);`, nil)
	require.NoError(t, err)
	assert.Equal(t, "FOOB", value)
}

func TestExecute_ClosuresCaptureState(t *testing.T) {
	value, err := runScript(t, `
		function makeCounter() {
			let n = 0;
			return () => {
				n = n + 1;
				return n;
			};
		}
		const next = makeCounter();
		next();
		next();
		return next();
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(3), value)
}

func TestExecute_Destructuring(t *testing.T) {
	value, err := runScript(t, `
		const {a, b = 5, ...rest} = {a: 1, c: 3};
		const [x, , z = 9] = [7, 8];
		return a + b + rest.c + x + z;
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(25), value)
}

func TestExecute_LoopControlThroughGuards(t *testing.T) {
	value, err := runScript(t, `
		let sum = 0;
		for (const x of [1, 2, 3, 4, 5]) {
			if (x === 2) {
				continue;
			}
			if (x === 5) {
				break;
			}
			sum += x;
		}
		return sum;
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(8), value)
}

func TestExecute_ReturnInsideRewrittenLoop(t *testing.T) {
	value, err := runScript(t, `
		function firstEven(xs) {
			for (const x of xs) {
				if (x % 2 === 0) {
					return x;
				}
			}
			return null;
		}
		return firstEven([3, 7, 10, 12]);
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(10), value)
}

func TestExecute_WhileLoopAndCompoundAssign(t *testing.T) {
	value, err := runScript(t, `
		let n = 0;
		let i = 0;
		while (i < 10) {
			n += i;
			i++;
		}
		return n;
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(45), value)
}

func TestExecute_IterationHookCountsAndAborts(t *testing.T) {
	ticks := 0
	env := &runtime.Env{
		OnIteration: func(kind string) error {
			ticks++
			if ticks > 10 {
				return enclaveerrors.NewIterationLimitError(10)
			}
			return nil
		},
	}
	_, err := runScript(t, `while (true) {}`, env)
	var limitErr *enclaveerrors.IterationLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 11, ticks)
}

func TestExecute_ToolCallBridge(t *testing.T) {
	var gotName string
	var gotArgs map[string]interface{}
	env := &runtime.Env{
		OnToolCall: func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			gotName = name
			gotArgs = args
			return map[string]interface{}{"value": "v"}, nil
		},
	}
	value, err := runScript(t, `
		const res = await callTool("lookup", {key: "k"});
		return res.value;
	`, env)
	require.NoError(t, err)
	assert.Equal(t, "v", value)
	assert.Equal(t, "lookup", gotName)
	assert.Equal(t, map[string]interface{}{"key": "k"}, gotArgs)
}

func TestExecute_ToolCallErrorAbortsRun(t *testing.T) {
	env := &runtime.Env{
		OnToolCall: func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			return nil, enclaveerrors.NewToolCallLimitError(1)
		},
	}
	_, err := runScript(t, `
		await callTool("a", {});
		return "unreachable";
	`, env)
	var limitErr *enclaveerrors.ToolCallLimitError
	require.ErrorAs(t, err, &limitErr)
}

func TestExecute_ConsoleOutput(t *testing.T) {
	type line struct {
		level   string
		message string
	}
	var lines []line
	env := &runtime.Env{
		OnConsole: func(level, message string) {
			lines = append(lines, line{level, message})
		},
	}
	_, err := runScript(t, `
		console.log("a", 1);
		console.warn("careful");
		return null;
	`, env)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, line{"log", "a 1"}, lines[0])
	assert.Equal(t, line{"warn", "careful"}, lines[1])
}

func TestExecute_ThrownValueBecomesRuntimeError(t *testing.T) {
	_, err := runScript(t, `throw {code: 42};`, nil)
	var runtimeErr *enclaveerrors.RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	assert.Equal(t, map[string]interface{}{"code": float64(42)}, runtimeErr.Data)
}

func TestExecute_ConstReassignmentFaults(t *testing.T) {
	_, err := runScript(t, `
		const x = 1;
		x = 2;
		return x;
	`, nil)
	var runtimeErr *enclaveerrors.RuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	assert.Contains(t, runtimeErr.Message, "constant")
}

func TestExecute_MemoryLimit(t *testing.T) {
	env := &runtime.Env{MemoryLimit: 4096}
	_, err := runScript(t, `
		let s = "x";
		while (true) {
			s = s + s;
		}
	`, env)
	var memErr *enclaveerrors.MemoryLimitError
	require.ErrorAs(t, err, &memErr)
}

func TestExecute_SparseIndexAssignmentFaultsBeforeAllocating(t *testing.T) {
	env := &runtime.Env{MemoryLimit: 8192}
	_, err := runScript(t, `
		let a = [];
		a[10000000] = 1;
		return a.length;
	`, env)
	var memErr *enclaveerrors.MemoryLimitError
	require.ErrorAs(t, err, &memErr, "the grown backing array must be charged up front")
}

func TestExecute_OversizedStringBuildersFault(t *testing.T) {
	cases := map[string]string{
		"repeat":   `return "x".repeat(100000000);`,
		"padStart": `return "x".padStart(100000000);`,
		"padEnd":   `return "x".padEnd(100000000, "ab");`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			env := &runtime.Env{MemoryLimit: 8192}
			_, err := runScript(t, src, env)
			var memErr *enclaveerrors.MemoryLimitError
			require.ErrorAs(t, err, &memErr)
		})
	}
}

func TestExecute_ContextDeadlinePropagates(t *testing.T) {
	prepared, err := transform.Transform(`while (true) {}`, transform.Options{
		WrapEntry:    true,
		RewriteLoops: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	it := interp.New()
	defer it.Close()
	_, err = it.Execute(ctx, prepared, &runtime.Env{EntryName: transform.EntryName})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecute_BuiltinNamespaces(t *testing.T) {
	value, err := runScript(t, `
		const round = JSON.parse(JSON.stringify({a: [1, 2]}));
		return round.a.length + Math.max(1, 5) + Number("3");
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(10), value)
}

func TestExecute_ArrayMethodChain(t *testing.T) {
	value, err := runScript(t, `
		return [1, 2, 3, 4].map(x => x * 2).filter(x => x > 2).reduce((a, b) => a + b, 0);
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(18), value)
}

func TestExecute_ObjectNamespace(t *testing.T) {
	value, err := runScript(t, `
		const obj = {b: 2, a: 1};
		return Object.keys(obj).join(",");
	`, nil)
	require.NoError(t, err)
	assert.Equal(t, "a,b", value)
}

func TestExecute_DataGlobals(t *testing.T) {
	env := &runtime.Env{
		Globals: map[string]interface{}{
			"cfg": map[string]interface{}{"retries": 3},
		},
	}
	value, err := runScript(t, `return cfg.retries + 1;`, env)
	require.NoError(t, err)
	assert.Equal(t, float64(4), value)
}

func TestExecute_GoFuncGlobal(t *testing.T) {
	env := &runtime.Env{
		Globals: map[string]interface{}{
			"hostAdd": runtime.GoFunc(func(ctx context.Context, args []interface{}) (interface{}, error) {
				total := 0.0
				for _, a := range args {
					total += a.(float64)
				}
				return total, nil
			}),
		},
	}
	value, err := runScript(t, `return hostAdd(1, 2, 3);`, env)
	require.NoError(t, err)
	assert.Equal(t, float64(6), value)
}

func TestExecute_FunctionGlobal(t *testing.T) {
	env := &runtime.Env{
		Globals: map[string]interface{}{
			"double": runtime.FunctionGlobal{Source: `function double(x) { return x * 2; }`},
		},
	}
	value, err := runScript(t, `return double(21);`, env)
	require.NoError(t, err)
	assert.Equal(t, float64(42), value)
}

func TestExecute_ParseFailure(t *testing.T) {
	it := interp.New()
	defer it.Close()
	_, err := it.Execute(context.Background(), `const = ;`, &runtime.Env{})
	var parseErr *enclaveerrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestExecute_AfterCloseFails(t *testing.T) {
	it := interp.New()
	require.NoError(t, it.Close())
	_, err := it.Execute(context.Background(), `return 1;`, &runtime.Env{})
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
