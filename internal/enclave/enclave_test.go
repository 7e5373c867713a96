package enclave_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intCapability "github.com/enclave-labs/agentscript/internal/capability"
	"github.com/enclave-labs/agentscript/internal/config"
	"github.com/enclave-labs/agentscript/internal/enclave"
	"github.com/enclave-labs/agentscript/internal/logger"
	enclavev1 "github.com/enclave-labs/agentscript/pkg/enclave/v1"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/capability"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/runtime"
)

func intPtr(v int) *int          { return &v }
func int64Ptr(v int64) *int64    { return &v }
func boolPtr(v bool) *bool       { return &v }

func testProfile() *config.Profile {
	return &config.Profile{SchemaVersion: "1.0.0", Level: config.LevelStandard}
}

func setupTestEnclave(t *testing.T, profile *config.Profile, globals map[string]interface{}, opts ...enclavev1.EnclaveOption) *enclave.Enclave {
	t.Helper()
	log := logger.NewLogger("debug", "text", os.Stderr)
	enc, err := enclave.New(log, profile, globals, opts...)
	require.NoError(t, err)
	require.NotNil(t, enc)
	t.Cleanup(func() { enc.Close() })
	return enc
}

func TestRun_SuccessfulScript(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	result, err := enc.Run(context.Background(), `
		const xs = [1, 2, 3];
		let sum = 0;
		for (const x of xs) {
			sum += x;
		}
		return sum;
	`)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, float64(6), result.Value)
	assert.Nil(t, result.Error)
	assert.NotEmpty(t, result.Stats.RunID)
	assert.Equal(t, 3, result.Stats.IterationCount)
}

func TestRun_ValidationRejectsEval(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	result, err := enc.Run(context.Background(), `return eval("1 + 1");`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.False(t, result.Success)
	assert.Equal(t, enclaveerrors.CodeValidation, result.Error.Code)
}

func TestRun_ValidationRejectsUnknownFreeName(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	result, err := enc.Run(context.Background(), `return mysteryGlobal + 1;`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeValidation, result.Error.Code)
}

func TestRun_ParseFailure(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	result, err := enc.Run(context.Background(), `const = broken;`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeParse, result.Error.Code)
}

func TestRun_IterationLimit(t *testing.T) {
	profile := testProfile()
	profile.MaxIterations = intPtr(50)
	enc := setupTestEnclave(t, profile, nil)

	result, err := enc.Run(context.Background(), `while (true) {}`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeIterationLimit, result.Error.Code)
	assert.Equal(t, 51, result.Stats.IterationCount)
}

func TestRun_Timeout(t *testing.T) {
	profile := &config.Profile{SchemaVersion: "1.0.0", Level: config.LevelPermissive, Timeout: "50ms"}
	enc := setupTestEnclave(t, profile, nil)

	result, err := enc.Run(context.Background(), `while (true) {}`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeTimeout, result.Error.Code)
}

func TestRun_ToolCallLimit(t *testing.T) {
	profile := testProfile()
	profile.MaxToolCalls = intPtr(2)
	registry := intCapability.NewStaticRegistry()
	require.NoError(t, registry.Register("ping", capability.HandlerFunc(
		func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			return "pong", nil
		})))
	enc := setupTestEnclave(t, profile, nil, enclavev1.WithCapabilityRegistry(registry))

	result, err := enc.Run(context.Background(), `
		let i = 0;
		while (i < 5) {
			await callTool("ping", {});
			i++;
		}
		return i;
	`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeToolCallLimit, result.Error.Code)
	assert.Equal(t, 3, result.Stats.ToolCallCount)
}

func TestRun_MemoryLimit(t *testing.T) {
	profile := &config.Profile{
		SchemaVersion:    "1.0.0",
		Level:            config.LevelStrict,
		MemoryLimitBytes: int64Ptr(8 * 1024),
	}
	enc := setupTestEnclave(t, profile, nil)

	result, err := enc.Run(context.Background(), `
		let s = "x";
		while (true) {
			s = s + s;
		}
	`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeMemoryLimit, result.Error.Code)
}

func TestRun_CapabilityDispatch(t *testing.T) {
	registry := intCapability.NewStaticRegistry()
	var gotArgs map[string]interface{}
	require.NoError(t, registry.Register("fetch", capability.HandlerFunc(
		func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			gotArgs = args
			return map[string]interface{}{"status": float64(200)}, nil
		})))
	enc := setupTestEnclave(t, testProfile(), nil, enclavev1.WithCapabilityRegistry(registry))

	result, err := enc.Run(context.Background(), `
		const res = await callTool("fetch", {url: "https://example.test"});
		return res.status;
	`)
	require.NoError(t, err)
	require.True(t, result.Success, "run should succeed: %+v", result.Error)
	assert.Equal(t, float64(200), result.Value)
	assert.Equal(t, map[string]interface{}{"url": "https://example.test"}, gotArgs)
	assert.Equal(t, 1, result.Stats.ToolCallCount)
}

func TestRunWithHandler_RoutesCallsToGivenHandler(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	var gotName string
	handler := capability.HandlerFunc(
		func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			gotName = name
			return map[string]interface{}{"ok": true}, nil
		})

	result, err := enc.RunWithHandler(context.Background(), `
		const res = await callTool("lookup", {id: 7});
		return res.ok;
	`, handler)
	require.NoError(t, err)
	require.True(t, result.Success, "run should succeed: %+v", result.Error)
	assert.Equal(t, true, result.Value)
	assert.Equal(t, "lookup", gotName)
	assert.Equal(t, 1, result.Stats.ToolCallCount)

	// Without a per-run handler the registry decides again.
	fallback, err := enc.Run(context.Background(), `return await callTool("lookup", {});`)
	require.NoError(t, err)
	require.NotNil(t, fallback.Error)
	assert.Equal(t, "CapabilityNotFoundError", fallback.Error.Name)
}

func TestRunWithHandler_NilHandlerUsesRegistry(t *testing.T) {
	registry := intCapability.NewStaticRegistry()
	require.NoError(t, registry.Register("ping", capability.HandlerFunc(
		func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			return "pong", nil
		})))
	enc := setupTestEnclave(t, testProfile(), nil, enclavev1.WithCapabilityRegistry(registry))

	result, err := enc.RunWithHandler(context.Background(), `return await callTool("ping", {});`, nil)
	require.NoError(t, err)
	require.True(t, result.Success, "run should succeed: %+v", result.Error)
	assert.Equal(t, "pong", result.Value)
}

func TestRun_ValidationDisabled(t *testing.T) {
	profile := testProfile()
	profile.Validate = boolPtr(false)
	enc := setupTestEnclave(t, profile, nil)

	// An unknown free name reaches the runtime instead of being rejected
	// statically.
	result, err := enc.Run(context.Background(), `return mysteryGlobal + 1;`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeRuntime, result.Error.Code)
	assert.Contains(t, result.Error.Message, "mysteryGlobal")
}

func TestRun_TransformDisabledRunsSourceAsSubmitted(t *testing.T) {
	profile := testProfile()
	profile.Transform = boolPtr(false)
	globals := map[string]interface{}{
		"totals": map[string]interface{}{"sum": float64(0)},
	}
	enc := setupTestEnclave(t, profile, globals)

	// No entry wrap: top-level statements execute directly, and the raw
	// loop still reports iterations.
	result, err := enc.Run(context.Background(), `
		for (const x of [1, 2, 3]) {
			totals.sum += x;
		}
	`)
	require.NoError(t, err)
	require.True(t, result.Success, "run should succeed: %+v", result.Error)
	assert.Nil(t, result.Value)
	assert.Equal(t, 3, result.Stats.IterationCount)
}

func TestRun_LooserExplicitCeilingIsHonored(t *testing.T) {
	profile := &config.Profile{
		SchemaVersion: "1.0.0",
		Level:         config.LevelStrict,
		MaxIterations: intPtr(50_000),
	}
	enc := setupTestEnclave(t, profile, nil)

	result, err := enc.Run(context.Background(), `
		let n = 0;
		for (let i = 0; i < 20000; i++) {
			n++;
		}
		return n;
	`)
	require.NoError(t, err)
	require.True(t, result.Success, "run should succeed: %+v", result.Error)
	assert.Equal(t, float64(20000), result.Value)
}

func TestRun_UnknownCapability(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	result, err := enc.Run(context.Background(), `return await callTool("nope", {});`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeRuntime, result.Error.Code)
	assert.Equal(t, "CapabilityNotFoundError", result.Error.Name)
}

func TestRun_GlobalsAreIsolatedBetweenRuns(t *testing.T) {
	globals := map[string]interface{}{
		"cfg": map[string]interface{}{"mode": "initial"},
	}
	enc := setupTestEnclave(t, testProfile(), globals)

	first, err := enc.Run(context.Background(), `
		cfg.mode = "mutated";
		return cfg.mode;
	`)
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, "mutated", first.Value)

	second, err := enc.Run(context.Background(), `return cfg.mode;`)
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, "initial", second.Value, "one run's mutation must not leak into the next")
}

func TestRun_FunctionGlobal(t *testing.T) {
	globals := map[string]interface{}{
		"double": runtime.FunctionGlobal{Source: `function double(x) { return x * 2; }`},
	}
	enc := setupTestEnclave(t, testProfile(), globals)

	result, err := enc.Run(context.Background(), `return double(21);`)
	require.NoError(t, err)
	require.True(t, result.Success, "run should succeed: %+v", result.Error)
	assert.Equal(t, float64(42), result.Value)
}

func TestRun_GoFuncGlobalRequiresOptIn(t *testing.T) {
	log := logger.NewLogger("error", "text", os.Stderr)
	globals := map[string]interface{}{
		"hostFn": runtime.GoFunc(func(ctx context.Context, args []interface{}) (interface{}, error) {
			return nil, nil
		}),
	}

	_, err := enclave.New(log, testProfile(), globals)
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	profile := testProfile()
	profile.AllowFunctionsInGlobals = boolPtr(true)
	enc := setupTestEnclave(t, profile, map[string]interface{}{
		"hostFn": runtime.GoFunc(func(ctx context.Context, args []interface{}) (interface{}, error) {
			return "ok", nil
		}),
	})
	result, err := enc.Run(context.Background(), `return hostFn();`)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "ok", result.Value)
}

func TestNew_RejectsInvalidGlobals(t *testing.T) {
	log := logger.NewLogger("error", "text", os.Stderr)

	_, err := enclave.New(log, testProfile(), map[string]interface{}{
		"__enclave_backdoor": "x",
	})
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = enclave.New(log, testProfile(), map[string]interface{}{
		"leaky": func() {},
	})
	require.ErrorAs(t, err, &cfgErr)
}

func TestNew_RejectsInvalidFunctionGlobal(t *testing.T) {
	log := logger.NewLogger("error", "text", os.Stderr)
	_, err := enclave.New(log, testProfile(), map[string]interface{}{
		"bad": runtime.FunctionGlobal{Source: `function bad() { return eval("1"); }`},
	})
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRun_RuntimeFaultSanitizesHostPaths(t *testing.T) {
	profile := &config.Profile{SchemaVersion: "1.0.0", Level: config.LevelStrict}
	enc := setupTestEnclave(t, profile, nil)

	result, err := enc.Run(context.Background(), `throw "failed reading /etc/enclave/secret.conf";`)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, enclaveerrors.CodeRuntime, result.Error.Code)
	assert.NotContains(t, result.Error.Message, "/etc/enclave/secret.conf")
}

func TestValidate_ReportsIssuesWithoutExecuting(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	report, err := enc.Validate(`return eval("1");`)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotEmpty(t, report.Issues)

	report, err = enc.Validate(`return 1 + 1;`)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Issues)
}

func TestClose_IsIdempotentAndStopsRuns(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())

	_, err := enc.Run(context.Background(), `return 1;`)
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRun_WrappedSourceIsNotDoubleWrapped(t *testing.T) {
	enc := setupTestEnclave(t, testProfile(), nil)

	first, err := enc.Run(context.Background(), `return 7;`)
	require.NoError(t, err)
	require.True(t, first.Success)

	// Feeding already-wrapped output back through Run must behave the same.
	wrapped := `async function __enclave_main() { return 7; }`
	second, err := enc.Run(context.Background(), wrapped)
	require.NoError(t, err)
	require.True(t, second.Success, "wrapped source should not be rejected: %+v", second.Error)
	assert.Equal(t, first.Value, second.Value)
}
