package transform_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclave-labs/agentscript/internal/ast"
	"github.com/enclave-labs/agentscript/internal/parser"
	"github.com/enclave-labs/agentscript/internal/transform"
)

func mustTransform(t *testing.T, src string, opts transform.Options) string {
	t.Helper()
	out, err := transform.Transform(src, opts)
	require.NoError(t, err)
	// Every rewrite output must stay parsable.
	_, err = parser.Parse(out)
	require.NoError(t, err, "rewritten source must reparse:\n%s", out)
	return out
}

func TestTransform_WrapEntry(t *testing.T) {
	out := mustTransform(t, "const a = 1; return a;", transform.Options{WrapEntry: true})

	assert.True(t, transform.IsWrapped(out))
	prog, err := parser.Parse(out)
	require.NoError(t, err)
	require.Len(t, prog.Body, 1)
	decl := prog.Body[0].(*ast.FuncDecl)
	assert.Equal(t, transform.EntryName, decl.Name)
	assert.True(t, decl.Fn.Async)
	require.Len(t, decl.Fn.Body.Body, 2)
}

func TestTransform_UnwrapInvertsWrap(t *testing.T) {
	src := "const a = 1;\nreturn a + 1;\n"
	wrapped := mustTransform(t, src, transform.Options{WrapEntry: true})
	unwrapped := transform.Unwrap(wrapped)

	first, err := parser.Parse(src)
	require.NoError(t, err)
	second, err := parser.Parse(unwrapped)
	require.NoError(t, err)
	assert.Equal(t, ast.Print(first), ast.Print(second))
}

func TestTransform_UnwrapLeavesPlainSourceAlone(t *testing.T) {
	assert.Equal(t, "return 1;", transform.Unwrap("return 1;"))
	assert.Equal(t, "not ( source", transform.Unwrap("not ( source"))
	assert.False(t, transform.IsWrapped("const a = 1;"))
	assert.False(t, transform.IsWrapped("not ( source"))
}

func TestTransform_RewritesFreeCapabilityReference(t *testing.T) {
	out := mustTransform(t, `const r = await callTool("fetch", {});`,
		transform.Options{RewriteCapabilities: true})

	assert.Contains(t, out, transform.CallToolWrapper)
	assert.NotContains(t, out, "= await callTool(")
}

func TestTransform_LocalShadowIsNotRewritten(t *testing.T) {
	out := mustTransform(t, `
		function scoped(callTool) { return callTool(1); }
		const fn = (callTool) => callTool(2);
	`, transform.Options{RewriteCapabilities: true})

	assert.NotContains(t, out, transform.CallToolWrapper,
		"parameter-bound names must survive untouched")
}

func TestTransform_WhitelistedNameIsNotRewritten(t *testing.T) {
	targets := map[string]string{"console": "__enclave_console"}
	out := mustTransform(t, `console.log("x");`,
		transform.Options{RewriteCapabilities: true, Targets: targets})

	assert.NotContains(t, out, "__enclave_console")
	assert.Contains(t, out, "console.log")
}

func TestTransform_RewriteTargetsAreClosed(t *testing.T) {
	out := mustTransform(t, `someOtherFree(1);`,
		transform.Options{RewriteCapabilities: true})
	assert.Contains(t, out, "someOtherFree(1)")
}

func TestTransform_ForOfLoopRewrite(t *testing.T) {
	out := mustTransform(t, `
		for (const x of xs) {
			total += x;
		}
	`, transform.Options{RewriteLoops: true})

	assert.Contains(t, out, "await "+transform.ForOfWrapper+"(xs, async (x) =>")
}

func TestTransform_ForLoopRewriteKeepsInitScoped(t *testing.T) {
	out := mustTransform(t, `
		for (let i = 0; i < 3; i++) {
			use(i);
		}
	`, transform.Options{RewriteLoops: true})

	// The init declaration must precede the guarded call inside one block so
	// the closures share the binding without leaking it to the outer scope.
	idxDecl := strings.Index(out, "let i = 0;")
	idxGuard := strings.Index(out, "await "+transform.ForWrapper+"(")
	require.GreaterOrEqual(t, idxDecl, 0, "output:\n%s", out)
	require.Greater(t, idxGuard, idxDecl, "output:\n%s", out)
	assert.Contains(t, out, "() => i < 3")
	assert.Contains(t, out, "i++")
}

func TestTransform_ConditionlessForBecomesTrue(t *testing.T) {
	out := mustTransform(t, `for (;;) { step(); }`, transform.Options{RewriteLoops: true})
	assert.Contains(t, out, "() => true")
}

func TestTransform_WhileAndDoWhileRewrite(t *testing.T) {
	out := mustTransform(t, `
		while (pending) { drain(); }
		do { once(); } while (again);
	`, transform.Options{RewriteLoops: true})

	assert.Contains(t, out, "await "+transform.WhileWrapper+"(() => pending, async () =>")
	assert.Contains(t, out, "await "+transform.DoWhileWrapper+"(async () =>")
	assert.Contains(t, out, "() => again")
}

func TestTransform_NestedLoopsEachGetAWrapper(t *testing.T) {
	out := mustTransform(t, `
		for (const row of rows) {
			for (const cell of row) { use(cell); }
		}
	`, transform.Options{RewriteLoops: true})

	assert.Equal(t, 2, strings.Count(out, transform.ForOfWrapper+"("))
}

func TestTransform_LoopsInsideFunctionsAreRewritten(t *testing.T) {
	out := mustTransform(t, `
		function drainAll(queues) {
			for (const q of queues) { q.drain(); }
		}
		const f = () => { while (busy) { spin(); } };
	`, transform.Options{RewriteLoops: true})

	assert.Contains(t, out, transform.ForOfWrapper)
	assert.Contains(t, out, transform.WhileWrapper)
}

func TestTransform_AllRewritesCompose(t *testing.T) {
	out := mustTransform(t, `
		let total = 0;
		for (const id of ids) {
			const r = await callTool("lookup", {id});
			total += r.n;
		}
		return total;
	`, transform.Options{WrapEntry: true, RewriteCapabilities: true, RewriteLoops: true})

	assert.True(t, transform.IsWrapped(out))
	assert.Contains(t, out, transform.CallToolWrapper)
	assert.Contains(t, out, transform.ForOfWrapper)
}

func TestTransform_ParseFailurePropagates(t *testing.T) {
	_, err := transform.Transform("const = ;", transform.Options{WrapEntry: true})
	var perr *parser.Error
	require.ErrorAs(t, err, &perr)
}

func TestWrapperNamesAreReserved(t *testing.T) {
	for _, name := range transform.WrapperNames() {
		assert.True(t, transform.HasReservedPrefix(name), "name %s", name)
	}
	assert.False(t, transform.HasReservedPrefix("callTool"))
	assert.False(t, transform.HasReservedPrefix("guard"))
}

func TestBaseWhitelistCoversDialectGlobals(t *testing.T) {
	wl := transform.BaseWhitelist()
	for _, name := range []string{"console", "JSON", "Math", "undefined"} {
		_, ok := wl[name]
		assert.True(t, ok, "name %s", name)
	}
	if diff := cmp.Diff(13, len(wl)); diff != "" {
		t.Fatalf("whitelist size changed (-want +got):\n%s", diff)
	}
}
