package paramutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclave-labs/agentscript/internal/paramutil"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
)

func TestRequireObject(t *testing.T) {
	args, err := paramutil.RequireObject(map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", args["k"])

	var re *enclaveerrors.RuntimeError
	_, err = paramutil.RequireObject(nil)
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "null")

	_, err = paramutil.RequireObject([]interface{}{1})
	require.ErrorAs(t, err, &re)

	_, err = paramutil.RequireObject(map[string]interface{}{"fn": func() {}})
	require.ErrorAs(t, err, &re)
}

func TestEnsurePlain_AcceptsJSONShapes(t *testing.T) {
	values := []interface{}{
		nil,
		"text",
		true,
		float64(1.5),
		int64(9),
		map[string]interface{}{"nested": []interface{}{float64(1), "two", nil}},
	}
	for _, v := range values {
		assert.NoError(t, paramutil.EnsurePlain(v), "value %#v", v)
	}
}

func TestEnsurePlain_RejectsHostTypesWithPath(t *testing.T) {
	var re *enclaveerrors.RuntimeError

	err := paramutil.EnsurePlain(map[string]interface{}{
		"outer": map[string]interface{}{"cb": func() {}},
	})
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "functions")
	assert.Contains(t, re.Message, "outer.cb")

	err = paramutil.EnsurePlain([]interface{}{float64(1), struct{}{}})
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "[1]")

	err = paramutil.EnsurePlain([]string{"a"})
	require.ErrorAs(t, err, &re, "typed slices are not JSON-shaped")
}

func TestGetRequiredString(t *testing.T) {
	args := map[string]interface{}{"name": "lookup", "n": float64(1)}

	got, err := paramutil.GetRequiredString(args, "name")
	require.NoError(t, err)
	assert.Equal(t, "lookup", got)

	var re *enclaveerrors.RuntimeError
	_, err = paramutil.GetRequiredString(args, "missing")
	require.ErrorAs(t, err, &re)

	_, err = paramutil.GetRequiredString(args, "n")
	require.ErrorAs(t, err, &re)
}

func TestGetOptionalString(t *testing.T) {
	args := map[string]interface{}{"mode": "fast", "n": float64(1)}

	got, ok, err := paramutil.GetOptionalString(args, "mode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fast", got)

	_, ok, err = paramutil.GetOptionalString(args, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = paramutil.GetOptionalString(args, "n")
	assert.Error(t, err)
}

func TestGetOptionalNumber(t *testing.T) {
	args := map[string]interface{}{"f": float64(2.5), "i": 3, "s": "x"}

	got, ok, err := paramutil.GetOptionalNumber(args, "f")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.5, got)

	got, ok, err = paramutil.GetOptionalNumber(args, "i")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(3), got)

	_, ok, err = paramutil.GetOptionalNumber(args, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = paramutil.GetOptionalNumber(args, "s")
	assert.Error(t, err)
}

func TestGetOptionalMap(t *testing.T) {
	args := map[string]interface{}{"opts": map[string]interface{}{"a": float64(1)}, "s": "x"}

	got, ok, err := paramutil.GetOptionalMap(args, "opts")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(1), got["a"])

	_, ok, err = paramutil.GetOptionalMap(args, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = paramutil.GetOptionalMap(args, "s")
	assert.Error(t, err)
}
