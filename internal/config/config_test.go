package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclave-labs/agentscript/internal/config"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestPresets_MonotonicallyLoosen(t *testing.T) {
	levels := config.Levels()
	require.Equal(t, []string{"STRICT", "SECURE", "STANDARD", "PERMISSIVE"}, levels)

	prev, err := config.PresetFor(levels[0])
	require.NoError(t, err)
	for _, level := range levels[1:] {
		cur, err := config.PresetFor(level)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cur.Timeout, prev.Timeout, "level %s", level)
		assert.GreaterOrEqual(t, cur.MemoryLimit, prev.MemoryLimit, "level %s", level)
		assert.GreaterOrEqual(t, cur.MaxToolCalls, prev.MaxToolCalls, "level %s", level)
		assert.GreaterOrEqual(t, cur.MaxIterations, prev.MaxIterations, "level %s", level)
		prev = cur
	}
}

func TestPresetFor_UnknownLevel(t *testing.T) {
	_, err := config.PresetFor("EXTREME")
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestResolve_NoOverridesInheritsPreset(t *testing.T) {
	limits, err := config.DefaultProfile().Resolve()
	require.NoError(t, err)

	preset, err := config.PresetFor(config.LevelStandard)
	require.NoError(t, err)
	preset.ValidateScripts = true
	preset.TransformScripts = true
	assert.Equal(t, preset, limits)
}

func TestResolve_ExplicitFieldsOverridePreset(t *testing.T) {
	tighter := &config.Profile{
		SchemaVersion:    "1.0.0",
		Level:            config.LevelStandard,
		Timeout:          "10s",
		MemoryLimitBytes: int64Ptr(1 << 20),
		MaxToolCalls:     intPtr(5),
		MaxIterations:    intPtr(1000),
	}
	limits, err := tighter.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, limits.Timeout)
	assert.Equal(t, int64(1<<20), limits.MemoryLimit)
	assert.Equal(t, 5, limits.MaxToolCalls)
	assert.Equal(t, 1000, limits.MaxIterations)

	// Explicit fields win in the loosening direction too.
	looser := &config.Profile{
		SchemaVersion:       "1.0.0",
		Level:               config.LevelStrict,
		Timeout:             "60s",
		MemoryLimitBytes:    int64Ptr(1 << 30),
		MaxToolCalls:        intPtr(1000),
		SanitizeStackTraces: boolPtr(false),
	}
	limits, err = looser.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, limits.Timeout)
	assert.Equal(t, int64(1<<30), limits.MemoryLimit)
	assert.Equal(t, 1000, limits.MaxToolCalls)
	assert.False(t, limits.SanitizeStackTraces)

	preset, err := config.PresetFor(config.LevelStrict)
	require.NoError(t, err)
	assert.Equal(t, preset.MaxIterations, limits.MaxIterations, "unset fields still inherit")
}

func TestResolve_PipelineToggles(t *testing.T) {
	limits, err := config.DefaultProfile().Resolve()
	require.NoError(t, err)
	assert.True(t, limits.ValidateScripts)
	assert.True(t, limits.TransformScripts)

	profile := &config.Profile{
		SchemaVersion: "1.0.0",
		Level:         config.LevelStandard,
		Validate:      boolPtr(false),
		Transform:     boolPtr(false),
	}
	limits, err = profile.Resolve()
	require.NoError(t, err)
	assert.False(t, limits.ValidateScripts)
	assert.False(t, limits.TransformScripts)
}

func TestResolve_RejectsNonPositiveOverrides(t *testing.T) {
	cases := []*config.Profile{
		{SchemaVersion: "1.0.0", Level: config.LevelStandard, Timeout: "0s"},
		{SchemaVersion: "1.0.0", Level: config.LevelStandard, Timeout: "banana"},
		{SchemaVersion: "1.0.0", Level: config.LevelStandard, MemoryLimitBytes: int64Ptr(0)},
		{SchemaVersion: "1.0.0", Level: config.LevelStandard, MaxToolCalls: intPtr(-1)},
		{SchemaVersion: "1.0.0", Level: config.LevelStandard, MaxIterations: intPtr(0)},
	}
	for _, profile := range cases {
		_, err := profile.Resolve()
		var cfgErr *enclaveerrors.ConfigError
		require.ErrorAs(t, err, &cfgErr, "profile: %+v", profile)
	}
}

func TestLoadProfile_Valid(t *testing.T) {
	yaml := []byte(`
schemaVersion: "1.0.0"
level: SECURE
timeout: "5s"
max_tool_calls: 10
validate: true
transform: true
custom_globals:
  - tenantConfig
  - helpers
`)
	profile, err := config.LoadProfile(yaml, "test.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.LevelSecure, profile.Level)
	assert.Equal(t, "5s", profile.Timeout)
	require.NotNil(t, profile.MaxToolCalls)
	assert.Equal(t, 10, *profile.MaxToolCalls)
	require.NotNil(t, profile.Validate)
	assert.True(t, *profile.Validate)
	require.NotNil(t, profile.Transform)
	assert.True(t, *profile.Transform)
	assert.Equal(t, []string{"tenantConfig", "helpers"}, profile.CustomGlobals)
	assert.Equal(t, "test.yaml", profile.FilePath)
}

func TestLoadProfile_RejectsUnknownFields(t *testing.T) {
	yaml := []byte(`
schemaVersion: "1.0.0"
level: STANDARD
max_tool_cals: 10
`)
	_, err := config.LoadProfile(yaml, "typo.yaml")
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadProfile_RejectsIncompatibleSchemaVersion(t *testing.T) {
	yaml := []byte(`
schemaVersion: "2.0.0"
level: STANDARD
`)
	_, err := config.LoadProfile(yaml, "future.yaml")
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "not compatible")
}

func TestLoadProfile_RejectsEmptyAndMissingVersion(t *testing.T) {
	_, err := config.LoadProfile(nil, "empty.yaml")
	var cfgErr *enclaveerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateProfileStructure_CustomGlobals(t *testing.T) {
	cases := map[string][]string{
		"bad identifier":  {"not valid!"},
		"reserved prefix": {"__enclave_helper"},
		"guard prefix":    {"__guard_x"},
		"duplicate":       {"cfg", "cfg"},
	}
	for label, globals := range cases {
		profile := &config.Profile{SchemaVersion: "1.0.0", Level: config.LevelStandard, CustomGlobals: globals}
		errs := config.ValidateProfileStructure(profile)
		assert.NotEmpty(t, errs, "%s: %v", label, globals)
	}

	clean := &config.Profile{SchemaVersion: "1.0.0", Level: config.LevelStandard, CustomGlobals: []string{"cfg", "$helpers", "_private"}}
	assert.Empty(t, config.ValidateProfileStructure(clean))
}

func TestValidateProfileStructure_Level(t *testing.T) {
	assert.NotEmpty(t, config.ValidateProfileStructure(&config.Profile{SchemaVersion: "1.0.0"}))
	assert.NotEmpty(t, config.ValidateProfileStructure(&config.Profile{SchemaVersion: "1.0.0", Level: "LOOSE"}))
}
