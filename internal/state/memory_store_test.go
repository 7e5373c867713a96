package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclave-labs/agentscript/internal/config"
	"github.com/enclave-labs/agentscript/internal/state"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	store := state.NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Set("region", "eu-west-1"))
	got, ok := store.Get("region")
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", got)

	_, ok = store.Get("absent")
	assert.False(t, ok)

	require.NoError(t, store.Delete("region"))
	assert.ErrorIs(t, store.Delete("region"), state.ErrKeyNotFound)
}

func TestMemoryStore_GetReturnsDeepCopies(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.Set("cfg", map[string]interface{}{"mode": "a"}))

	first, _ := store.Get("cfg")
	first.(map[string]interface{})["mode"] = "mutated"

	second, _ := store.Get("cfg")
	assert.Equal(t, "a", second.(map[string]interface{})["mode"])
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.Load(map[string]interface{}{
		"cfg":  map[string]interface{}{"retries": float64(3)},
		"tags": []interface{}{"a", "b"},
	}))

	snap := store.Snapshot()
	snap["cfg"].(map[string]interface{})["retries"] = float64(99)
	snap["tags"].([]interface{})[0] = "z"

	fresh := store.Snapshot()
	assert.Equal(t, float64(3), fresh["cfg"].(map[string]interface{})["retries"])
	assert.Equal(t, "a", fresh["tags"].([]interface{})[0])
}

func TestMemoryStore_DirectReferenceModeShares(t *testing.T) {
	store := state.NewMemoryStoreWithPolicy(config.GlobalsPolicy{
		AccessMode: config.GlobalsAccessUnsafeDirectReference,
	})
	shared := map[string]interface{}{"n": float64(1)}
	require.NoError(t, store.Set("shared", shared))

	got, _ := store.Get("shared")
	got.(map[string]interface{})["n"] = float64(2)

	assert.Equal(t, float64(2), shared["n"], "direct mode hands out the live value")
	snap := store.Snapshot()
	assert.Equal(t, float64(2), snap["shared"].(map[string]interface{})["n"])
}

func TestMemoryStore_LoadReplacesAndCopiesTopLevel(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.Set("old", 1))

	source := map[string]interface{}{"fresh": "v"}
	require.NoError(t, store.Load(source))

	_, ok := store.Get("old")
	assert.False(t, ok)

	// Adding to the caller's map after Load must not show up in the store.
	source["extra"] = "x"
	_, ok = store.Get("extra")
	assert.False(t, ok)

	require.NoError(t, store.Load(nil))
	assert.Empty(t, store.Snapshot())
}
