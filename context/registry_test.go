package context

import (
	"errors"
	"testing"

	"github.com/govm-net/helloworld/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, DBContextType, r.DefaultContextType())

	var got map[string]any
	require.NoError(t, r.Register("fake", func(params map[string]any) (types.BlockchainContext, error) {
		got = params
		return nil, nil
	}))
	assert.Error(t, r.Register("fake", func(map[string]any) (types.BlockchainContext, error) { return nil, nil }))
	assert.Error(t, r.Register("nil", nil))

	_, err := r.Get("fake", map[string]any{"db_path": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", got["db_path"])

	_, err = r.Get("missing", nil)
	assert.Error(t, err)

	assert.Error(t, r.SetDefault("missing"))
	require.NoError(t, r.SetDefault("fake"))
	assert.Equal(t, ContextType("fake"), r.DefaultContextType())
	_, err = r.GetDefault(nil)
	assert.NoError(t, err)

	assert.Equal(t, []ContextType{"fake"}, r.ListRegistered())
}

func TestRegistryConstructorError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register("broken", func(map[string]any) (types.BlockchainContext, error) {
		return nil, boom
	}))

	_, err := r.Get("broken", nil)
	assert.ErrorIs(t, err, boom)
}
