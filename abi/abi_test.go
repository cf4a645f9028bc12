package abi

import (
	"encoding/json"
	"testing"

	"github.com/govm-net/helloworld/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromExports(t *testing.T) {
	abi, err := FromExports([]string{"memory", "hello_world.say_hello", "init_hello_world"})
	require.NoError(t, err)

	require.Len(t, abi.Contracts, 1)
	c := abi.Contracts[0]
	assert.Equal(t, "hello_world", c.Name)
	assert.Equal(t, "init_hello_world", c.Init)
	assert.Equal(t, []Function{{Name: "say_hello", Export: "hello_world.say_hello", Method: "SayHello"}}, c.Entrypoints)
	assert.Equal(t, []string{"hello_world"}, abi.ContractNames())

	fn, err := c.Entrypoint("say_hello")
	require.NoError(t, err)
	assert.Equal(t, "hello_world.say_hello", fn.Export)

	_, err = c.Entrypoint("say_goodbye")
	assert.ErrorIs(t, err, core.ErrEntrypointNotFound)
}

func TestFromExportsOrdering(t *testing.T) {
	abi, err := FromExports([]string{"init_b", "b.z", "b.a", "init_a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, abi.ContractNames())

	b, err := abi.Contract("b")
	require.NoError(t, err)
	require.Len(t, b.Entrypoints, 2)
	assert.Equal(t, "a", b.Entrypoints[0].Name)
	assert.Equal(t, "z", b.Entrypoints[1].Name)

	_, err = abi.Contract("c")
	assert.ErrorIs(t, err, core.ErrContractNotFound)
}

func TestFromExportsErrors(t *testing.T) {
	_, err := FromExports([]string{"memory", "_start"})
	assert.ErrorIs(t, err, core.ErrNoContracts)

	_, err = FromExports([]string{"init_a", "b.receive"})
	assert.ErrorIs(t, err, core.ErrContractNotFound)
}

func TestFromContract(t *testing.T) {
	recv := func(core.ReceiveContext, core.Host) ([]byte, error) { return nil, nil }
	c := &core.Contract{
		Name: "hello_world",
		Init: func(core.InitContext, core.StateBuilder) ([]byte, error) { return nil, nil },
		Receive: map[string]core.ReceiveFunc{
			"say_hello": recv,
			"ping":      recv,
		},
	}

	abi := FromContract(c)
	data, err := json.Marshal(abi)
	require.NoError(t, err)
	assert.JSONEq(t, `{"contracts":[{
		"name":"hello_world",
		"init":"init_hello_world",
		"entrypoints":[
			{"name":"ping","export":"hello_world.ping","method":"Ping"},
			{"name":"say_hello","export":"hello_world.say_hello","method":"SayHello"}
		]}]}`, string(data))
}

func TestMethodName(t *testing.T) {
	assert.Equal(t, "SayHello", MethodName("say_hello"))
	assert.Equal(t, "V2SayHello", MethodName("v2.say-hello"))
	assert.Equal(t, "Ping", MethodName("ping"))
	assert.Equal(t, "", MethodName("__"))
}
