package api

import (
	"testing"

	"github.com/govm-net/helloworld/core"
	"github.com/stretchr/testify/assert"
)

func TestDefaultContractAddressGenerator(t *testing.T) {
	module := core.GetHash([]byte("module"))
	sender := core.AddressFromString("0x01")

	addr := DefaultContractAddressGenerator(module, "hello_world", sender, 0)
	assert.NotEqual(t, core.ZeroAddress, addr)
	assert.Equal(t, addr, DefaultContractAddressGenerator(module, "hello_world", sender, 0))

	assert.NotEqual(t, addr, DefaultContractAddressGenerator(module, "hello_world", sender, 1))
	assert.NotEqual(t, addr, DefaultContractAddressGenerator(module, "hello_worle", sender, 0))
	assert.NotEqual(t, addr, DefaultContractAddressGenerator(module, "hello_world", core.AddressFromString("0x02"), 0))
	assert.NotEqual(t, addr, DefaultContractAddressGenerator(core.GetHash([]byte("other")), "hello_world", sender, 0))
}

func TestDefaultContractConfig(t *testing.T) {
	cfg := DefaultContractConfig()
	assert.Greater(t, cfg.MaxGas, int64(0))
	assert.Greater(t, cfg.MaxCodeSize, 0)
	assert.Equal(t, 65535, cfg.MaxParameterSize)
}
