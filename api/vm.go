// Package api provides the interfaces for the virtual machine that executes smart contracts.
// This package defines the API between the blockchain and the VM, but is not directly used by smart contracts.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/types"
)

// VM represents the virtual machine that executes smart contracts.
// Sender, block and transaction come from the active blockchain context.
type VM interface {
	// DeployModule validates and stores a WebAssembly module
	DeployModule(ctx context.Context, code []byte) (core.Hash, error)

	// DeployNative stores a module backed by a natively registered contract
	DeployNative(ctx context.Context, contract string) (core.Hash, error)

	// Initialize creates a new instance of a contract of a deployed module
	Initialize(ctx context.Context, module core.Hash, contract string, param []byte) (core.Address, error)

	// Invoke calls a receive entrypoint of an instance
	Invoke(ctx context.Context, instance core.Address, entrypoint string, param []byte) (*types.ExecutionResult, error)
}

// ContractConfig defines limits for contract deployment and execution
type ContractConfig struct {
	// MaxGas is the maximum amount of gas that can be used by one call
	MaxGas int64

	// MaxCodeSize is the maximum size of module code in bytes
	MaxCodeSize int

	// MaxParameterSize is the maximum size of a call parameter in bytes
	MaxParameterSize int

	// MaxExecutionTime bounds the wall time of one call
	MaxExecutionTime time.Duration
}

// DefaultContractConfig returns a default configuration for contracts
func DefaultContractConfig() ContractConfig {
	return ContractConfig{
		MaxGas:           1000000,
		MaxCodeSize:      512 * 1024, // 512KB
		MaxParameterSize: 65535,
		MaxExecutionTime: 5 * time.Second,
	}
}

// DefaultContractAddressGenerator derives the address of a new instance.
// The nonce makes repeated initializations by the same sender distinct.
func DefaultContractAddressGenerator(module core.Hash, contract string, sender core.Address, nonce uint64) core.Address {
	h := sha256.New()
	h.Write(module[:])
	h.Write([]byte(contract))
	h.Write(sender[:])
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h.Write(n[:])

	var addr core.Address
	copy(addr[:], h.Sum(nil))
	return addr
}
