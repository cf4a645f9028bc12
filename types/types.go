// Package types contains the host side types shared by the engine, the
// runtimes and the blockchain context backends.
package types

import (
	"time"

	"github.com/govm-net/helloworld/core"
)

// ModuleKind tells the engine which runtime executes a module
type ModuleKind string

const (
	// WasmModule is a WebAssembly module run by wazero
	WasmModule ModuleKind = "wasm"
	// NativeModule is a Go contract compiled into the host
	NativeModule ModuleKind = "native"
)

// Instance is an initialized contract
type Instance struct {
	Address  core.Address      `json:"address"`
	Module   core.Hash         `json:"module"`
	Contract string            `json:"contract"`
	Owner    core.Address      `json:"owner"`
	State    []byte            `json:"state"`
	Entries  map[string][]byte `json:"entries,omitempty"`
	Height   uint64            `json:"height"`
}

// Event is a log entry emitted by the host on behalf of a contract
type Event struct {
	BlockHeight uint64       `json:"block_height"`
	TxHash      core.Hash    `json:"tx_hash"`
	Contract    core.Address `json:"contract"`
	Name        string       `json:"name"`
	KeyValues   []any        `json:"key_values,omitempty"`
	Time        time.Time    `json:"time"`
}

// ExecutionResult is the outcome of a successful receive call
type ExecutionResult struct {
	ReturnValue []byte `json:"return_value"`
	GasUsed     int64  `json:"gas_used"`
}

// BlockchainContext is the host state the engine reads and writes
type BlockchainContext interface {
	// set block info and transaction info
	SetBlockInfo(height uint64, time int64, hash core.Hash) error
	SetTransactionInfo(hash core.Hash, from core.Address, to core.Address, value uint64) error

	BlockHeight() uint64
	BlockTime() int64
	TransactionHash() core.Hash
	Sender() core.Address

	// Instances
	CreateInstance(inst *Instance) error
	GetInstance(addr core.Address) (*Instance, error)
	ListInstances() ([]*Instance, error)
	// InstanceNonce counts the instances created by owner
	InstanceNonce(owner core.Address) (uint64, error)

	// Logs and events
	Log(contract core.Address, eventName string, keyValues ...any)
	Events(contract core.Address) ([]Event, error)

	Close() error
}
