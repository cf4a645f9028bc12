// Package helloworld is the hello_world sample contract.
//
// It has one initializer, which creates an empty state, and one receive
// entry point, say_hello, which returns a constant greeting. The contract is
// shipped twice: as native Go functions registered with the native package,
// and as the precompiled WebAssembly module in Module.
package helloworld

import (
	_ "embed"

	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/native"
)

const (
	// ContractName is the name the contract is deployed under
	ContractName = "hello_world"
	// SayHelloEntrypoint is the only receive entry point
	SayHelloEntrypoint = "say_hello"
	// Greeting is the value returned by say_hello
	Greeting = "Hello, World!"
)

// Module is hello_world compiled to WebAssembly, see hello_world.wat
//
//go:embed hello_world.wasm
var Module []byte

// State is the contract state. It holds nothing.
type State struct{}

// Encode implements core.Encoder. The empty state encodes to no bytes.
func (State) Encode() ([]byte, error) {
	return []byte{}, nil
}

// Init creates the empty state. It never fails.
func Init(ctx core.InitContext, sb core.StateBuilder) (State, error) {
	return State{}, nil
}

// SayHello returns Greeting. It never reads state and never fails.
func SayHello(ctx core.ReceiveContext, host core.Host) (string, error) {
	return Greeting, nil
}

func handleInit(ctx core.InitContext, sb core.StateBuilder) ([]byte, error) {
	state, err := Init(ctx, sb)
	if err != nil {
		return nil, err
	}
	return state.Encode()
}

func handleSayHello(ctx core.ReceiveContext, host core.Host) ([]byte, error) {
	greeting, err := SayHello(ctx, host)
	if err != nil {
		return nil, err
	}
	return core.EncodeString(greeting), nil
}

// Contract returns the native descriptor of hello_world
func Contract() *core.Contract {
	return &core.Contract{
		Name: ContractName,
		Init: handleInit,
		Receive: map[string]core.ReceiveFunc{
			SayHelloEntrypoint: handleSayHello,
		},
	}
}

func init() {
	native.MustRegister(Contract())
}
