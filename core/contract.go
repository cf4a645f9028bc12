package core

import (
	"errors"
	"fmt"
)

// Common errors returned by the host when dispatching to contracts
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidName        = errors.New("invalid contract or entrypoint name")
	ErrModuleNotFound     = errors.New("module not found")
	ErrContractNotFound   = errors.New("contract not found")
	ErrEntrypointNotFound = errors.New("entrypoint not found")
	ErrInstanceNotFound   = errors.New("instance not found")
	ErrInstanceExists     = errors.New("instance already exists")
	ErrNoContracts        = errors.New("module exports no contracts")
	ErrOutOfGas           = errors.New("out of gas")
)

// Reject is returned when a contract refuses to handle a call.
// Code is the contract defined reason and is always negative.
type Reject struct {
	Code int32
}

func (r *Reject) Error() string {
	return fmt.Sprintf("contract rejected with code %d", r.Code)
}

// Encoder represents an object that can encode itself to bytes.
type Encoder interface {
	Encode() ([]byte, error)
}

// InitFunc is the host-facing shape of an initializer. It returns the encoded
// root state of the new instance.
type InitFunc func(ctx InitContext, sb StateBuilder) ([]byte, error)

// ReceiveFunc is the host-facing shape of a receive entry point. It returns
// the serialized return value.
type ReceiveFunc func(ctx ReceiveContext, host Host) ([]byte, error)

// Contract describes a natively compiled contract
type Contract struct {
	Name    string
	Init    InitFunc
	Receive map[string]ReceiveFunc
}

// Entrypoint returns the receive function registered under name
func (c *Contract) Entrypoint(name string) (ReceiveFunc, error) {
	fn, ok := c.Receive[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", c.Name, name, ErrEntrypointNotFound)
	}
	return fn, nil
}

// Validate checks the contract name and all of its entrypoint names
func (c *Contract) Validate() error {
	if err := ValidateContractName(c.Name); err != nil {
		return err
	}
	if c.Init == nil {
		return fmt.Errorf("contract %s has no initializer: %w", c.Name, ErrInvalidArgument)
	}
	for name, fn := range c.Receive {
		if err := ValidateEntrypointName(c.Name, name); err != nil {
			return err
		}
		if fn == nil {
			return fmt.Errorf("%s.%s has no handler: %w", c.Name, name, ErrInvalidArgument)
		}
	}
	return nil
}
