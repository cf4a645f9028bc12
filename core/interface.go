// Package core defines the interfaces a contract uses to talk to its host.
// Contract authors only need the types in this package to write a contract.
package core

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account or a contract instance
type Address [20]byte

// Hash is a 32 byte digest, used for module references and transaction hashes
type Hash [32]byte

var ZeroAddress = Address{}
var ZeroHash = Hash{}

func (addr Address) String() string {
	return hex.EncodeToString(addr[:])
}

// AddressFromString parses a hex address, with or without 0x prefix.
// Invalid input yields ZeroAddress; short input is right aligned.
func AddressFromString(str string) Address {
	b, err := hex.DecodeString(evenHex(str))
	if err != nil || len(b) > len(Address{}) {
		return ZeroAddress
	}
	var addr Address
	copy(addr[len(addr)-len(b):], b)
	return addr
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashFromString parses a hex hash, with or without 0x prefix.
func HashFromString(str string) Hash {
	b, err := hex.DecodeString(evenHex(str))
	if err != nil || len(b) > len(Hash{}) {
		return ZeroHash
	}
	var h Hash
	copy(h[len(h)-len(b):], b)
	return h
}

// MarshalText encodes the address as hex
func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText decodes a hex address
func (addr *Address) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(evenHex(string(text)))
	if err != nil || len(b) != len(addr) {
		return fmt.Errorf("invalid address %q: %w", text, ErrInvalidArgument)
	}
	copy(addr[:], b)
	return nil
}

// MarshalText encodes the hash as hex
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex hash
func (h *Hash) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(evenHex(string(text)))
	if err != nil || len(b) != len(h) {
		return fmt.Errorf("invalid hash %q: %w", text, ErrInvalidArgument)
	}
	copy(h[:], b)
	return nil
}

func evenHex(str string) string {
	str = strings.TrimPrefix(strings.TrimPrefix(str, "0x"), "0X")
	if len(str)%2 == 1 {
		str = "0" + str
	}
	return str
}

// InitContext is handed to a contract initializer
type InitContext interface {
	Origin() Address     // account that sent the initializing transaction
	BlockHeight() uint64 // height of the block the transaction is in
	BlockTime() int64    // timestamp of that block
	Parameter() []byte   // raw parameter supplied by the caller
}

// ReceiveContext is handed to a receive entry point
type ReceiveContext interface {
	Origin() Address     // account that sent the transaction
	Sender() Address     // immediate caller
	Self() Address       // address of the instance being called
	Owner() Address      // account that initialized the instance
	BlockHeight() uint64 // height of the block the transaction is in
	BlockTime() int64    // timestamp of that block
	Parameter() []byte   // raw parameter supplied by the caller
}

// StateBuilder lets an initializer allocate state entries beside its root state
type StateBuilder interface {
	// Allocate stores value under key. Allocating the same key twice replaces it.
	Allocate(key string, value []byte) error
}

// Host gives a receive entry point read-only access to its instance state
type Host interface {
	// State returns the encoded root state produced by the initializer
	State() []byte
	// Entry returns a state entry allocated during initialization
	Entry(key string) ([]byte, bool)
}
