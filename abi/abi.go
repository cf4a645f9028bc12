// Package abi describes which contracts and entry points a module exposes.
package abi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/govm-net/helloworld/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ABI represents the Application Binary Interface of a module
type ABI struct {
	Contracts []Contract `json:"contracts" yaml:"contracts"`
}

// Contract is one contract of a module
type Contract struct {
	Name        string     `json:"name" yaml:"name"`
	Init        string     `json:"init" yaml:"init"`
	Entrypoints []Function `json:"entrypoints,omitempty" yaml:"entrypoints,omitempty"`
}

// Function is a receive entry point
type Function struct {
	Name   string `json:"name" yaml:"name"`
	Export string `json:"export" yaml:"export"`
	Method string `json:"method" yaml:"method"`
}

// FromExports builds the ABI of a WebAssembly module from its exported
// function names. Exports that are neither init_<contract> nor
// <contract>.<entrypoint> are ignored.
func FromExports(exports []string) (*ABI, error) {
	contracts := make(map[string]*Contract)
	receives := make(map[string][]string)

	for _, export := range exports {
		if name, ok := core.ParseInitName(export); ok {
			contracts[name] = &Contract{Name: name, Init: export}
			continue
		}
		if contract, entrypoint, ok := core.ParseReceiveName(export); ok {
			receives[contract] = append(receives[contract], entrypoint)
		}
	}

	if len(contracts) == 0 {
		return nil, core.ErrNoContracts
	}
	for contract, entrypoints := range receives {
		c, ok := contracts[contract]
		if !ok {
			return nil, fmt.Errorf("entrypoints %v have no initializer for %s: %w", entrypoints, contract, core.ErrContractNotFound)
		}
		for _, entrypoint := range entrypoints {
			c.Entrypoints = append(c.Entrypoints, newFunction(contract, entrypoint))
		}
	}

	abi := &ABI{}
	for _, c := range contracts {
		abi.Contracts = append(abi.Contracts, *c)
	}
	abi.sort()
	return abi, nil
}

// FromContract builds the ABI of a native contract
func FromContract(c *core.Contract) *ABI {
	contract := Contract{Name: c.Name, Init: core.InitName(c.Name)}
	for entrypoint := range c.Receive {
		contract.Entrypoints = append(contract.Entrypoints, newFunction(c.Name, entrypoint))
	}
	abi := &ABI{Contracts: []Contract{contract}}
	abi.sort()
	return abi
}

// ContractNames returns the names of all contracts
func (a *ABI) ContractNames() []string {
	names := make([]string, 0, len(a.Contracts))
	for _, c := range a.Contracts {
		names = append(names, c.Name)
	}
	return names
}

// Contract finds a contract by name
func (a *ABI) Contract(name string) (*Contract, error) {
	for i := range a.Contracts {
		if a.Contracts[i].Name == name {
			return &a.Contracts[i], nil
		}
	}
	return nil, fmt.Errorf("contract %s: %w", name, core.ErrContractNotFound)
}

// Entrypoint finds an entry point by its short name
func (c *Contract) Entrypoint(name string) (*Function, error) {
	for i := range c.Entrypoints {
		if c.Entrypoints[i].Name == name {
			return &c.Entrypoints[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", core.ReceiveName(c.Name, name), core.ErrEntrypointNotFound)
}

func (a *ABI) sort() {
	sort.Slice(a.Contracts, func(i, j int) bool { return a.Contracts[i].Name < a.Contracts[j].Name })
	for _, c := range a.Contracts {
		sort.Slice(c.Entrypoints, func(i, j int) bool { return c.Entrypoints[i].Name < c.Entrypoints[j].Name })
	}
}

func newFunction(contract, entrypoint string) Function {
	return Function{
		Name:   entrypoint,
		Export: core.ReceiveName(contract, entrypoint),
		Method: MethodName(entrypoint),
	}
}

// MethodName turns an entry point name into a Go style identifier,
// e.g. say_hello becomes SayHello.
func MethodName(entrypoint string) string {
	words := strings.FieldsFunc(entrypoint, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	caser := cases.Title(language.English)
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(caser.String(w))
	}
	return sb.String()
}
