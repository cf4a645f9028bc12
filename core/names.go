package core

import (
	"fmt"
	"strings"
)

const (
	// MaxFuncNameSize bounds exported function names, including the init_ prefix
	MaxFuncNameSize = 100

	initPrefix = "init_"
)

// InitName returns the export name of the initializer of contract
func InitName(contract string) string {
	return initPrefix + contract
}

// ReceiveName returns the fully qualified export name of an entrypoint
func ReceiveName(contract, entrypoint string) string {
	return contract + "." + entrypoint
}

// ParseInitName extracts the contract name from an initializer export
func ParseInitName(export string) (string, bool) {
	if !strings.HasPrefix(export, initPrefix) {
		return "", false
	}
	contract := export[len(initPrefix):]
	if ValidateContractName(contract) != nil {
		return "", false
	}
	return contract, true
}

// ParseReceiveName splits a fully qualified entrypoint export
func ParseReceiveName(export string) (contract, entrypoint string, ok bool) {
	contract, entrypoint, ok = strings.Cut(export, ".")
	if !ok || ValidateEntrypointName(contract, entrypoint) != nil {
		return "", "", false
	}
	return contract, entrypoint, true
}

// ValidateContractName checks that init_<name> is a legal export name
func ValidateContractName(name string) error {
	if name == "" {
		return fmt.Errorf("empty contract name: %w", ErrInvalidName)
	}
	if len(initPrefix)+len(name) > MaxFuncNameSize {
		return fmt.Errorf("contract name %q too long: %w", name, ErrInvalidName)
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("contract name %q contains '.': %w", name, ErrInvalidName)
	}
	if !isPrintableASCII(name) {
		return fmt.Errorf("contract name %q has invalid characters: %w", name, ErrInvalidName)
	}
	return nil
}

// ValidateEntrypointName checks that <contract>.<entrypoint> is a legal export name
func ValidateEntrypointName(contract, entrypoint string) error {
	if err := ValidateContractName(contract); err != nil {
		return err
	}
	if entrypoint == "" {
		return fmt.Errorf("empty entrypoint name for %s: %w", contract, ErrInvalidName)
	}
	full := ReceiveName(contract, entrypoint)
	if len(full) > MaxFuncNameSize {
		return fmt.Errorf("entrypoint %q too long: %w", full, ErrInvalidName)
	}
	if !isPrintableASCII(entrypoint) {
		return fmt.Errorf("entrypoint %q has invalid characters: %w", full, ErrInvalidName)
	}
	return nil
}

// isPrintableASCII reports whether s only holds ASCII letters, digits and punctuation
func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}
