package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/types"
)

// ErrModuleExists is returned when a module reference is registered twice
var ErrModuleExists = errors.New("module already exists")

const (
	codeFile     = "module.wasm"
	abiFile      = "abi.json"
	metadataFile = "metadata.json"
	tmpPrefix    = ".tmp-"
)

// Manager stores deployed modules on disk, one directory per module reference
type Manager struct {
	rootDir string
}

// Module is a deployed module
type Module struct {
	Ref        core.Hash        // module reference
	Kind       types.ModuleKind // runtime that executes the module
	Code       []byte           // wasm bytes, empty for native modules
	ABI        []byte           // JSON encoded abi.ABI
	Contracts  []string         // contract names the module exports
	UpdateTime time.Time
}

// ModuleMetadata is the content of metadata.json
type ModuleMetadata struct {
	Ref        string           `json:"ref"`
	Kind       types.ModuleKind `json:"kind"`
	Size       int              `json:"size"`
	Contracts  []string         `json:"contracts"`
	UpdateTime time.Time        `json:"update_time"`
}

// NewManager creates the root directory if needed
func NewManager(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		slog.Error("failed to create root directory", "dir", rootDir, "error", err)
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &Manager{rootDir: rootDir}, nil
}

// RegisterModule stores a module. Registered modules are immutable.
// Files are written to a temporary directory which is then renamed into
// place, so a module directory is either complete or absent.
func (m *Manager) RegisterModule(mod *Module) error {
	dir := m.moduleDir(mod.Ref)
	exists, err := m.complete(dir)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", mod.Ref, ErrModuleExists)
	}

	tmp, err := os.MkdirTemp(m.rootDir, tmpPrefix)
	if err != nil {
		return fmt.Errorf("failed to create module directory: %w", err)
	}
	defer os.RemoveAll(tmp)
	if err := os.Chmod(tmp, 0755); err != nil {
		return fmt.Errorf("failed to set module directory mode: %w", err)
	}

	if mod.UpdateTime.IsZero() {
		mod.UpdateTime = time.Now().UTC()
	}
	if err := m.saveModuleFiles(tmp, mod); err != nil {
		return fmt.Errorf("failed to save module files: %w", err)
	}
	if err := m.install(tmp, dir); err != nil {
		return fmt.Errorf("%s: %w", mod.Ref, err)
	}

	slog.Debug("module registered", "ref", mod.Ref, "kind", mod.Kind, "contracts", mod.Contracts)
	return nil
}

// GetModule loads a module by reference
func (m *Manager) GetModule(ref core.Hash) (*Module, error) {
	dir := m.moduleDir(ref)

	metadataBytes, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", ref, core.ErrModuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata ModuleMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	abiBytes, err := os.ReadFile(filepath.Join(dir, abiFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read abi: %w", err)
	}

	var code []byte
	if metadata.Kind == types.WasmModule {
		code, err = os.ReadFile(filepath.Join(dir, codeFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read module code: %w", err)
		}
	}

	return &Module{
		Ref:        ref,
		Kind:       metadata.Kind,
		Code:       code,
		ABI:        abiBytes,
		Contracts:  metadata.Contracts,
		UpdateTime: metadata.UpdateTime,
	}, nil
}

// ListModules returns the references of all stored modules
func (m *Manager) ListModules() ([]core.Hash, error) {
	dirEntries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}
	var refs []core.Hash
	for _, e := range dirEntries {
		if !e.IsDir() {
			continue
		}
		var ref core.Hash
		if ref.UnmarshalText([]byte(e.Name())) != nil {
			continue
		}
		if ok, _ := m.complete(m.moduleDir(ref)); !ok {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// install renames tmp to dir. A concurrent writer that got there first
// wins; a leftover directory without metadata is replaced.
func (m *Manager) install(tmp, dir string) error {
	err := os.Rename(tmp, dir)
	if err == nil {
		return nil
	}
	exists, cerr := m.complete(dir)
	if cerr != nil {
		return cerr
	}
	if exists {
		return ErrModuleExists
	}

	slog.Warn("replacing incomplete module directory", "dir", dir, "error", err)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove incomplete module: %w", err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		if exists, _ := m.complete(dir); exists {
			return ErrModuleExists
		}
		return fmt.Errorf("failed to install module: %w", err)
	}
	return nil
}

// complete reports whether dir holds a fully written module
func (m *Manager) complete(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, metadataFile))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check module directory: %w", err)
}

func (m *Manager) moduleDir(ref core.Hash) string {
	return filepath.Join(m.rootDir, ref.String())
}

func (m *Manager) saveModuleFiles(dir string, mod *Module) error {
	if mod.Kind == types.WasmModule {
		if err := os.WriteFile(filepath.Join(dir, codeFile), mod.Code, 0644); err != nil {
			return fmt.Errorf("failed to save module code: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, abiFile), mod.ABI, 0644); err != nil {
		return fmt.Errorf("failed to save abi: %w", err)
	}

	metadata := ModuleMetadata{
		Ref:        mod.Ref.String(),
		Kind:       mod.Kind,
		Size:       len(mod.Code),
		Contracts:  mod.Contracts,
		UpdateTime: mod.UpdateTime,
	}
	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	// metadata.json is written last; its presence marks a complete module
	if err := os.WriteFile(filepath.Join(dir, metadataFile), metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}
