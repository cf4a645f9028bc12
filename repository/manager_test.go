package repository

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	tmpDir := t.TempDir()
	manager, err := NewManager(tmpDir)
	require.NoError(t, err)
	return manager, tmpDir
}

func TestManager(t *testing.T) {
	manager, tmpDir := newTestManager(t)

	code := []byte("\x00asm\x01\x00\x00\x00")
	mod := &Module{
		Ref:       core.GetHash(code),
		Kind:      types.WasmModule,
		Code:      code,
		ABI:       []byte(`{"contracts":[]}`),
		Contracts: []string{"hello_world"},
	}
	require.NoError(t, manager.RegisterModule(mod))

	dir := filepath.Join(tmpDir, mod.Ref.String())
	assert.DirExists(t, dir)
	assert.FileExists(t, filepath.Join(dir, "module.wasm"))
	assert.FileExists(t, filepath.Join(dir, "abi.json"))
	assert.FileExists(t, filepath.Join(dir, "metadata.json"))

	got, err := manager.GetModule(mod.Ref)
	require.NoError(t, err)
	assert.Equal(t, code, got.Code)
	assert.Equal(t, types.WasmModule, got.Kind)
	assert.Equal(t, []string{"hello_world"}, got.Contracts)
	assert.JSONEq(t, `{"contracts":[]}`, string(got.ABI))
	assert.False(t, got.UpdateTime.IsZero())

	refs, err := manager.ListModules()
	require.NoError(t, err)
	assert.Equal(t, []core.Hash{mod.Ref}, refs)
}

func TestNativeModuleHasNoCode(t *testing.T) {
	manager, tmpDir := newTestManager(t)

	mod := &Module{
		Ref:       core.GetHash([]byte("native:hello_world")),
		Kind:      types.NativeModule,
		ABI:       []byte(`{}`),
		Contracts: []string{"hello_world"},
	}
	require.NoError(t, manager.RegisterModule(mod))
	assert.NoFileExists(t, filepath.Join(tmpDir, mod.Ref.String(), "module.wasm"))

	got, err := manager.GetModule(mod.Ref)
	require.NoError(t, err)
	assert.Empty(t, got.Code)
	assert.Equal(t, types.NativeModule, got.Kind)
}

func TestModuleNotFound(t *testing.T) {
	manager, _ := newTestManager(t)
	_, err := manager.GetModule(core.GetHash([]byte("missing")))
	assert.ErrorIs(t, err, core.ErrModuleNotFound)
}

func TestModuleImmutability(t *testing.T) {
	manager, tmpDir := newTestManager(t)

	ref := core.GetHash([]byte("code"))
	require.NoError(t, manager.RegisterModule(&Module{Ref: ref, Kind: types.WasmModule, Code: []byte("code"), ABI: []byte(`{}`)}))

	err := manager.RegisterModule(&Module{Ref: ref, Kind: types.WasmModule, Code: []byte("other"), ABI: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrModuleExists)

	stored, err := os.ReadFile(filepath.Join(tmpDir, ref.String(), "module.wasm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("code"), stored)
}

func TestListModulesSkipsForeignEntries(t *testing.T) {
	manager, tmpDir := newTestManager(t)
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "not-a-ref"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "README"), []byte("x"), 0644))

	refs, err := manager.ListModules()
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestIncompleteModuleIsReplaced(t *testing.T) {
	manager, tmpDir := newTestManager(t)
	ref := core.GetHash([]byte("code"))

	// 写入中途崩溃留下的目录，没有 metadata.json
	dir := filepath.Join(tmpDir, ref.String())
	require.NoError(t, os.Mkdir(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "module.wasm"), []byte("partial"), 0644))

	_, err := manager.GetModule(ref)
	assert.ErrorIs(t, err, core.ErrModuleNotFound)
	refs, err := manager.ListModules()
	require.NoError(t, err)
	assert.Empty(t, refs)

	require.NoError(t, manager.RegisterModule(&Module{Ref: ref, Kind: types.WasmModule, Code: []byte("code"), ABI: []byte(`{}`)}))
	got, err := manager.GetModule(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("code"), got.Code)
}

func TestConcurrentRegister(t *testing.T) {
	manager, tmpDir := newTestManager(t)
	ref := core.GetHash([]byte("code"))

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- manager.RegisterModule(&Module{Ref: ref, Kind: types.WasmModule, Code: []byte("code"), ABI: []byte(`{}`)})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrModuleExists)
	}
	assert.Equal(t, 1, succeeded)

	got, err := manager.GetModule(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("code"), got.Code)

	// 临时目录都已清理
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
