package wasi

import (
	"context"
	_ "embed"
	"sync"
	"testing"
	"time"

	"github.com/govm-net/helloworld/contract/helloworld"
	"github.com/govm-net/helloworld/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	//go:embed testdata/reject.wasm
	rejectWasm []byte
	//go:embed testdata/imports.wasm
	importsWasm []byte
	//go:embed testdata/badsig.wasm
	badsigWasm []byte
	//go:embed testdata/oob.wasm
	oobWasm []byte
	//go:embed testdata/loop.wasm
	loopWasm []byte
)

func newTestVM(t *testing.T, config Config) *WazeroVM {
	vm, err := NewWazeroVM(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { vm.Close(context.Background()) })
	return vm
}

func TestInspectHelloWorld(t *testing.T) {
	vm := newTestVM(t, Config{})
	ctx := context.Background()

	exports, err := vm.Inspect(ctx, core.GetHash(helloworld.Module), helloworld.Module)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello_world.say_hello", "init_hello_world", "memory"}, exports)
}

func TestInspectRejectsInvalidModules(t *testing.T) {
	vm := newTestVM(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		code []byte
	}{
		{"imports", importsWasm},
		{"bad signature", badsigWasm},
		{"not wasm", []byte("hello")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := core.GetHash(append([]byte(tt.name), tt.code...))
			_, err := vm.Inspect(ctx, ref, tt.code)
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
			assert.False(t, vm.cache.Contains(ref))
		})
	}
}

func TestHelloWorld(t *testing.T) {
	vm := newTestVM(t, Config{})
	ctx := context.Background()
	ref := core.GetHash(helloworld.Module)

	require.NoError(t, vm.Init(ctx, ref, helloworld.Module, helloworld.ContractName))

	for i := 0; i < 3; i++ {
		ret, err := vm.Receive(ctx, ref, helloworld.Module, helloworld.ContractName, helloworld.SayHelloEntrypoint)
		require.NoError(t, err)
		assert.Equal(t, core.EncodeString(helloworld.Greeting), ret)
	}

	_, err := vm.Receive(ctx, ref, helloworld.Module, helloworld.ContractName, "say_goodbye")
	assert.ErrorIs(t, err, core.ErrEntrypointNotFound)

	err = vm.Init(ctx, ref, helloworld.Module, "other")
	assert.ErrorIs(t, err, core.ErrEntrypointNotFound)
}

func TestReject(t *testing.T) {
	vm := newTestVM(t, Config{})
	ctx := context.Background()
	ref := core.GetHash(rejectWasm)

	_, err := vm.Inspect(ctx, ref, rejectWasm)
	require.NoError(t, err)

	require.NoError(t, vm.Init(ctx, ref, rejectWasm, "ok"))

	var reject *core.Reject
	err = vm.Init(ctx, ref, rejectWasm, "refuse")
	require.ErrorAs(t, err, &reject)
	assert.Equal(t, int32(-2), reject.Code)

	_, err = vm.Receive(ctx, ref, rejectWasm, "ok", "always")
	require.ErrorAs(t, err, &reject)
	assert.Equal(t, int32(-7), reject.Code)
}

func TestReturnValueOutOfBounds(t *testing.T) {
	vm := newTestVM(t, Config{})
	ctx := context.Background()
	ref := core.GetHash(oobWasm)

	require.NoError(t, vm.Init(ctx, ref, oobWasm, "x"))
	_, err := vm.Receive(ctx, ref, oobWasm, "x", "read")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory bounds")
}

func TestCacheEviction(t *testing.T) {
	vm := newTestVM(t, Config{CacheSize: 1})
	ctx := context.Background()
	helloRef := core.GetHash(helloworld.Module)
	rejectRef := core.GetHash(rejectWasm)

	require.NoError(t, vm.Init(ctx, helloRef, helloworld.Module, helloworld.ContractName))
	assert.True(t, vm.cache.Contains(helloRef))

	require.NoError(t, vm.Init(ctx, rejectRef, rejectWasm, "ok"))
	assert.False(t, vm.cache.Contains(helloRef))
	assert.Equal(t, 1, vm.cache.Len())

	// 被淘汰的模块会重新编译
	ret, err := vm.Receive(ctx, helloRef, helloworld.Module, helloworld.ContractName, helloworld.SayHelloEntrypoint)
	require.NoError(t, err)
	assert.Equal(t, core.EncodeString(helloworld.Greeting), ret)
}

func TestCachedModuleNeedsNoCode(t *testing.T) {
	vm := newTestVM(t, Config{})
	ctx := context.Background()
	ref := core.GetHash(helloworld.Module)

	_, err := vm.Receive(ctx, ref, nil, helloworld.ContractName, helloworld.SayHelloEntrypoint)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = vm.Inspect(ctx, ref, helloworld.Module)
	require.NoError(t, err)
	_, err = vm.Receive(ctx, ref, nil, helloworld.ContractName, helloworld.SayHelloEntrypoint)
	assert.NoError(t, err)
}

func TestConcurrentReceive(t *testing.T) {
	vm := newTestVM(t, Config{CacheSize: 1})
	ctx := context.Background()
	helloRef := core.GetHash(helloworld.Module)
	rejectRef := core.GetHash(rejectWasm)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				// 交替使用两个模块，触发缓存淘汰
				errs <- vm.Init(ctx, rejectRef, rejectWasm, "ok")
				return
			}
			ret, err := vm.Receive(ctx, helloRef, helloworld.Module, helloworld.ContractName, helloworld.SayHelloEntrypoint)
			if err == nil && string(ret[4:]) != helloworld.Greeting {
				t.Errorf("unexpected return value %x", ret)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestContextDeadline(t *testing.T) {
	vm := newTestVM(t, Config{})
	ref := core.GetHash(loopWasm)
	require.NoError(t, vm.Init(context.Background(), ref, loopWasm, "loop"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := vm.Receive(ctx, ref, loopWasm, "loop", "spin")
	assert.Error(t, err)
}

func TestMemoryLimitTooLarge(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := NewWazeroVM(context.Background(), Config{MaxMemoryPages: MaxMemoryPages + 1})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})
}
