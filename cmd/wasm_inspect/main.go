package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/govm-net/helloworld/abi"
	"github.com/govm-net/helloworld/core"
	"github.com/govm-net/helloworld/wasi"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("用法: go run cmd/wasm_inspect/main.go <wasm文件路径>")
		os.Exit(1)
	}

	wasmPath := os.Args[1]
	fmt.Printf("检查WASM文件: %s\n", wasmPath)

	// 读取WASM文件
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Printf("无法读取WASM文件: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	// 编译模块
	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		fmt.Printf("无法编译模块: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n导出的函数:")
	exports := compiled.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := exports[name]
		fmt.Printf("  - %s: %s -> %s\n", name, typeNames(def.ParamTypes()), typeNames(def.ResultTypes()))
	}
	for name := range compiled.ExportedMemories() {
		fmt.Printf("  - %s: 内存\n", name)
	}

	fmt.Println("\n导入需求:")
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		fmt.Printf("  - 模块: '%s', 名称: '%s', 类型: 函数\n", module, name)
	}
	for _, def := range compiled.ImportedMemories() {
		module, name, _ := def.Import()
		fmt.Printf("  - 模块: '%s', 名称: '%s', 类型: 内存\n", module, name)
	}

	// 按合约调用约定检查
	vm, err := wasi.NewWazeroVM(ctx, wasi.Config{})
	if err != nil {
		fmt.Printf("无法创建运行时: %v\n", err)
		os.Exit(1)
	}
	defer vm.Close(ctx)

	fmt.Println("\n合约:")
	checked, err := vm.Inspect(ctx, core.GetHash(wasmBytes), wasmBytes)
	if err != nil {
		fmt.Printf("  不是合法的合约模块: %v\n", err)
		return
	}
	schema, err := abi.FromExports(checked)
	if err != nil {
		fmt.Printf("  不是合法的合约模块: %v\n", err)
		return
	}
	for _, c := range schema.Contracts {
		fmt.Printf("  - %s (%s)\n", c.Name, c.Init)
		for _, fn := range c.Entrypoints {
			fmt.Printf("      %s -> %s\n", fn.Export, fn.Method)
		}
	}
}

func typeNames(types []api.ValueType) string {
	s := "("
	for i, t := range types {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s + ")"
}
