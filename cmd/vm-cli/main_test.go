package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/govm-net/helloworld/context/db"
	"github.com/govm-net/helloworld/contract/helloworld"
	"github.com/govm-net/helloworld/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes vm-cli with args and returns what it printed
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// field returns the value printed after "name: "
func field(t *testing.T, output, name string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if v, ok := strings.CutPrefix(line, name+": "); ok {
			return strings.TrimSpace(v)
		}
	}
	t.Fatalf("%q not found in output:\n%s", name, output)
	return ""
}

func TestDeployInitInvoke(t *testing.T) {
	dir := t.TempDir()
	wasmFile := filepath.Join(dir, "hello_world.wasm")
	require.NoError(t, os.WriteFile(wasmFile, helloworld.Module, 0644))

	common := []string{"--repo", filepath.Join(dir, "repo"), "--db", filepath.Join(dir, "state.db")}
	run := func(args ...string) string {
		out, err := runCLI(t, append(common, args...)...)
		require.NoError(t, err)
		return out
	}

	for _, deployArgs := range [][]string{{"--native", "hello_world"}, {"-f", wasmFile}} {
		out := run(append([]string{"deploy"}, deployArgs...)...)
		assert.Contains(t, out, "Contracts: [hello_world]")
		ref := field(t, out, "Module reference")

		out = run("init", "--module", ref, "--sender", "0x01")
		addr := field(t, out, "Contract address")

		out = run("invoke", "--address", addr, "--entrypoint", "say_hello", "--sender", "0x02")
		var result map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "Hello, World!", result["decoded"])
		assert.Equal(t, "0d00000048656c6c6f2c20576f726c6421", result["return_value"])
		assert.Equal(t, addr, result["address"])

		out = run("schema", "--module", ref, "-o", "yaml")
		assert.Contains(t, out, "name: hello_world")
		assert.Contains(t, out, "export: hello_world.say_hello")
	}

	out := run("instances")
	var instances []instanceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &instances))
	require.Len(t, instances, 2)
	for _, inst := range instances {
		assert.Equal(t, "hello_world", inst.Contract)
		assert.Equal(t, "0000000000000000000000000000000000000001", inst.Owner)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "vm-cli.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"repo: "+filepath.Join(dir, "repo")+"\n"+
			"db: "+filepath.Join(dir, "state.db")+"\n"+
			"log-level: error\n"), 0644))

	out, err := runCLI(t, "--config", cfg, "deploy", "--native", "hello_world")
	require.NoError(t, err)
	ref := field(t, out, "Module reference")
	assert.DirExists(t, filepath.Join(dir, "repo", ref))
	assert.FileExists(t, filepath.Join(dir, "state.db"))
}

func TestCLIErrors(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--repo", filepath.Join(dir, "repo"), "--db", filepath.Join(dir, "state.db")}

	_, err := runCLI(t, append(common, "deploy")...)
	assert.Error(t, err)

	_, err = runCLI(t, append(common, "deploy", "--native", "hello_world", "-f", "x.wasm")...)
	assert.Error(t, err)

	_, err = runCLI(t, append(common, "deploy", "--native", "unknown")...)
	assert.ErrorContains(t, err, "contract not found")

	out, err := runCLI(t, append(common, "deploy", "--native", "hello_world")...)
	require.NoError(t, err)
	ref := field(t, out, "Module reference")

	_, err = runCLI(t, append(common, "init", "--module", ref, "--sender", "zz")...)
	assert.ErrorContains(t, err, "bad sender address")

	_, err = runCLI(t, append(common, "init", "--module", ref, "--sender", "0x01", "--param", "xyz")...)
	assert.ErrorContains(t, err, "parameter must be hex")

	out, err = runCLI(t, append(common, "init", "--module", ref, "--sender", "0x01")...)
	require.NoError(t, err)
	addr := field(t, out, "Contract address")

	_, err = runCLI(t, append(common, "invoke", "--address", addr, "--entrypoint", "say_goodbye", "--sender", "0x01")...)
	assert.ErrorContains(t, err, "entrypoint not found")

	_, err = runCLI(t, append(common, "schema", "--module", ref, "-o", "toml")...)
	assert.ErrorContains(t, err, "unknown output format")

	_, err = runCLI(t, append(common, "--log-level", "loud", "instances")...)
	assert.ErrorContains(t, err, "bad log level")
}

func TestRecordedBlockIsReused(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	// 预先记录高度 7 的区块
	bc, err := db.NewContext(map[string]any{"db_path": dbPath})
	require.NoError(t, err)
	hash := core.HashFromString("0x77")
	require.NoError(t, bc.SetBlockInfo(7, 42, hash))
	require.NoError(t, bc.Close())

	common := []string{"--repo", filepath.Join(dir, "repo"), "--db", dbPath, "--height", "7"}
	out, err := runCLI(t, append(common, "deploy", "--native", "hello_world")...)
	require.NoError(t, err)
	ref := field(t, out, "Module reference")
	out, err = runCLI(t, append(common, "init", "--module", ref, "--sender", "0x01")...)
	require.NoError(t, err)
	field(t, out, "Contract address")

	bc, err = db.NewContext(map[string]any{"db_path": dbPath})
	require.NoError(t, err)
	defer bc.Close()
	require.NoError(t, bc.(interface{ WithBlock(uint64) error }).WithBlock(7))
	assert.Equal(t, int64(42), bc.BlockTime())

	list, err := bc.ListInstances()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(7), list[0].Height)
}
