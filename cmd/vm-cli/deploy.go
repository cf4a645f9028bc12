package main

import (
	"fmt"
	"os"

	"github.com/govm-net/helloworld/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDeployCmd() *cobra.Command {
	var (
		wasmFile   string
		nativeName string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a contract module",
		Long: `Deploy a WebAssembly module or a contract compiled into vm-cli.
Example: vm-cli deploy -f hello_world.wasm
         vm-cli deploy --native hello_world`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd, core.ZeroAddress)
			if err != nil {
				return err
			}
			defer engine.Close()

			var ref core.Hash
			if nativeName != "" {
				ref, err = engine.DeployNative(cmd.Context(), nativeName)
			} else {
				// 读取模块文件
				code, rerr := os.ReadFile(wasmFile)
				if rerr != nil {
					return errors.Wrap(rerr, "failed to read module file")
				}
				ref, err = engine.DeployModule(cmd.Context(), code)
			}
			if err != nil {
				return errors.Wrap(err, "failed to deploy module")
			}

			schema, err := engine.Schema(ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Module deployed successfully!\n")
			fmt.Fprintf(out, "Contracts: %v\n", schema.ContractNames())
			fmt.Fprintf(out, "Module reference: %s\n", ref)
			return nil
		},
	}

	cmd.Flags().StringVarP(&wasmFile, "file", "f", "", "WebAssembly module file")
	cmd.Flags().StringVar(&nativeName, "native", "", "Name of a contract compiled into vm-cli")
	cmd.MarkFlagsMutuallyExclusive("file", "native")
	cmd.MarkFlagsOneRequired("file", "native")
	return cmd
}
