package main

import (
	"fmt"
	"os"

	_ "github.com/govm-net/helloworld/context/db"
	_ "github.com/govm-net/helloworld/context/memory"
	_ "github.com/govm-net/helloworld/contract/helloworld"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vm-cli",
		Short: "VM management command line tool",
		Long: `VM management command line tool for deploying, initializing and invoking smart contracts.
Both WebAssembly modules and contracts compiled into the binary (hello_world) are supported.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./vm-cli.yaml)")
	flags.String("repo", defaultRepoDir, "Module repository directory")
	flags.String("db", defaultDBPath, "Sqlite database of the db context")
	flags.String("context", defaultContextType, "Blockchain context type (db|memory)")
	flags.Int64("gas-limit", 0, "Gas available to each call (0 uses the default)")
	flags.Uint64("height", 1, "Block height of the transaction")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		newDeployCmd(),
		newInitCmd(),
		newInvokeCmd(),
		newSchemaCmd(),
		newInstancesCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
