package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/govm-net/helloworld/contract/helloworld"
	"github.com/govm-net/helloworld/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var module, contract, sender, param string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a contract instance",
		Long: `Run the initializer of a contract and create a new instance owned by sender.
Example: vm-cli init --module <ref> --contract hello_world --sender 0x01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseHash(module)
			if err != nil {
				return errors.Wrap(err, "bad module reference")
			}
			from, err := parseSender(sender)
			if err != nil {
				return err
			}
			p, err := parseParam(param)
			if err != nil {
				return err
			}

			engine, err := openEngine(cmd, from)
			if err != nil {
				return err
			}
			defer engine.Close()

			addr, err := engine.Initialize(cmd.Context(), ref, contract, p)
			if err != nil {
				return errors.Wrap(err, "failed to initialize contract")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Contract initialized successfully!\n")
			fmt.Fprintf(cmd.OutOrStdout(), "Contract address: %s\n", addr)
			return nil
		},
	}

	cmd.Flags().StringVarP(&module, "module", "m", "", "Module reference (required)")
	cmd.Flags().StringVarP(&contract, "contract", "c", helloworld.ContractName, "Contract name")
	cmd.Flags().StringVarP(&sender, "sender", "s", "", "Sender address (required)")
	cmd.Flags().StringVarP(&param, "param", "p", "", "Parameter as hex")
	cmd.MarkFlagRequired("module")
	cmd.MarkFlagRequired("sender")
	return cmd
}

// invokeOutput is printed by the invoke command
type invokeOutput struct {
	Address     core.Address `json:"address"`
	Entrypoint  string       `json:"entrypoint"`
	ReturnValue string       `json:"return_value"`
	Decoded     *string      `json:"decoded,omitempty"`
	GasUsed     int64        `json:"gas_used"`
}

func newInvokeCmd() *cobra.Command {
	var address, entrypoint, sender, param string

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Invoke a contract entrypoint",
		Long: `Call a receive entrypoint of a contract instance and print the result.
Example: vm-cli invoke --address <addr> --entrypoint say_hello --sender 0x01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(address)
			if err != nil {
				return errors.Wrap(err, "bad contract address")
			}
			from, err := parseSender(sender)
			if err != nil {
				return err
			}
			p, err := parseParam(param)
			if err != nil {
				return err
			}

			engine, err := openEngine(cmd, from)
			if err != nil {
				return err
			}
			defer engine.Close()

			// 执行合约函数
			result, err := engine.Invoke(cmd.Context(), addr, entrypoint, p)
			if err != nil {
				return errors.Wrap(err, "failed to invoke contract")
			}

			output := invokeOutput{
				Address:     addr,
				Entrypoint:  entrypoint,
				ReturnValue: hex.EncodeToString(result.ReturnValue),
				GasUsed:     result.GasUsed,
			}
			// 返回值是字符串时一并输出
			if s, err := core.DecodeString(result.ReturnValue); err == nil {
				output.Decoded = &s
			}
			resultJSON, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal result")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", resultJSON)
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Contract address (required)")
	cmd.Flags().StringVarP(&entrypoint, "entrypoint", "e", helloworld.SayHelloEntrypoint, "Entrypoint name")
	cmd.Flags().StringVarP(&sender, "sender", "s", "", "Sender address (required)")
	cmd.Flags().StringVarP(&param, "param", "p", "", "Parameter as hex")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("sender")
	return cmd
}

// parseSender accepts short addresses such as 0x01
func parseSender(s string) (core.Address, error) {
	addr := core.AddressFromString(s)
	if addr == core.ZeroAddress {
		return core.ZeroAddress, errors.Errorf("bad sender address %q", s)
	}
	return addr, nil
}
