package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/govm-net/helloworld/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSchemaCmd() *cobra.Command {
	var module, format string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the contracts and entrypoints of a module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseHash(module)
			if err != nil {
				return errors.Wrap(err, "bad module reference")
			}
			engine, err := openEngine(cmd, core.ZeroAddress)
			if err != nil {
				return err
			}
			defer engine.Close()

			schema, err := engine.Schema(ref)
			if err != nil {
				return errors.Wrapf(err, "get schema of %s", ref)
			}
			return printValue(cmd.OutOrStdout(), format, schema)
		},
	}

	cmd.Flags().StringVarP(&module, "module", "m", "", "Module reference (required)")
	cmd.Flags().StringVarP(&format, "output", "o", "json", "Output format (json|yaml)")
	cmd.MarkFlagRequired("module")
	return cmd
}

// instanceOutput is one line of the instances command
type instanceOutput struct {
	Address  string `json:"address" yaml:"address"`
	Module   string `json:"module" yaml:"module"`
	Contract string `json:"contract" yaml:"contract"`
	Owner    string `json:"owner" yaml:"owner"`
	Height   uint64 `json:"height" yaml:"height"`
}

func newInstancesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List contract instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(cmd, core.ZeroAddress)
			if err != nil {
				return err
			}
			defer engine.Close()

			instances, err := engine.Instances()
			if err != nil {
				return errors.Wrap(err, "list instances")
			}
			out := make([]instanceOutput, 0, len(instances))
			for _, inst := range instances {
				out = append(out, instanceOutput{
					Address:  inst.Address.String(),
					Module:   inst.Module.String(),
					Contract: inst.Contract,
					Owner:    inst.Owner.String(),
					Height:   inst.Height,
				})
			}
			return printValue(cmd.OutOrStdout(), format, out)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "json", "Output format (json|yaml)")
	return cmd
}

func printValue(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(err, "format JSON")
		}
		fmt.Fprintf(w, "%s\n", data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "format YAML")
		}
		return enc.Close()
	default:
		return errors.Errorf("unknown output format %q", format)
	}
	return nil
}
