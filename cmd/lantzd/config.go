package main

import (
	"fmt"

	"github.com/lumasullo/lantz/pkg/config"
	"github.com/lumasullo/lantz/pkg/drivers"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const ForceOptionName = "force"

func NewConfigCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the lantzd configuration",
	}
	cmd.AddCommand(NewConfigInitCommand(opts))
	cmd.AddCommand(NewConfigShowCommand(opts))
	return cmd
}

func NewConfigInitCommand(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration with simulated instruments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewDefaultConfig(opts.configPath)
			if err := cfg.Persist(force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfg.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, ForceOptionName, false, "Overwrite an existing file")
	return cmd
}

func NewConfigShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and the available drivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfg.Path(), data)
			fmt.Fprintf(cmd.OutOrStdout(), "# drivers: %v\n", drivers.Names())
			return nil
		},
	}
}
