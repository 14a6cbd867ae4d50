package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const ServerOptionName = "server"

func NewVersionCommand(opts *options) *cobra.Command {
	var remote bool
	var addr string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version, or the one of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !remote {
				fmt.Fprintf(cmd.OutOrStdout(), "lantzd %s (%s)\n", buildVersion, buildDate)
				return nil
			}
			c, err := apiClient(opts, addr)
			if err != nil {
				return err
			}
			v, err := c.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lantzd %s (%s) at %s\n", v.Version, v.BuildDate, c.Addr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, ServerOptionName, false, "Ask the server instead")
	addrFlag(cmd, &addr)
	return cmd
}
