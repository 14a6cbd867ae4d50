package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/lumasullo/lantz/pkg/client"
	"github.com/lumasullo/lantz/pkg/config"
	"github.com/lumasullo/lantz/pkg/units"
	"github.com/spf13/cobra"
)

// parseValue reads command line values: booleans, integers, floats,
// quantities like "5mV" and anything else as a string
func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if q, err := units.Parse(s); err == nil {
		return q
	}
	return s
}

func printValue(out io.Writer, v any) error {
	switch t := v.(type) {
	case units.Quantity, string, bool, float64, int:
		_, err := fmt.Fprintln(out, t)
		return err
	case nil:
		return nil
	}
	return printJSON(out, v)
}

func printJSON(out io.Writer, v any) error {
	e := json.NewEncoder(out)
	e.SetIndent("", "    ")
	return e.Encode(v)
}

// apiClient uses --addr when given and the configured http address otherwise
func apiClient(opts *options, addr string) (*client.ApiClient, error) {
	if addr != "" {
		return client.NewApiClient(addr), nil
	}
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	return client.NewApiClient(cfg.HTTP.Addr), nil
}

func addrFlag(cmd *cobra.Command, addr *string) {
	cmd.Flags().StringVar(addr, AddrOptionName, "", fmt.Sprintf("Address of the lantzd server. Defaults to the configured one, e.g. %s", config.DefaultHTTPAddr))
}

func NewGetCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "get <instrument> <feat> [key]",
		Short: "Read a feature, or one key of an indexed feature",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(opts, addr)
			if err != nil {
				return err
			}
			var v any
			if len(args) == 3 {
				v, err = c.GetIndexed(args[0], args[1], parseValue(args[2]))
			} else {
				v, err = c.Get(args[0], args[1])
			}
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}
	addrFlag(cmd, &addr)
	return cmd
}

func NewSetCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "set <instrument> <feat> [key] <value>",
		Short: "Write a feature, or one key of an indexed feature",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(opts, addr)
			if err != nil {
				return err
			}
			if len(args) == 4 {
				return c.SetIndexed(args[0], args[1], parseValue(args[2]), parseValue(args[3]))
			}
			return c.Set(args[0], args[1], parseValue(args[2]))
		},
	}
	addrFlag(cmd, &addr)
	return cmd
}

func NewInvokeCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "invoke <instrument> <action> [args...]",
		Short: "Run an action",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(opts, addr)
			if err != nil {
				return err
			}
			params := make([]any, 0, len(args)-2)
			for _, a := range args[2:] {
				params = append(params, parseValue(a))
			}
			v, err := c.Invoke(args[0], args[1], params...)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}
	addrFlag(cmd, &addr)
	return cmd
}

func NewDescribeCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "describe [instrument]",
		Short: "List instruments, or the features and actions of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(opts, addr)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				names, err := c.Instruments()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			info, err := c.Describe(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
	addrFlag(cmd, &addr)
	return cmd
}

func NewSetPointsCommand(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "setpoints <instrument>",
		Short: "Show the journaled set points of an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(opts, addr)
			if err != nil {
				return err
			}
			sps, err := c.SetPoints(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sps)
		},
	}
	addrFlag(cmd, &addr)
	return cmd
}
