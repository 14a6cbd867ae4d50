package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/lumasullo/lantz/pkg/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	ConfigOptionName    = "config"
	LogLevelOptionName  = "log-level"
	LogFormatOptionName = "log-format"
	AddrOptionName      = "addr"
)

type options struct {
	configPath string
	logLevel   string
	logFormat  string
}

// load reads the configuration file, falling back to the defaults when it
// does not exist yet
func (o *options) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debugf("No config file at %s, using defaults", o.configPath)
		return config.NewDefaultConfig(o.configPath), nil
	}
	return cfg, err
}

func initLog(out io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetOutput(out)
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "lantzd",
		Short:        "Control laboratory instruments over serial lines and vendor libraries",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			level, format := cfg.Log.Level, cfg.Log.Format
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			if opts.logFormat != "" {
				format = opts.logFormat
			}
			return initLog(cmd.ErrOrStderr(), level, format)
		},
	}
	cmd.SetOut(out)
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewSetPointsCommand(opts))
	cmd.AddCommand(NewStreamCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewBridgeCommand())
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))
	cmd.PersistentFlags().StringVar(&opts.configPath, ConfigOptionName, config.DefaultConfigPath(), "Config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, LogLevelOptionName, "", "Log level: error, warn, info or debug")
	cmd.PersistentFlags().StringVar(&opts.logFormat, LogFormatOptionName, "", "Log format: text or json")
	return cmd
}
