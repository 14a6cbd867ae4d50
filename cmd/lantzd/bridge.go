package main

import (
	"net"
	"os/signal"
	"syscall"

	"github.com/lumasullo/lantz/pkg/serial"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	ListenOptionName = "listen"
	BaudOptionName   = "baud"

	DefaultBridgeAddr = ":3002"
)

func NewBridgeCommand() *cobra.Command {
	var listen string
	var baud int
	cmd := &cobra.Command{
		Use:   "bridge <device>",
		Short: "Relay a local serial device over TCP for socket:// links on other hosts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := serial.OpenBridge(args[0], serial.Config{Name: args[0], Baud: baud})
			if err != nil {
				return err
			}
			defer b.Device.Close()

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			log.Infof("bridge: relaying %s on %s", args[0], ln.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()
			return b.Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&listen, ListenOptionName, DefaultBridgeAddr, "Address to accept peers on")
	cmd.Flags().IntVar(&baud, BaudOptionName, 9600, "Baud rate of the device")
	return cmd
}
