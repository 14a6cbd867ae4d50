package main

import (
	"context"
	"fmt"
	"io"

	"github.com/lumasullo/lantz/pkg/config"
	"github.com/lumasullo/lantz/pkg/drivers"
	"github.com/lumasullo/lantz/pkg/drivers/labjack"
	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/sink"
	"github.com/lumasullo/lantz/pkg/stream"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	ChannelsOptionName = "channels"
	RateOptionName     = "rate"
	ScansOptionName    = "scans"
	BatchesOptionName  = "batches"
	PublishOptionName  = "publish"
)

type streamer interface {
	Stream() *stream.Engine
}

type streamOptions struct {
	channels []int
	rate     float64
	scans    int
	batches  int
	publish  bool
}

func NewStreamCommand(opts *options) *cobra.Command {
	so := &streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream <instrument>",
		Short: "Open a data acquisition instrument locally and stream a number of batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ic, ok := cfg.Instrument(args[0])
			if !ok {
				return fmt.Errorf("%w: instrument %s is not configured", lantz.ErrNotFound, args[0])
			}
			var s *sink.Sink
			if so.publish {
				if cfg.Redis == nil || cfg.Redis.Addr == "" {
					return fmt.Errorf("--%s needs redis.addr in %s", PublishOptionName, cfg.Path())
				}
				s, err = sink.New(cmd.Context(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
				if err != nil {
					return err
				}
				defer s.Close()
			}
			return runStream(cmd.Context(), cmd.OutOrStdout(), ic, so, s)
		},
	}
	cmd.Flags().IntSliceVar(&so.channels, ChannelsOptionName, []int{0}, "Analog inputs in the scan list")
	cmd.Flags().Float64Var(&so.rate, RateOptionName, 1000, "Requested scans per second")
	cmd.Flags().IntVar(&so.scans, ScansOptionName, 100, "Scans per read")
	cmd.Flags().IntVar(&so.batches, BatchesOptionName, 10, "Number of batches to read")
	cmd.Flags().BoolVar(&so.publish, PublishOptionName, false, "Publish batches to the configured redis instead of printing them")
	return cmd
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// scanList resolves analog input numbers to the addresses streamed by the device
func scanList(inst lantz.Instrument, channels []int) ([]int, error) {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = fmt.Sprintf("AIN%d", ch)
	}
	res, err := inst.Invoke("addresses", names)
	if err != nil {
		return nil, err
	}
	addrs, ok := res.([]labjack.Address)
	if !ok {
		return nil, fmt.Errorf("%w: addresses returned %T", lantz.ErrDecode, res)
	}
	list := make([]int, len(addrs))
	for i, a := range addrs {
		list[i] = a.Address
	}
	return list, nil
}

func runStream(ctx context.Context, out io.Writer, ic *config.Instrument, so *streamOptions, s *sink.Sink) error {
	inst, err := drivers.Open(ic)
	if err != nil {
		return err
	}
	defer inst.Finalize()
	if err := inst.Initialize(); err != nil {
		return err
	}
	st, ok := inst.(streamer)
	if !ok {
		return fmt.Errorf("%w: %s (%s) does not stream", lantz.ErrInvalidArgument, ic.Name, ic.Driver)
	}

	list, err := scanList(inst, so.channels)
	if err != nil {
		return err
	}
	eng := st.Stream()
	actual, err := eng.Start(so.scans, list, so.rate)
	if err != nil {
		return err
	}
	defer eng.Stop()
	fmt.Fprintf(out, "session %s: %d channels at %v scans/s\n", eng.Session().ID, len(so.channels), actual)

	for i := 0; i < so.batches; i++ {
		b, err := eng.Read()
		if err != nil {
			return err
		}
		if s != nil {
			if err := s.Publish(ctx, ic.Name, b); err != nil {
				return err
			}
			log.Debugf("Published batch %d of %s", b.Seq, ic.Name)
			continue
		}
		fmt.Fprintf(out, "batch %d: %d scans, backlog %d/%d", b.Seq, b.Scans(), b.DeviceBacklog, b.HostBacklog)
		for j, ch := range so.channels {
			fmt.Fprintf(out, " AIN%d=%.4g", ch, mean(b.Channel(j)))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func NewHistoryCommand(opts *options) *cobra.Command {
	var n int64
	cmd := &cobra.Command{
		Use:   "history <instrument>",
		Short: "Show the latest published batches of an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Redis == nil || cfg.Redis.Addr == "" {
				return fmt.Errorf("no redis.addr in %s", cfg.Path())
			}
			s, err := sink.New(cmd.Context(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
			if err != nil {
				return err
			}
			defer s.Close()
			msgs, err := s.History(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s session %s batch %d: %d scans\n",
					m.Time.Format("2006-01-02T15:04:05.000Z07:00"), m.Batch.Session, m.Batch.Seq, m.Batch.Scans())
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&n, "number", "n", 10, "Number of batches")
	return cmd
}
