package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lumasullo/lantz/pkg/config"
	"github.com/lumasullo/lantz/pkg/drivers"
	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/metrics"
	"github.com/lumasullo/lantz/pkg/server"
	"github.com/lumasullo/lantz/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const RestoreOptionName = "restore"

func NewServeCommand(opts *options) *cobra.Command {
	var addr string
	var restore bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the configured instruments and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return serve(cfg, restore)
		},
	}
	cmd.Flags().StringVar(&addr, AddrOptionName, "", fmt.Sprintf("Address to bind. E.g. %s", config.DefaultHTTPAddr))
	cmd.Flags().BoolVar(&restore, RestoreOptionName, false, "Write the journaled set points back to the instruments after initialize")
	return cmd
}

func openState(cfg *config.Config) (*state.State, error) {
	if cfg.State == nil || cfg.State.Path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0755); err != nil {
		return nil, err
	}
	return state.NewState(cfg.State.Path)
}

// openInstruments opens and initializes every configured instrument. On
// failure the instruments opened so far are finalized again.
func openInstruments(cfg *config.Config, rec lantz.Recorder) ([]lantz.Instrument, error) {
	var insts []lantz.Instrument
	for _, ic := range cfg.Instruments {
		inst, err := drivers.Open(ic)
		if err == nil {
			if rec != nil {
				inst.SetRecorder(rec)
			}
			err = inst.Initialize()
			if err != nil {
				inst.Finalize()
			}
		}
		if err != nil {
			finalizeAll(insts)
			return nil, fmt.Errorf("instrument %s (%s): %w", ic.Name, ic.Driver, err)
		}
		log.Infof("Opened %s (%s) on %s", ic.Name, ic.Driver, ic.Link)
		insts = append(insts, inst)
	}
	return insts, nil
}

func finalizeAll(insts []lantz.Instrument) {
	for i := len(insts) - 1; i >= 0; i-- {
		if err := insts[i].Finalize(); err != nil {
			log.Warnf("Finalizing %s: %v", insts[i].Name(), err)
		}
	}
}

// restoreSetPoints writes the journaled values back; failures are logged
// and skipped
func restoreSetPoints(st *state.State, insts []lantz.Instrument) {
	for _, inst := range insts {
		sps, err := st.SetPoints(inst.Name())
		if err != nil {
			log.Warnf("Reading set points of %s: %v", inst.Name(), err)
			continue
		}
		for _, sp := range sps {
			var v any = sp.Value
			if q, ok := sp.Quantity(); ok {
				v = q
			}
			if sp.Key == nil {
				err = inst.Set(sp.Feature, v)
			} else {
				err = inst.SetIndexed(sp.Feature, sp.Key, v)
			}
			if err != nil {
				log.Warnf("Restoring %s.%s: %v", inst.Name(), sp.Feature, err)
				continue
			}
			log.Infof("Restored %s.%s", inst.Name(), sp.Feature)
		}
	}
}

func newRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return reg, nil
}

func serve(cfg *config.Config, restore bool) error {
	st, err := openState(cfg)
	if err != nil {
		return err
	}
	var rec lantz.Recorder
	var sps server.SetPoints
	if st != nil {
		defer st.Close()
		rec, sps = st, st
	}

	insts, err := openInstruments(cfg, rec)
	if err != nil {
		return err
	}
	defer finalizeAll(insts)
	if restore && st != nil {
		restoreSetPoints(st, insts)
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	s, err := server.New(insts, sps, reg, server.VersionInfo{Version: buildVersion, BuildDate: buildDate})
	if err != nil {
		return err
	}

	h := &http.Server{Addr: cfg.HTTP.Addr, Handler: s.Handler()}
	errc := make(chan error, 1)
	go func() {
		log.Infof("Serving %d instruments on %s", len(insts), cfg.HTTP.Addr)
		errc <- h.ListenAndServe()
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	select {
	case err := <-errc:
		return err
	case sig := <-done:
		log.Infof("Received %v, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
