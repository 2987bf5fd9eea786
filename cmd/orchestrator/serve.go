package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cosim/orchestrator/api/rest"
	"cosim/orchestrator/internal/config"
	"cosim/orchestrator/internal/engine"
	"cosim/orchestrator/internal/registry"
	"cosim/orchestrator/pkg/logger"
	"cosim/orchestrator/pkg/types"
)

func newServeCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().WithConfigPath(cfgFile).Load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format, nil)

			store := registry.NewStore(cfg.Engine.StrictRegistration)
			eng := engine.New(cfg.Engine, store, nil)
			srv := rest.NewServer(cfg.Server, eng, store)
			eng.SetTransport(srv)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sink, err := openEventLog(cfg.Output.Dir)
			if err != nil {
				logger.Warn("event log disabled: %v", err)
			} else {
				defer sink.Close()
			}
			go recordEvents(ctx, eng, sink)

			go func() {
				if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("engine stopped: %v", err)
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("received %s, shutting down", sig)
			}

			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address override")
	return cmd
}

func openEventLog(dir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "events.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// recordEvents drains the engine's change streams into the event log, one
// JSON line per global state or status change. The streams are drained
// even when the log could not be opened so the engine never drops events
// against a full buffer.
func recordEvents(ctx context.Context, eng *engine.Engine, sink io.Writer) {
	var enc *json.Encoder
	if sink != nil {
		enc = json.NewEncoder(sink)
	}

	type stateRecord struct {
		Kind string `json:"kind"`
		types.StateChangeEvent
	}
	type statusRecord struct {
		Kind string `json:"kind"`
		types.StatusChangeEvent
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eng.Events():
			if enc != nil {
				_ = enc.Encode(stateRecord{Kind: "state", StateChangeEvent: ev})
			}
		case ev := <-eng.StatusEvents():
			if enc != nil {
				_ = enc.Encode(statusRecord{Kind: "status", StatusChangeEvent: ev})
			}
		}
	}
}
