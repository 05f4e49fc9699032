package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/switchboard/backend"
	"github.com/tailored-agentic-units/switchboard/transport/rpc"
	"github.com/tailored-agentic-units/switchboard/transport/ws"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend with WebSocket and Connect RPC endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			b, err := backend.New(cfg, backend.WithLogger(logger))
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ln.Addr())
			return serve(ctx, b, ln, logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides config)")
	return cmd
}

// serve runs the backend and its HTTP endpoints until ctx ends.
func serve(ctx context.Context, b *backend.Backend, ln net.Listener, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           routes(b, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// routes mounts the WebSocket bridge at GET /ws, the Connect service under
// its service path, and a health probe.
func routes(b *backend.Backend, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /ws", ws.New(b, ws.Config{},
		ws.WithLogger(logger),
		ws.WithObserver(b.Observer()),
	))

	mux.Handle(rpc.NewHandler(b,
		rpc.WithObserver(b.Observer()),
		rpc.WithHandlerOptions(connect.WithInterceptors(rpc.LoggingInterceptor(logger))),
	))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b.Metrics())
	})

	return mux
}
