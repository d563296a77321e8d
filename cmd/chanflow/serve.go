package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/chanflow/internal/config"
	httpadapter "github.com/aretw0/chanflow/pkg/adapters/http"
	"github.com/aretw0/chanflow/pkg/adapters/process"
	"github.com/aretw0/chanflow/pkg/metrics"
	"github.com/aretw0/chanflow/pkg/node"
	"github.com/aretw0/chanflow/pkg/observability"
	"github.com/aretw0/chanflow/pkg/ports"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node and accept protocol messages over HTTP",
	Long: `Starts a node with the identity from the seed file or the configured
external signer. The node answers proposals posted to /messages and exposes
its channels, identity and metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		p, err := startPeer(cfg, logger)
		if err != nil {
			return err
		}
		defer p.close()
		srv := p.server

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting node", "addr", srv.Addr, "xpub", p.node.Xpub(), "peers", len(cfg.Peers))
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			// Give in-flight runs a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", cfg.RunTimeout, "err", err)
				return srv.Close()
			}
			logger.Info("node stopped gracefully")
			return nil
		}
	},
}

// peer is a node answering protocol messages over HTTP.
type peer struct {
	node   *node.Node
	server *http.Server
	close  func() error
}

// startPeer opens storage and builds the node and its HTTP server. The server
// is not listening yet.
func startPeer(cfg config.Config, logger *slog.Logger) (*peer, error) {
	st, err := openStorage(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		_ = st.close()
		return nil, err
	}

	waiters := transport.NewWaiters()
	tr := httpadapter.NewTransport(cfg.Peers, waiters, httpadapter.WithTransportLogger(logger))
	opts := []node.Option{
		node.WithLogger(logger),
		node.WithWaiters(waiters),
		node.WithLifecycleHooks(observability.Combine(
			observability.LoggingHooks(logger),
			collector.Hooks(),
		)),
	}
	if st.locker != nil {
		opts = append(opts, node.WithLocker(st.locker))
	}
	n, err := newNode(cfg, logger, st, tr, opts...)
	if err != nil {
		_ = st.close()
		return nil, fmt.Errorf("error initializing node: %w", err)
	}

	return &peer{
		node: n,
		server: &http.Server{
			Addr: cfg.Listen,
			Handler: httpadapter.NewHandler(n,
				httpadapter.WithLogger(logger),
				httpadapter.WithMetricsHandler(metrics.Handler(registry)),
			),
			ReadHeaderTimeout: 10 * time.Second,
		},
		close: st.close,
	}, nil
}

// newNode signs with the configured external program, or with the seed file
// when none is set.
func newNode(cfg config.Config, logger *slog.Logger, st *storage, tr ports.Transport, opts ...node.Option) (*node.Node, error) {
	if cfg.Signer.Enabled() {
		signer, err := process.NewSigner(cfg.Signer.Command, cfg.Signer.Args,
			process.WithBaseDir(cfg.Signer.Dir),
			process.WithExpectedXpub(cfg.Signer.Xpub),
			process.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return node.NewWithSigner(cfg.Signer.Xpub, signer, cfg.Network, st.store, tr, opts...)
	}
	keys, err := readKeyring(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	return node.New(keys, cfg.Network, st.store, tr, opts...)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
