package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	_ "go.uber.org/automaxprocs" // sets GOMAXPROCS from the container's CPU limit on init
	"go.uber.org/zap"

	"github.com/cedis/server/internal/client"
	"github.com/cedis/server/internal/command"
	"github.com/cedis/server/internal/config"
	"github.com/cedis/server/internal/keywatcher"
	"github.com/cedis/server/internal/logging"
	"github.com/cedis/server/internal/metrics"
	"github.com/cedis/server/internal/persistence"
	"github.com/cedis/server/internal/pubsub"
	"github.com/cedis/server/internal/replication"
	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/server"
	"github.com/cedis/server/internal/store"
)

func main() {
	flags := pflag.NewFlagSet("cedis-server", pflag.ContinueOnError)
	cfg, err := config.Load(flags, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	metricsRegistry := metrics.NewRegistry()
	st := store.NewStore(cfg.Databases)
	ps := pubsub.New()
	kw := keywatcher.New()

	snap := persistence.NewSnapshotter(cfg.Dir, cfg.DBFilename, st)
	disp := command.NewDispatcher(st, cfg, ps, kw, logger)
	disp.Metrics = metricsRegistry
	disp.Snapshot = snap
	disp.RunID = uuid.NewString()

	restore(cfg, st, disp, logger)

	var aof *persistence.AOF
	if cfg.AppendOnly {
		aof, err = persistence.Open(cfg.Dir, persistence.ParseFsyncPolicy(cfg.AppendFsync), storeDump{st}, logger)
		if err != nil {
			logger.Fatal("failed to open append-only file", zap.Error(err))
		}
		disp.Persist = aof
	}

	repl := replication.New(cfg, st, snap, logger)
	repl.SetDispatch(func(c *client.State, args [][]byte) resp.Value {
		return disp.Dispatch(c, args)
	})
	disp.Repl = repl
	if cfg.ReplicaOfHost != "" {
		if err := repl.ReplicaOf(cfg.ReplicaOfHost, fmt.Sprintf("%d", cfg.ReplicaOfPort)); err != nil {
			logger.Warn("failed to start as replica", zap.Error(err))
		}
	}

	srv := server.New(cfg, logger, disp, metricsRegistry, aof, snap)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- srv.ListenAndServe(ctx)
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runMetricsServer(ctx, cfg.MetricsListenAddr, metricsRegistry, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
		stop()
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("metrics http server error", zap.Error(err))
		}
		stop()
	}

	if aof != nil {
		if err := aof.Close(); err != nil {
			logger.Warn("failed to close append-only file", zap.Error(err))
		}
	}
	logger.Info("server stopped")
}

// restore loads on-disk state at startup: a binary snapshot if present,
// then AOF replay on top of it (spec.md §4.8's "AOF, if enabled, is the
// higher-fidelity log and is replayed after any snapshot load").
func restore(cfg *config.Config, st *store.Store, disp *command.Dispatcher, logger *zap.Logger) {
	dbs, loaded, err := persistence.LoadSnapshot(cfg.Dir, cfg.DBFilename, cfg.Databases)
	if err != nil {
		logger.Warn("failed to load snapshot", zap.Error(err))
	} else if loaded {
		st.Lock()
		st.Replace(dbs)
		st.Unlock()
		logger.Info("loaded snapshot", zap.String("file", cfg.DBFilename))
	}

	if !cfg.AppendOnly {
		return
	}
	replicationClient := &client.State{IsReplicationLink: true, Authenticated: true}
	count := 0
	err = persistence.Replay(cfg.Dir, func(dbIndex int, args [][]byte) {
		replicationClient.DBIndex = dbIndex
		disp.Dispatch(replicationClient, args)
		count++
	})
	if err != nil {
		logger.Warn("append-only file replay stopped early", zap.Error(err))
	}
	if count > 0 {
		logger.Info("replayed append-only file", zap.Int("commands", count))
	}
}

func runMetricsServer(ctx context.Context, addr string, reg *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy"}`)
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics http server starting", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
