package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	gatewayserver "github.com/voxbridge/voxbridge/pkg/gateway/server"
	"github.com/voxbridge/voxbridge/pkg/store"
	"github.com/voxbridge/voxbridge/pkg/store/migrations"
)

type bridgeDeps struct {
	loadConfig   func() (config.Config, error)
	newRecorder  func(context.Context, config.Config, *slog.Logger) (store.Recorder, func(), error)
	newServer    func(config.Config, *slog.Logger, store.Recorder) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultBridgeDeps() bridgeDeps {
	return bridgeDeps{
		loadConfig:  config.LoadFromEnv,
		newRecorder: buildRecorder,
		newServer:   gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// buildRecorder picks the persistence target: Postgres when a database URL is
// configured, the webhook collector when only that is set, otherwise none.
func buildRecorder(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Recorder, func(), error) {
	if cfg.DatabaseURL != "" {
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		rec, err := store.NewPostgresRecorder(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		logger.Info("call records persisted to database")
		return rec, rec.Close, nil
	}
	if cfg.RecorderURL != "" {
		logger.Info("call records posted to collector", "url", cfg.RecorderURL)
		return store.NewWebhookRecorder(cfg.RecorderURL), func() {}, nil
	}
	logger.Info("call recording disabled")
	return store.NopRecorder{}, func() {}, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runBridge(ctx context.Context, logger *slog.Logger, deps bridgeDeps) error {
	if deps.loadConfig == nil || deps.newRecorder == nil || deps.newServer == nil {
		return errors.New("missing dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	recorder, closeRecorder, err := deps.newRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRecorder()

	srv := deps.newServer(cfg, logger, recorder)
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting voice bridge", "addr", cfg.Addr, "backend", string(cfg.Backend))

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	srv.SetDraining()
	if n := srv.ActiveCalls(); n > 0 {
		logger.Info("waiting for live calls to finish", "count", n)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.WaitCalls(waitCtx) {
		srv.CancelCalls()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("voice bridge stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps bridgeDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(stderr, "voxbridge: %v\n", err)
		return 1
	}

	if err := runBridge(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voxbridge: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultBridgeDeps()))
}
