package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devghori1264/aerophoenix/battlefield/internal/api"
	"github.com/devghori1264/aerophoenix/battlefield/internal/config"
	"github.com/devghori1264/aerophoenix/battlefield/internal/contract"
	"github.com/devghori1264/aerophoenix/battlefield/internal/ledger"
	"github.com/devghori1264/aerophoenix/battlefield/internal/natsclient"
	"github.com/devghori1264/aerophoenix/battlefield/internal/server"
	"github.com/devghori1264/aerophoenix/battlefield/internal/storage"
	"github.com/devghori1264/aerophoenix/battlefield/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
)

var (
	configPath string
	grpcAddr   string
	httpAddr   string
	dbPath     string
	natsURL    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "battlefieldd",
	Short:         "Execution host for the battlefield contract",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	f.StringVar(&httpAddr, "http-addr", "", "HTTP shim listen address (overrides config)")
	f.StringVar(&dbPath, "db", "", "Badger DB path (overrides config)")
	f.StringVar(&natsURL, "nats-url", "", "NATS server URL; empty disables the event stream")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "battlefieldd:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if grpcAddr != "" {
		cfg.GRPCAddr = grpcAddr
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if natsURL != "" {
		cfg.NATS.URL = natsURL
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing.Enabled, "battlefieldd", os.Stdout, logger)
	if err != nil {
		return err
	}

	// Create storage
	store, err := storage.NewBadgerStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open badger store: %w", err)
	}
	defer store.Close()

	if err := ledger.New().Seed(cmd.Context(), store, cfg.GenesisAccounts()); err != nil {
		return fmt.Errorf("seed genesis: %w", err)
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithContractAccount(cfg.Contract.Account),
		server.WithContract(contract.New(contract.WithOverflowPolicy(cfg.OverflowPolicy()))),
	}
	if cfg.NATS.URL != "" {
		pub, err := natsclient.NewPublisher(cfg.NATS.URL, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, server.WithEventSink(pub, cfg.NATS.SubjectPrefix))
	}
	srv := server.New(store, opts...)
	logger.Info("contract deployed",
		zap.String("account", srv.Account()),
		zap.String("overflow", srv.Contract().Policy().String()),
	)

	// Start gRPC server
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer()
	srv.RegisterGRPC(grpcServer)

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	// Start HTTP shim
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewHTTPHandler(srv, logger),
	}
	go func() {
		logger.Info("HTTP shim listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()

	// Metrics endpoint
	mux := http.NewServeMux()
	api.RegisterMetrics(mux)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("Prometheus metrics available", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-stop:
		logger.Info("shutdown initiated")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	grpcServer.GracefulStop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn("tracing shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return runErr
}
