// Package main provides the entry point for the hotspot backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sokonet/sokonet-hotspot/internal/api"
	"github.com/sokonet/sokonet-hotspot/internal/auth"
	"github.com/sokonet/sokonet-hotspot/internal/config"
	"github.com/sokonet/sokonet-hotspot/internal/db"
	"github.com/sokonet/sokonet-hotspot/internal/mpesa"
	"github.com/sokonet/sokonet-hotspot/internal/payment"
	"github.com/sokonet/sokonet-hotspot/internal/plans"
	"github.com/sokonet/sokonet-hotspot/internal/router"
	"github.com/sokonet/sokonet-hotspot/internal/scheduler"
)

var configDir string

func main() {
	root := &cobra.Command{
		Use:   "sokonet-hotspot",
		Short: "Pay-as-you-go hotspot access backend",
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "config directory")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the backend server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "Run one revocation recovery pass over due sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newGateway(cfg *config.Config, logger *zap.Logger) (router.Router, error) {
	if cfg.Router.Address == "" {
		logger.Warn("no router configured, gateway calls are no-ops")
		return &router.NoopRouter{}, nil
	}
	return router.NewMikroTikClient(router.MikroTikConfig{
		Address:    cfg.Router.Address,
		Port:       cfg.Router.Port,
		Username:   cfg.Router.Username,
		Password:   cfg.Router.Password,
		PrivateKey: cfg.Router.PrivateKey,
	}, logger.Named("mikrotik"))
}

func newTokenCache(cfg *config.Config, logger *zap.Logger) mpesa.TokenCache {
	if cfg.Redis.Addr == "" {
		return mpesa.NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	logger.Info("using redis token cache", zap.String("addr", cfg.Redis.Addr))
	return mpesa.NewRedisCache(client)
}

func runServe() error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()
	logger.Info("database opened", zap.String("path", cfg.DB.Path))

	catalog := plans.NewCatalog(database, logger.Named("plans"))
	if err := catalog.Seed(); err != nil {
		return err
	}

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}
	if cfg.Router.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := gateway.TestConnection(ctx); err != nil {
			logger.Warn("gateway connection test failed", zap.Error(err))
		} else {
			logger.Info("gateway connected", zap.String("address", cfg.Router.Address))
		}
		cancel()
	}

	provider := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
	}, newTokenCache(cfg, logger), logger.Named("mpesa"))

	sched := scheduler.New(database, gateway, scheduler.Config{
		MaxAttempts:   cfg.Scheduler.MaxAttempts,
		RetryBackoff:  cfg.Scheduler.RetryBackoff,
		SweepInterval: cfg.Scheduler.SweepInterval,
	}, logger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	reconciler := payment.NewReconciler(database, catalog, provider, sched, logger.Named("payment"))

	keyPair, err := auth.LoadOrGenerateKeyPair(
		filepath.Join(cfg.Auth.KeysDir, "private.pem"),
		filepath.Join(cfg.Auth.KeysDir, "public.pem"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	jwtService := auth.NewJWTService(keyPair, cfg.Auth.Issuer)

	handler := api.NewHandler(reconciler, database, catalog, jwtService,
		cfg.Auth.OperatorPassword, cfg.TokenTTL(), logger.Named("api"))
	apiRouter := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: apiRouter,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func runRecover() error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}

	sched := scheduler.New(database, gateway, scheduler.Config{
		MaxAttempts:   cfg.Scheduler.MaxAttempts,
		RetryBackoff:  cfg.Scheduler.RetryBackoff,
		SweepInterval: cfg.Scheduler.SweepInterval,
	}, logger.Named("scheduler"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return sched.RunRecovery(ctx)
}
