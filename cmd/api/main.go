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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"confreg.org/internal/auth"
	"confreg.org/internal/config"
	"confreg.org/internal/httpapi"
	"confreg.org/internal/notify"
	"confreg.org/internal/obs"
	"confreg.org/internal/registry"
	"confreg.org/internal/store/pg"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "confreg-api",
		Short:         "Conference registration administration API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("confreg-api %s (%s)\n", version, obs.Commit())
		},
	})
	return cmd
}

type closer func() error

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (registry.Store, closer, error) {
	if cfg.DB.DSN == "" {
		log.Warn("no database configured, using the in-memory store; data is lost on restart and bootstrap-admin cannot reach it",
			zap.String("seed_env", config.AdminPasswordEnv))
		return registry.NewInMemory(), func() error { return nil }, nil
	}
	store, err := pg.Open(cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.WaitReady(ctx, cfg.DB.WaitAttempts, cfg.DB.WaitBase); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("database not reachable: %w", err)
	}
	log.Info("connected to postgres")
	return store, store.Close, nil
}

// seedAdmin creates the configured administrator in the in-memory store so
// the service is usable without PostgreSQL. Without a password nobody can
// log in, which is logged rather than treated as fatal.
func seedAdmin(ctx context.Context, svc *registry.Service, seed config.SeedConfig, log *zap.Logger) error {
	if seed.Password == "" {
		log.Warn("in-memory store has no administrator; set the seed password to create one",
			zap.String("env", config.AdminPasswordEnv))
		return nil
	}
	admin, err := svc.CreateAdmin(ctx, registry.CreateAdminRequest{
		Fullname: seed.Fullname,
		Email:    seed.Email,
		Username: seed.Username,
		Password: seed.Password,
	})
	if err != nil {
		return fmt.Errorf("seed administrator: %w", err)
	}
	log.Info("seeded in-memory administrator", zap.String("username", admin.Username), zap.Int64("admin_id", admin.ID))
	return nil
}

func newDispatcher(cfg *config.Config, log *zap.Logger) *notify.Dispatcher {
	var sms notify.SMSSender
	if cfg.SMS.APIKey != "" {
		sms = notify.NewTermiiClient(cfg.SMS, log)
	} else {
		log.Info("termii api key not set, attendee SMS disabled")
	}
	return notify.NewDispatcher(notify.NewSMTPMailer(cfg.Mail, log), sms, log)
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	dispatcher := newDispatcher(cfg, log)
	svc := registry.NewService(store,
		registry.WithTokenMinter(tokens),
		registry.WithNotifier(dispatcher),
		registry.WithLogger(log),
	)
	if _, inMemory := store.(*registry.InMemory); inMemory {
		if err := seedAdmin(ctx, svc, cfg.Seed, log); err != nil {
			_ = dispatcher.Close(ctx)
			return err
		}
	}

	metrics := obs.NewMetrics()
	metrics.SetBuildInfo(version, obs.Commit())

	api := httpapi.New(svc, tokens, metrics, log, httpapi.Options{
		Version:        version,
		CORSOrigins:    cfg.HTTP.CORS,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBody:        cfg.HTTP.MaxBody,
		LoginRate:      cfg.Login.Rate,
		LoginBurst:     cfg.Login.Burst,
		SecureCookies:  len(cfg.HTTP.CORS) > 0,
	})
	handler, err := api.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthService(svc, log)
		health.Register(grpcSrv)
		go health.Run(healthCtx, 10*time.Second)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	stopHealth()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notifications still pending at shutdown", zap.Error(err))
	}
	log.Info("stopped")
	return runErr
}
