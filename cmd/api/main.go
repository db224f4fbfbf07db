package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/halolight/halolight-api-go/internal/audit"
	"github.com/halolight/halolight-api-go/internal/auth"
	"github.com/halolight/halolight-api-go/internal/config"
	"github.com/halolight/halolight-api-go/internal/httpapi"
	"github.com/halolight/halolight-api-go/internal/logger"
	"github.com/halolight/halolight-api-go/internal/migrate"
	"github.com/halolight/halolight-api-go/internal/obs"
	"github.com/halolight/halolight-api-go/internal/office"
	"github.com/halolight/halolight-api-go/internal/store/pg"
	"github.com/halolight/halolight-api-go/internal/worker/sweep"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, cfg.IsDevelopment(), cfg.LogLevel)
	slog.SetDefault(log)
	audit.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	obs.Init()
	obs.InitBuildInfo(obs.Version, obs.Commit)

	store, err := pg.Open(cfg.Database.URL, pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if cfg.Migrate.OnStart {
		mgr := migrate.NewManager(store.DB(), cfg.Database.URL, migrate.WithLogger(log))
		if err := mgr.Up(ctx); err != nil {
			return err
		}
		if cfg.Migrate.Seed {
			if err := mgr.Seed(ctx); err != nil {
				return err
			}
		}
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWT.Secret,
		auth.WithRefreshSecret(cfg.JWT.RefreshSecret),
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithAccessTTL(auth.ParseDuration(cfg.JWT.AccessExpiresIn, auth.DefaultAccessTTL)),
		auth.WithRefreshTTL(auth.ParseDuration(cfg.JWT.RefreshExpiresIn, auth.DefaultRefreshTTL)),
	)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(store, tokens,
		auth.WithDefaultRole(cfg.Auth.DefaultRole),
		auth.WithLogger(log),
	)
	if err != nil {
		return err
	}
	adminSvc, err := auth.NewRBACService(store)
	if err != nil {
		return err
	}
	officeSvc, err := office.NewService(store,
		office.WithLogger(log),
		office.WithStatsTTL(cfg.Dashboard.CacheTTL),
	)
	if err != nil {
		return err
	}

	ready := httpapi.ReadyProbe{DB: store.DB()}
	api := httpapi.New(httpapi.Deps{
		Auth:    authSvc,
		Admin:   adminSvc,
		Office:  officeSvc,
		Ready:   ready,
		Logger:  log,
		Version: obs.Version,
		Options: httpapi.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			RateRPS:        cfg.RateLimit.RPS,
			RateBurst:      cfg.RateLimit.Burst,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
			TrustProxy:     cfg.HTTP.TrustProxy,
		},
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewHealthServer(ready, log)
	health.Register(grpcSrv)

	var scheduler *sweep.Scheduler
	if cfg.Sweep.Enabled {
		scheduler, err = sweep.NewScheduler(cfg.Sweep.Schedule, sweep.Job{Sweeper: authSvc, Logger: log})
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", slog.String("addr", httpSrv.Addr), slog.String("version", obs.Version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Info("grpc server listening", slog.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		health.Watch(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		grpcSrv.GracefulStop()
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("sweeper stop: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
