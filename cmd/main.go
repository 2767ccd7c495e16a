package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/tripchat/config"
	"github.com/cwrk-planet/tripchat/internal/auth"
	"github.com/cwrk-planet/tripchat/internal/cache"
	"github.com/cwrk-planet/tripchat/internal/idgen"
	"github.com/cwrk-planet/tripchat/internal/logger"
	"github.com/cwrk-planet/tripchat/internal/postgres"
	"github.com/cwrk-planet/tripchat/internal/service"
	"github.com/cwrk-planet/tripchat/internal/sqlite"
	grpcx "github.com/cwrk-planet/tripchat/internal/transport/grpc"
	httpx "github.com/cwrk-planet/tripchat/internal/transport/http"
	"github.com/cwrk-planet/tripchat/internal/transport/ws"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

type messageStore interface {
	service.MessageStore
	Close() error
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting tripchat",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	// экспортёра нет: span нужен для trace_id в логах
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}()

	// --- history cache ---
	var pageCache service.PageCache = cache.Noop{}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		pageCache = rc
		slog.Info("history cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	authn, err := newAuthenticator(cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// --- services ---
	var policies []service.Policy
	if cfg.Chat.MaxMessageLength > 0 {
		policies = append(policies, service.MaxLength(cfg.Chat.MaxMessageLength))
	}
	if cfg.Chat.RateLimit > 0 {
		policies = append(policies, service.NewRateLimit(cfg.Chat.RateLimit, cfg.Chat.RateBurst))
	}

	coord := service.NewCoordinator()
	relay := service.NewRelay(coord, store, idgen.NewULID(), policies...)
	pager := service.NewHistoryPager(store, pageCache, cfg.Redis.TTL)
	pager.SetMaxLimit(cfg.Chat.HistoryMaxLimit)

	// --- WS & HTTP ---
	wsServer := ws.NewServer(ws.Config{
		PingInterval:   cfg.WS.PingInterval,
		WriteWait:      cfg.WS.WriteWait,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}, coord, relay, authn)

	router := httpx.NewRouter(httpx.Deps{
		Handler:        httpx.NewHandler(pager, coord),
		WS:             wsServer.HandleWS,
		Auth:           authn,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := httpx.NewServer(httpx.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, router)

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		return httpSrv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// hijacked соединения http.Server.Shutdown не закрывает
		wsServer.Shutdown()
		return nil
	})

	if cfg.GRPC.Addr != "" {
		grpcServer := grpcx.NewGRPCServer(grpcx.NewServer(pager, coord, authn), cfg.GRPC.DefaultTimeout)
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		g.Go(func() error {
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
	}
	slog.Info("stopped")
}

func openStore(ctx context.Context, cfg config.Storage) (messageStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func newAuthenticator(cfg config.Auth) (auth.Authenticator, error) {
	switch cfg.Mode {
	case config.AuthJWT:
		return auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.Issuer, cfg.ClockSkew)
	default:
		slog.Warn("header auth mode: X-User-ID is trusted without token verification")
		return auth.HeaderAuthenticator{}, nil
	}
}
