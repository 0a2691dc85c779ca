package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/natefinch/lumberjack"
	"google.golang.org/grpc"

	"github.com/storyhub/presencehub/pkg/pushapi"
	"github.com/storyhub/presencehub/server/internal/api"
	"github.com/storyhub/presencehub/server/internal/auth"
	"github.com/storyhub/presencehub/server/internal/config"
	"github.com/storyhub/presencehub/server/internal/hub"
	"github.com/storyhub/presencehub/server/internal/metrics"
	"github.com/storyhub/presencehub/server/internal/queue"
	"github.com/storyhub/presencehub/server/internal/receiver"
	"github.com/storyhub/presencehub/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "presencehub: load .env:", err)
	}

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("presencehub-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.Log.SlogLevel())
	if cfg.Server.Log.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Server.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		defer rotated.Close()
		out := io.MultiWriter(os.Stdout, rotated)
		slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
	}

	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"ws_path", cfg.Server.WS.Path,
		"queue", cfg.Server.Queue.Enabled(),
	)

	validator, err := newValidator(cfg.Server.Token)
	if err != nil {
		slog.Error("failed to build token validator", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	h := hub.New(validator, hub.WithLogger(slog.Default()), hub.WithObserver(m))
	go h.Run(ctx)
	if err := m.Track(h); err != nil {
		slog.Error("failed to register hub metrics", "err", err)
		os.Exit(1)
	}

	// gRPC push service with optional API key authentication interceptor.
	interceptor := auth.APIKeyInterceptor(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	pushapi.RegisterPushServiceServer(grpcSrv, receiver.New(h))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port",
			"port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC push service listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// Combined HTTP server: WebSocket endpoint + REST API + /metrics.
	wsSrv := ws.New(h, ws.Options{
		SendBuffer:     cfg.Server.WS.SendBuffer,
		MaxMessageSize: cfg.Server.WS.MaxMessageSize,
		PongWait:       cfg.Server.WS.PongWait,
	}, slog.Default())
	guard := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)

	httpMux := http.NewServeMux()
	httpMux.Handle(cfg.Server.WS.Path, wsSrv)
	httpMux.Handle("/", api.New(h, guard, m.Handler()))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	if cfg.Server.Queue.Enabled() {
		consumer := queue.New(cfg.Server.Queue.URL(), cfg.Server.Queue.Name, h, slog.Default())
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("queue consumer stopped", "err", err)
			}
		}()
	}

	// Hot reload only changes the log level; listeners and keys need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(updated.Server.Log.SlogLevel())
			slog.Info("config hot-reloaded", "log_level", updated.Server.Log.Level)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("presencehub-server shutting down")
	<-h.Done()
	grpcSrv.GracefulStop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// newValidator builds the JWT validator from the token config: an HMAC
// secret from the environment or an RSA public key file.
func newValidator(c config.TokenConfig) (*auth.JWTValidator, error) {
	var opts []auth.ValidatorOption
	if c.Issuer != "" {
		opts = append(opts, auth.WithIssuer(c.Issuer))
	}
	if c.Leeway > 0 {
		opts = append(opts, auth.WithLeeway(c.Leeway))
	}

	if c.PublicKeyFile != "" {
		pub, err := auth.LoadRSAPublicKey(c.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		return auth.NewRSAValidator(pub, opts...), nil
	}
	secret := c.Secret()
	if secret == "" {
		return nil, fmt.Errorf("token secret: environment variable %s is empty", c.SecretEnv)
	}
	return auth.NewHMACValidator([]byte(secret), opts...), nil
}
