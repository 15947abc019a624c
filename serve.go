package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"mazearena/auth"
	"mazearena/config"
	"mazearena/maze"
	"mazearena/server"
)

// loadConfig 读取 .env 与环境变量，再用显式给出的 flag 覆盖
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var files []string
	if f, _ := cmd.Flags().GetString("env-file"); f != "" {
		files = append(files, f)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	override("addr", &cfg.ListenAddr)
	override("admin-addr", &cfg.AdminAddr)
	override("cert", &cfg.CertFile)
	override("key", &cfg.KeyFile)
	override("users", &cfg.UsersFile)
	override("log-file", &cfg.LogFile)
	override("log-level", &cfg.LogLevel)
	override("trace-exporter", &cfg.TraceExporter)
	if flags.Changed("insecure") {
		cfg.Insecure, _ = flags.GetBool("insecure")
	}
	return cfg, cfg.Validate()
}

func userBackend(cfg config.Config) auth.Backend {
	if cfg.S3Bucket != "" {
		return auth.NewS3Backend(auth.S3Config{
			Bucket:    cfg.S3Bucket,
			Key:       cfg.S3Key,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3Access,
			SecretKey: cfg.S3Secret,
		})
	}
	return &auth.FileBackend{Path: cfg.UsersFile}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "game listen address (TLS)")
	f.String("admin-addr", "", "admin/metrics HTTP address, empty to disable")
	f.String("cert", "", "TLS certificate file")
	f.String("key", "", "TLS private key file")
	f.Bool("insecure", false, "serve plain TCP when no certificate is configured (development only)")
	f.String("users", "", "users JSON file")
	f.String("log-file", "", "log file path")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.String("trace-exporter", "", "trace exporter: none, stdout, file")
	return cmd
}

func runServe(cfg config.Config) error {
	log, err := server.NewLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		log.Warn("JWT_SECRET not set, using a random key; tokens will not survive a restart")
	}

	store, err := auth.NewStore(ctx, userBackend(cfg))
	if err != nil {
		return err
	}
	log.Infof("loaded %d users", store.Len())
	svc := auth.NewService(store, auth.NewTokens(secret, cfg.TokenTTL))

	tp, err := server.NewTracerProvider(cfg.TraceExporter, cfg.TraceFile, version)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("trace provider shutdown", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := server.NewMetrics(reg)

	srv := server.New(log, svc,
		server.NewRoomManager(cfg.NumRounds, metrics),
		server.MazeGames{Gen: maze.NewGenerator()},
		metrics,
		server.Options{
			IdleTimeout:    cfg.IdleTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			SendQueueSize:  cfg.SendQueueSize,
			TracerProvider: tp,
		})

	ln, err := listen(cfg, log)
	if err != nil {
		return err
	}

	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           srv.AdminRouter(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Infof("admin listening on %s", cfg.AdminAddr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("admin listen: %v", err)
			}
		}()
	}

	err = srv.Serve(ctx, ln)
	log.Info("shutting down...")
	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
	}
	return err
}

func listen(cfg config.Config, log *zap.SugaredLogger) (net.Listener, error) {
	if cfg.CertFile == "" {
		if !cfg.Insecure {
			return nil, errors.New("no TLS certificate configured; pass --cert/--key or --insecure")
		}
		log.Warn("serving plain TCP without TLS")
		return net.Listen("tcp", cfg.ListenAddr)
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return tls.Listen("tcp", cfg.ListenAddr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username> <password>",
		Short: "Create an account in the users store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := auth.NewStore(ctx, userBackend(cfg))
			if err != nil {
				return err
			}
			// 离线注册不签发令牌，密钥随意
			svc := auth.NewService(store, auth.NewTokens([]byte("offline"), 0))
			if err := svc.Register(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("users", "", "users JSON file")
	return cmd
}
