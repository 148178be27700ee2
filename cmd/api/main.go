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

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/config"
	"telehealth-platform/internal/httpapi"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/metrics"
	"telehealth-platform/internal/rbac"
	"telehealth-platform/internal/signaling"
	"telehealth-platform/pkg/logger"
	"telehealth-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "telehealth-api",
		Short:        "Audio consultation signaling and media routing server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API and signaling server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// tokenCmd mints a token pair for local testing against a running server.
func tokenCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access/refresh token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.IsKnownRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			pair, err := tokens.IssuePair(time.Now(), userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "access_token=%s\nrefresh_token=%s\n", pair.AccessToken, pair.RefreshToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "role (doctor, patient, ...)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func runServer(parent context.Context) error {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		return err
	}

	log := logger.New(cfg.App.Env, logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		return err
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		return err
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		log.Error("redis init failed", "err", err)
		return err
	}
	defer rdb.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(promReg)

	registry, err := media.NewRegistry(media.ListenConfig{
		ListenIP:    cfg.Media.ListenIP,
		AnnouncedIP: cfg.Media.AnnouncedIP,
		MinPort:     cfg.Media.MinPort,
		MaxPort:     cfg.Media.MaxPort,
	}, media.WithObserver(collector), media.WithLogger(log.With("component", "media")))
	if err != nil {
		log.Error("media registry init failed", "err", err)
		return err
	}

	store := calls.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	callOpts := calls.Options{
		Audit:       auditSvc,
		Metrics:     collector,
		Logger:      log.With("component", "calls"),
		RingTimeout: cfg.Calls.RingTimeout,
	}
	if cfg.Calls.MaxActivePerDoctor > 0 {
		limiter, err := calls.NewRedisLimiter(rdb, cfg.Calls.MaxActivePerDoctor, 0, log.With("component", "calls"))
		if err != nil {
			log.Error("call limiter init failed", "err", err)
			return err
		}
		callOpts.Limiter = limiter
	}
	orchestrator := calls.NewOrchestrator(store, store, registry, callOpts)
	defer orchestrator.Stop()

	resolver := auth.NewResolver(tokens, auth.NewPostgresUsers(db), rbac.IsKnownRole)

	gateway := signaling.NewGateway(resolver, orchestrator, registry, signaling.Config{
		ICEServers:     cfg.ICEServers(),
		MessageTimeout: cfg.Signaling.MessageTimeout,
		PingInterval:   cfg.Signaling.PingInterval,
		ReadLimitBytes: cfg.Signaling.ReadLimitBytes,
	}, collector, log.With("component", "signaling"))
	orchestrator.OnRingTimeout(gateway.NotifyRingTimeout)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))

	registerRoutes(r, routeDeps{
		handlers: httpapi.Handlers{
			Calls:       orchestrator,
			Audit:       auditSvc,
			Tokens:      tokens,
			Users:       auth.NewPostgresUsers(db),
			Media:       registry,
			Connections: gateway.Hub(),
			ICEServers:  cfg.ICEServers(),
		},
		gateway:           gateway,
		resolver:          resolver,
		metrics:           collector,
		db:                db,
		rdb:               rdb,
		exposeTokenIssuer: !cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "rtc_ports", fmt.Sprintf("%d-%d", cfg.Media.MinPort, cfg.Media.MaxPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by srv.Shutdown.
	gateway.Close(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
	return nil
}
