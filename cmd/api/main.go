package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartscan/internal/auth"
	"smartscan/internal/bootstrap"
	"smartscan/internal/config"
	"smartscan/internal/handler"
	"smartscan/internal/httpmiddleware"
	"smartscan/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := runHTTP(cfg, zl); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, zl *zap.Logger) error {
	ctx := context.Background()

	app, err := bootstrap.Build(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer app.Close()

	checks := map[string]handler.HealthCheck{"db": app.DB.Healthy}
	if app.Redis != nil {
		checks["redis"] = app.Redis.Healthy
	}

	h := handler.New(handler.Options{
		Service:     app.Service,
		Roster:      app.Roster,
		Credentials: auth.Credentials{Username: cfg.AdminUsername, Password: cfg.AdminPassword},
		JWTIssuer:   cfg.JWTIssuer,
		JWTKey:      cfg.JWTSigningKey,
		TokenTTL:    cfg.AdminTokenTTL,
		Location:    app.Location,
		PublicURL:   cfg.PublicURL,
		Checks:      checks,
		Metrics:     app.Metrics,
		Logger:      zl.Named("http"),
	})

	r, err := handler.NewEngine(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	r.Use(logger.RequestID())
	r.Use(logger.GinMiddleware(zl, "/healthz", "/metrics"))
	r.Use(app.Metrics.GinMiddleware())
	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	r.Use(sessions.Sessions(auth.SessionName, auth.SessionStore(cfg.SessionSecret, cfg.AdminTokenTTL, cfg.Production())))

	r.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	h.Register(r, httpmiddleware.HostAllowList(cfg.AllowedHosts))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("addr", srv.Addr), zap.Strings("allowed_hosts", cfg.AllowedHosts), zap.Strings("trusted_proxies", cfg.TrustedProxies))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced shutdown", zap.Error(err))
	}

	zl.Info("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
