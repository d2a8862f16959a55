package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/alert"
	"smart-locker-backend/internal/api"
	"smart-locker-backend/internal/db"
	"smart-locker-backend/internal/metrics"
	"smart-locker-backend/internal/mw"
	"smart-locker-backend/internal/notification"
	"smart-locker-backend/internal/order"
	"smart-locker-backend/internal/outbox"
	"smart-locker-backend/internal/store"
	"smart-locker-backend/internal/syncproto"
)

func main() {
	logger := log.New(os.Stdout, "locker-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatalf("auth.jwt_secret must be configured")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	metrics.Register()

	var orderOpts []order.Option
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		workerPool.Start(ctx)
		orderOpts = append(orderOpts, order.WithNotifier(workerPool))
	} else {
		logger.Println("VAPID keys not configured; pickup code push notifications disabled")
	}

	orders := order.NewService(appStore, orderOpts...)
	syncSvc := syncproto.NewService(appStore, outbox.New(appStore, cfg.Device.FirstPollWindow), orders, cfg.Device.OnlineWindow)
	handler := api.NewHandler(api.Deps{
		Store:  appStore,
		Orders: orders,
		Sync:   syncSvc,
		Alerts: alert.NewDeriver(appStore, alert.Thresholds{
			OfflineAfter:      cfg.Device.OfflineAlertAfter,
			LowBatteryPercent: cfg.Device.LowBatteryPercent,
		}),
		Webpush:      webpushOptions,
		OnlineWindow: cfg.Device.OnlineWindow,
	})

	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Verifier:        mw.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
