package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/luca0405/beanstalker/internal/database"
	"github.com/luca0405/beanstalker/internal/images"
	"github.com/luca0405/beanstalker/internal/logging"
	"github.com/luca0405/beanstalker/internal/push"
	"github.com/luca0405/beanstalker/internal/server"
	"github.com/luca0405/beanstalker/internal/store"
)

func main() {
	// Optional; real deployments set env directly
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("BEANSTALKER_LOG_LEVEL"), os.Getenv("BEANSTALKER_LOG_FORMAT"))

	port := os.Getenv("BEANSTALKER_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("BEANSTALKER_DB_PATH")
	if dbPath == "" {
		dbPath = "beanstalker.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	settings := store.NewSettingsStore(db)
	pushCfg, err := loadPushConfig(settings)
	if err != nil {
		logger.Error("load push config", "error", err)
		os.Exit(1)
	}

	cfg := server.Config{
		Push: pushCfg,
		Images: images.Config{
			Endpoint:  os.Getenv("BEANSTALKER_S3_ENDPOINT"),
			Bucket:    os.Getenv("BEANSTALKER_S3_BUCKET"),
			Region:    os.Getenv("BEANSTALKER_S3_REGION"),
			AccessKey: os.Getenv("BEANSTALKER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("BEANSTALKER_S3_SECRET_KEY"),
		},
		EmailToken:    os.Getenv("BEANSTALKER_POSTMARK_TOKEN"),
		EmailFrom:     os.Getenv("BEANSTALKER_EMAIL_FROM"),
		BaseURL:       baseURL(port),
		SecureCookies: os.Getenv("BEANSTALKER_INSECURE_COOKIES") != "true",
	}

	srv := server.New(db, cfg, logger)

	// Periodic cleanup of expired sessions and stale rate-limit entries
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	go cleanupLoop(cleanupCtx, srv, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("bean stalker listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelCleanup()
	srv.FallbackManager().StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// loadPushConfig resolves VAPID keys: environment first, then the settings
// table, generating and persisting a fresh pair on first boot.
func loadPushConfig(settings *store.SettingsStore) (push.Config, error) {
	cfg := push.Config{
		VAPIDPublicKey:  os.Getenv("BEANSTALKER_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("BEANSTALKER_VAPID_PRIVATE_KEY"),
		Subscriber:      os.Getenv("BEANSTALKER_VAPID_SUBSCRIBER"),
	}
	if cfg.Subscriber == "" {
		cfg.Subscriber = "mailto:admin@beanstalker.app"
	}
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		return cfg, nil
	}

	pub, err := settings.Get(store.SettingVAPIDPublicKey)
	if err != nil {
		return cfg, err
	}
	priv, err := settings.Get(store.SettingVAPIDPrivateKey)
	if err != nil {
		return cfg, err
	}
	if pub != "" && priv != "" {
		cfg.VAPIDPublicKey = pub
		cfg.VAPIDPrivateKey = priv
		return cfg, nil
	}

	pub, priv, err = push.GenerateVAPIDKeys()
	if err != nil {
		return cfg, err
	}
	if err := settings.Set(store.SettingVAPIDPublicKey, pub); err != nil {
		return cfg, err
	}
	if err := settings.Set(store.SettingVAPIDPrivateKey, priv); err != nil {
		return cfg, err
	}

	cfg.VAPIDPublicKey = pub
	cfg.VAPIDPrivateKey = priv
	return cfg, nil
}

func baseURL(port string) string {
	if u := os.Getenv("BEANSTALKER_BASE_URL"); u != "" {
		return u
	}
	return fmt.Sprintf("http://localhost:%s", port)
}

func cleanupLoop(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("session cleanup", "error", err)
			}
			if err := srv.SeenStore().Cleanup(time.Now().AddDate(0, 0, -30)); err != nil {
				logger.Error("seen marker cleanup", "error", err)
			}
			srv.RateLimiter().Cleanup()
		}
	}
}
