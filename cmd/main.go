package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aromabridge/internal/cloud"
	"aromabridge/internal/handlers"
	"aromabridge/internal/logger"
	"aromabridge/internal/server"
	"aromabridge/internal/service"
	"aromabridge/internal/session"

	"github.com/spf13/viper"
)

const (
	shutdownTimeout = 5 * time.Second

	// tokenRefreshInterval keeps the vendor access token fresh; the vendor
	// issues hour-scale tokens so refreshing well before expiry is enough.
	tokenRefreshInterval = 25 * time.Minute
)

func main() {
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log_level"))

	client := cloud.NewClient(cloud.Config{
		BaseURL:  viper.GetString("aromalink.base_url"),
		Username: viper.GetString("aromalink.username"),
		Password: viper.GetString("aromalink.password"),
	}, nil, log)

	bus := session.NewBus()
	sessions := session.NewManager(client, viper.GetString("aromalink.ws_url"), bus, log)

	services := service.NewService(service.Deps{
		Cloud:    client,
		Sessions: sessions,
		Auth: service.AuthConfig{
			Username:     viper.GetString("api.username"),
			PasswordHash: viper.GetString("api.password_hash"),
			SigningKey:   viper.GetString("api.signing_key"),
			TokenTTL:     viper.GetDuration("api.token_ttl"),
		},
		Log: log,
	})
	apiHandler := handlers.NewHandler(services, bus, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Login(ctx); err != nil {
		log.Errorw("initial login failed, discovery will re-login", "err", err)
	}
	go refreshTokenLoop(ctx, client, log)

	devices, err := services.Discover(ctx)
	if err != nil {
		log.Fatalw("device discovery failed", "err", err)
	}
	for _, d := range devices {
		sessions.Start(d)
	}

	srv := &server.Server{}
	go func() {
		if err := srv.Run(viper.GetString("port"), apiHandler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("http server failed", "err", err)
		}
	}()
	log.Infow("bridge started", "port", viper.GetString("port"), "devices", len(devices))

	waitForShutdown(cancel, sessions, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// refreshTokenLoop keeps the vendor token pair fresh in the background.
// Failures are logged and retried next tick; sessions re-read the pair
// lazily on their next call.
func refreshTokenLoop(ctx context.Context, client *cloud.Client, log *logger.Logger) {
	ticker := time.NewTicker(tokenRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Refresh(ctx); err != nil {
				log.Errorw("token refresh failed", "err", err)
				if err := client.Login(ctx); err != nil {
					log.Errorw("re-login failed", "err", err)
				}
			}
		}
	}
}

func waitForShutdown(cancel context.CancelFunc, sessions *session.Manager, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutting down")

	cancel()
	sessions.StopAll()

	ctx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown failed", "err", err)
	}
}
