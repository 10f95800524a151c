package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"pathlet/internal/archive"
	"pathlet/internal/auth"
	"pathlet/internal/chat"
	"pathlet/internal/config"
	"pathlet/internal/consul"
	"pathlet/internal/database"
	"pathlet/internal/identity"
	"pathlet/internal/insights"
	"pathlet/internal/kafka"
	"pathlet/internal/logger"
	"pathlet/internal/readings"
	"pathlet/internal/server"
	"pathlet/internal/session"
	"pathlet/internal/store"
)

const version = "0.1.0"

func main() {
	log := logger.New("server")
	logger.SetDefault(log)

	if err := config.ValidateEnv(config.RequiredServerVars); err != nil {
		log.Error("Invalid environment", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session storage, shared by every client's identity handle
	var sessions store.Store
	if cfg.RedisAddr != "" {
		sessions = store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := store.Ping(pingCtx, sessions)
		cancel()
		if err != nil {
			return err
		}
		log.Info("Connected to Redis", "addr", cfg.RedisAddr)
	} else {
		sessions = store.NewMemoryStore()
		log.Warn("REDIS_ADDR not set, sessions are kept in memory")
	}
	defer store.Close(sessions)

	refresher := identity.NewRefresher(cfg.RefreshInterval, log.With("component", "refresher"))
	if err := refresher.Start(); err != nil {
		return err
	}
	defer refresher.Stop()

	clients := session.NewRegistry(func(id string) *identity.Client {
		return identity.NewClient(identity.Options{
			URL:           cfg.AuthURL,
			AnonKey:       cfg.AuthAnonKey,
			RedirectURL:   cfg.AuthRedirectURL,
			Store:         sessions,
			StorageKey:    id,
			RefreshMargin: cfg.RefreshMargin,
			Logger:        log.With("component", "identity"),
		})
	}, session.RegistryOptions[*identity.Client]{
		IdleTTL:       cfg.ClientIdleTTL,
		SweepInterval: time.Minute,
		OnCreate:      refresher.Track,
		OnEvict:       refresher.Untrack,
		Logger:        log.With("component", "session"),
	})
	if err := clients.Start(); err != nil {
		return err
	}
	defer clients.Close()

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := database.New(dbCtx, cfg.DatabaseURL, log.With("component", "database"))
	if err == nil {
		err = db.Migrate(dbCtx)
	}
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	var publisher readings.Publisher = readings.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		kcfg, err := kafka.NewConfig(cfg.KafkaBrokers, cfg.KafkaReadingsTopic)
		if err != nil {
			return err
		}
		kcfg.ClientID = cfg.ServiceName
		producer, err := kafka.NewProducer(kcfg, log.With("component", "kafka"))
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = producer
	} else {
		log.Warn("KAFKA_BROKERS not set, reading events are not published")
	}

	inferenceURL := cfg.InferenceURL
	var registry *consul.Client
	if cfg.ConsulAddr != "" {
		registry, err = consul.NewClient(cfg.ConsulAddr, cfg.ConsulToken, log.With("component", "consul"))
		if err != nil {
			return err
		}
		if cfg.InferenceService != "" {
			inferenceURL = registry.ResolveURL(cfg.InferenceService, cfg.InferenceURL)
		}
	}

	readingService := readings.NewService(
		readings.NewRepository(db, log),
		insights.NewStaticGenerator(),
		publisher,
		log.With("component", "readings"),
	)
	var exportsHealth server.HealthChecker
	s3cfg, ok, err := archive.LoadConfig()
	if err != nil {
		return err
	}
	if ok {
		exports, err := archive.New(ctx, s3cfg, log.With("component", "archive"))
		if err != nil {
			return err
		}
		readingService.WithArchive(exports)
		exportsHealth = exports
	} else {
		log.Info("S3_ENDPOINT not set, reading export is disabled")
	}

	resolve := func(c *gin.Context) (string, auth.Identity, error) {
		id := c.GetString("client_id")
		if id == "" {
			return "", nil, auth.ErrNoClient
		}
		return id, clients.Get(id).Client, nil
	}

	app := server.New(cfg, server.Deps{
		Guards: func(clientID string) *session.Guard {
			return clients.Get(clientID).Guard
		},
		Auth:     auth.NewHandler(resolve, sessions, log.With("component", "auth")),
		Readings: readings.NewHandler(readingService, log.With("component", "readings")),
		Chat: chat.NewHandler(
			server.LatestInsights(readingService),
			chat.NewInferenceClient(inferenceURL, cfg.InferenceModel, cfg.InferenceAPIKey),
			log.With("component", "chat"),
		),
		DB:      db,
		Store:   sessions,
		Archive: exportsHealth,
	}, log)
	httpServer := app.HTTPServer(server.LoadTimeoutsFromEnv())

	if registry != nil {
		svc := consul.ServerService(cfg.ServiceName, cfg.Host, cfg.Port, version)
		if err := registry.Register(svc); err != nil {
			return err
		}
		defer func() {
			if err := registry.Deregister(svc.ID); err != nil {
				log.Warn("Failed to deregister from Consul", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Pathlet server listening", "port", cfg.Port, "env", cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
