package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"pathlet/internal/config"
	"pathlet/internal/consul"
	"pathlet/internal/kafka"
	"pathlet/internal/logger"
	"pathlet/internal/notify"
	"pathlet/internal/store"
)

func main() {
	log := logger.New("notifier")
	logger.SetDefault(log)

	if err := run(); err != nil {
		log.Error("Notifier stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Notifier stopped")
}

func run() error {
	log := logger.New("notifier")

	if err := config.ValidateEnv([]string{"KAFKA_BROKERS", "REDIS_ADDR"}); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ncfg, err := notify.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis holds the delivery records shared by every notifier instance
	records := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer store.Close(records)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = store.Ping(pingCtx, records)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	dlqConfig, err := kafka.NewConfig(cfg.KafkaBrokers, ncfg.DLQTopic)
	if err != nil {
		return err
	}
	dlqConfig.ClientID = "pathlet-notifier"
	dlq, err := kafka.NewProducer(dlqConfig, log.With("component", "dlq"))
	if err != nil {
		return err
	}
	defer dlq.Close()

	processor := notify.NewProcessor(
		notify.NewSender(ncfg, log.With("component", "sender")),
		notify.NewDedup(records, log.With("component", "dedup")),
		dlq,
		ncfg,
		log.With("component", "processor"),
	)
	log.Info("Email sender initialized", "mode", ncfg.Mode)

	consumer, err := notify.NewConsumer(cfg.KafkaBrokers, cfg.KafkaReadingsTopic, ncfg.ConsumerGroup, processor, log.With("component", "consumer"))
	if err != nil {
		return err
	}
	defer consumer.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	notify.NewHandler(records, processor, log).RegisterRoutes(r)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", ncfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.ConsulAddr != "" {
		registry, err := consul.NewClient(cfg.ConsulAddr, cfg.ConsulToken, log.With("component", "consul"))
		if err != nil {
			return err
		}
		svc := consul.ServerService("pathlet-notifier", cfg.Host, ncfg.HTTPPort, "0.1.0")
		svc.Tags = []string{"notifications", "kafka-consumer"}
		// Clean up after a previous crash with the same id.
		_ = registry.Deregister(svc.ID)
		if err := registry.Register(svc); err != nil {
			return err
		}
		defer func() {
			if err := registry.Deregister(svc.ID); err != nil {
				log.Error("Failed to deregister from Consul", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		log.Info("HTTP server started", "port", ncfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down notifier")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
