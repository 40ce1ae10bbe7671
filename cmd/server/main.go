package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"devicegateway/internal/api/router"
	"devicegateway/internal/broadcast"
	"devicegateway/internal/cache"
	"devicegateway/internal/config"
	"devicegateway/internal/core/repository"
	"devicegateway/internal/core/service"
	"devicegateway/internal/metrics"
	"devicegateway/internal/protocol/server"
	"devicegateway/internal/relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("GATEWAY_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := config.ConfigureLogging(cfg); err != nil {
		log.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Gateway stopped with error")
	}
	log.Info("Gateway stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	metrics.Register()

	events := broadcast.NewBroadcaster(cfg.SubscriberQueue, log.WithField("service", "gateway"))
	defer events.Close()

	// Initialize the device directory, MongoDB when configured
	var deviceRepo repository.DeviceRepository
	if cfg.MongoURI != "" {
		db, err := config.ConnectMongoDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Client().Disconnect(context.Background())

		mongoRepo := repository.NewMongoDeviceRepository(db)
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			log.WithError(err).Warn("Failed to ensure device indexes")
		}
		deviceRepo = mongoRepo
	} else {
		log.Info("MongoDB URI not provided, using in-memory device directory")
		deviceRepo = repository.NewInMemoryDeviceRepository()
	}

	deviceCache := cache.New(ctx, cfg.RedisURL, "device:")
	defer deviceCache.Close()

	deviceService := service.NewDeviceService(deviceRepo, deviceCache, cfg.CacheTTL.Duration)

	g, ctx := errgroup.WithContext(ctx)

	updater := service.NewDirectoryUpdater(deviceService, events.Attach("directory"))
	g.Go(func() error {
		updater.Run(ctx)
		return nil
	})

	if client := deviceCache.Client(); client != nil {
		redisRelay := relay.NewRedisRelay(client, cfg.RedisChannel, events.Attach("redis-relay"))
		g.Go(func() error {
			redisRelay.Run(ctx)
			return nil
		})
	}

	tcpServer := server.NewTCPServer(cfg.TCPServer(), events, log.WithField("service", "gateway"))
	if err := tcpServer.Start(ctx); err != nil {
		return err
	}

	app := router.NewRouter(deviceService, tcpServer, events, router.Options{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   cfg.JWTSecret,
	})

	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		return app.Listen(cfg.HTTPAddr)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		tcpServer.Stop()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.WithError(err).Warn("HTTP shutdown incomplete")
		}
		events.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
