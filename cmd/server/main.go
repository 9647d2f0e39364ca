package main

import (
	"context"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/territory/internal/server"
	"github.com/iota-uz/territory/modules"
	territorycache "github.com/iota-uz/territory/modules/territory/infrastructure/cache"
	"github.com/iota-uz/territory/pkg/application"
	"github.com/iota-uz/territory/pkg/configuration"
	"github.com/iota-uz/territory/pkg/eventbus"
	"github.com/iota-uz/territory/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if err := app.Migrations().Run(ctx); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	if conf.Redis.Enabled {
		invalidator, err := territorycache.NewInvalidator(conf.Redis.URL, logger)
		if err != nil {
			log.Fatalf("failed to connect cache invalidator: %v", err)
		}
		defer func() {
			if err := invalidator.Close(); err != nil {
				logger.WithError(err).Warn("failed to close redis client")
			}
		}()
		invalidator.Register(app.EventPublisher())
	}

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
