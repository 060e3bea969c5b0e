// pixel-tracker records tracking-pixel hits for digital business card
// profiles: it resolves geolocation, classifies devices, persists events,
// and forwards conversions to external ad platforms.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/cardlink/pixel-tracker/internal/api"
	"github.com/cardlink/pixel-tracker/internal/config"
	"github.com/cardlink/pixel-tracker/internal/conversion"
	"github.com/cardlink/pixel-tracker/internal/geo"
	"github.com/cardlink/pixel-tracker/internal/handler"
	"github.com/cardlink/pixel-tracker/internal/logger"
	"github.com/cardlink/pixel-tracker/internal/secrets"
	"github.com/cardlink/pixel-tracker/internal/storage"
)

const dbPingTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.GetConfigPath("config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	log := logger.Must(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	defer func() { _ = log.Sync() }()

	log.Info("Starting pixel-tracker",
		logger.String("version", cfg.Service.Version),
		logger.Int("port", cfg.Service.Port),
	)

	db, err := connectDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		return 1
	}
	defer db.Close()

	store := storage.NewStore(db, log)
	box := secrets.NewBox(cfg.Service.EncryptionKey)

	geoCache := geo.NewCache(newRedisClient(cfg, log), cfg.Geo.CacheTTL, log)
	resolver := geo.NewResolver(cfg.Geo, geoCache, log)

	var forwarder *conversion.Forwarder
	if cfg.Conversion.Enabled {
		forwarder = conversion.New(cfg.Conversion, log)
		forwarder.Start()
		defer forwarder.Stop()
		log.Info("Conversion forwarding enabled",
			logger.String("endpoint", cfg.Conversion.Endpoint),
		)
	}

	server := api.NewServer(api.Deps{
		Config: cfg,
		Track:  newTrackHandler(cfg, store, resolver, forwarder, box, log),
		Admin:  handler.NewPixelAdminHandler(store, box, log),
		Health: handler.NewHealthHandler(cfg.Service.Name, cfg.Service.Version),
		Log:    log,
	})

	if err := server.Run(); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Shutdown complete")
	return 0
}

// newTrackHandler keeps the nil-forwarder case out of the wiring above:
// a disabled forwarder must reach the handler as a nil interface.
func newTrackHandler(
	cfg *config.Config,
	store *storage.Store,
	resolver *geo.Resolver,
	forwarder *conversion.Forwarder,
	box *secrets.Box,
	log logger.Logger,
) *handler.TrackHandler {
	var queue handler.ConversionQueue
	if forwarder != nil {
		queue = forwarder
	}
	return handler.NewTrackHandler(store, resolver, queue, box, cfg.Conversion.Enabled, log)
}

// connectDB opens the PostgreSQL pool and verifies connectivity.
func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// newRedisClient returns nil when no Redis address is configured; the geo
// cache treats that as disabled.
func newRedisClient(cfg *config.Config, log logger.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, geolocation cache disabled", logger.Error(err))
		return nil
	}
	return client
}
