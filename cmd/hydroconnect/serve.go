package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YuMe-02/Hydroconnect/internal/api"
	"github.com/YuMe-02/Hydroconnect/internal/audit"
	"github.com/YuMe-02/Hydroconnect/internal/auth"
	"github.com/YuMe-02/Hydroconnect/internal/events"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/config"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/database"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/influxdb"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/logging"
	"github.com/YuMe-02/Hydroconnect/internal/infrastructure/mqtt"
	"github.com/YuMe-02/Hydroconnect/internal/usage"
)

const redisPingTimeout = 5 * time.Second

// runServe wires every component and serves until ctx is cancelled.
func runServe(ctx context.Context, configPath string) error {
	cfg, log, db, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("starting Hydroconnect", "version", version, "commit", commit, "build_date", date, "config", configPath)

	health := map[string]api.HealthChecker{"database": db}

	keyStore, keyStoreHealth, closeKeyStore, err := openKeyStore(ctx, cfg.KeyStore, db, log)
	if err != nil {
		return err
	}
	defer closeKeyStore()
	if keyStoreHealth != nil {
		health["keystore"] = keyStoreHealth
	}

	sessions, err := auth.NewSessionService(auth.SessionConfig{Secret: cfg.Security.Session.Secret})
	if err != nil {
		return fmt.Errorf("creating session service: %w", err)
	}

	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log)
	rotations := events.Rotations{events.NewAuditTrail(recorder)}
	var sinks []usage.Sink

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bus := events.NewBus(mqttClient, log)
		rotations = append(rotations, bus)
		sinks = append(sinks, bus)
		health["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		sinks = append(sinks, events.NewTelemetry(influxClient))
		health["influxdb"] = influxClient
	}

	users := auth.NewUserRepository(db.DB)
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Accounts: auth.NewAccounts(users, sessions),
		Gateway:  auth.NewGateway(sessions, users),
		Devices:  auth.NewDeviceKeyAuthority(keyStore, rotations, log),
		Usage:    usage.NewService(usage.NewSQLiteRepository(db.DB), log, sinks...),
		Audit:    recorder,
		Health:   health,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openKeyStore returns the configured device key store, its health check
// and its cleanup. The SQLite store has no health check of its own; it is
// covered by the database check.
func openKeyStore(ctx context.Context, cfg config.KeyStoreConfig, db *database.DB, log *logging.Logger) (auth.KeyStore, api.HealthChecker, func(), error) {
	if cfg.Backend != config.KeyStoreRedis {
		return auth.NewSQLiteKeyStore(db.DB), nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, nil, fmt.Errorf("connecting to redis key store: %w", err)
	}
	log.Info("redis key store connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)

	store := auth.NewRedisKeyStore(client, cfg.Redis.Prefix)
	return store, store, func() {
		if err := client.Close(); err != nil {
			log.Error("error closing redis", "error", err)
		}
	}, nil
}
