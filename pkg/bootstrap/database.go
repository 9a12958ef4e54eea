package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ampere/internal/config"
	"ampere/internal/logger"
	"ampere/pkg/retry"
)

// connectPolicy bounds how long startup waits for a backing store.
var connectPolicy = retry.Policy{
	MaxAttempts:     4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     4 * time.Second,
	Multiplier:      2.0,
}

// DatabaseConnector opens the stores the service needs and owns them until
// Shutdown.
type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger

	Postgres *sql.DB
	Redis    *redis.Client
	Mongo    *mongo.Client
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

func (dc *DatabaseConnector) ping(ctx context.Context, store string, fn func(context.Context) error) error {
	return retry.RetryWithCallback(ctx, connectPolicy, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return fn(pingCtx)
	}, func(attempt int, err error, next time.Duration) {
		dc.Logger.Warnw("Store not reachable yet",
			"store", store,
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	})
}

// InitPostgreSQL opens the sink database. It is always required.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pg := dc.Config.Database.Postgres
	if pg.Host == "" {
		return nil, fmt.Errorf("postgres host is not configured")
	}

	db, err := sql.Open("postgres", pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if pg.MaxConns > 0 {
		db.SetMaxOpenConns(pg.MaxConns)
		db.SetMaxIdleConns(pg.MaxConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := dc.ping(ctx, "postgresql", db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Postgres = db
	dc.Logger.Infow("PostgreSQL connected successfully", "host", pg.Host, "database", pg.DBName)
	return db, nil
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rc := dc.Config.Database.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", rc.Host, rc.Port),
		Password: rc.Password,
		DB:       rc.DB,
	})

	err := dc.ping(ctx, "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Redis = rdb
	dc.Logger.Infow("Redis connected successfully", "addr", rdb.Options().Addr)
	return rdb, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, fmt.Errorf("mongodb uri is not configured")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dc.Config.Database.MongoDB.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = dc.ping(ctx, "mongodb", func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Mongo = client
	dc.Logger.Info("MongoDB connected successfully")
	return client, nil
}

// Shutdown closes every store that was opened.
func (dc *DatabaseConnector) Shutdown(ctx context.Context) []error {
	var errs []error

	if dc.Redis != nil {
		if err := dc.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
		dc.Redis = nil
	}

	if dc.Postgres != nil {
		if err := dc.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
		dc.Postgres = nil
	}

	if dc.Mongo != nil {
		if err := dc.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
		dc.Mongo = nil
	}

	return errs
}
