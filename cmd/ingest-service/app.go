package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"ampere/internal/checkpoint"
	"ampere/internal/config"
	"ampere/internal/constants"
	"ampere/internal/logger"
	"ampere/internal/pipeline"
	"ampere/internal/sink"
	"ampere/pkg/bootstrap"
	"ampere/pkg/health"
	"ampere/pkg/logging"
	"ampere/pkg/metrics"
	"ampere/pkg/migrations"
	"ampere/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	checkpoints    *checkpoint.Manager
	pipeline       *pipeline.Pipeline
	tracerProvider *tracing.TracerProvider
	health         *health.CheckerRegistry
	server         *http.Server
	instanceID     string
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
		instanceID:  uuid.NewString(),
	}
}

func (a *App) logContext(ctx context.Context) context.Context {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)
	return logging.WithInstanceID(ctx, a.instanceID)
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = a.logContext(ctx)

	if err := a.initPostgres(ctx); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	if err := a.initCheckpoints(ctx); err != nil {
		return fmt.Errorf("failed to initialize checkpoint store: %w", err)
	}

	if err := a.InitBroker(ctx); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	a.health.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers, a.Config.Broker.Kafka.Topic))

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIngestMetrics()

	if err := a.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.initHTTPServer()

	return nil
}

func (a *App) initPostgres(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.health.Register(health.NewPostgreSQLChecker(db))

	if a.Config.Database.RunMigrations {
		version, err := migrations.UpPostgres(db)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Logger.InfowCtx(ctx, "Migrations applied", "version", version)
	}
	return nil
}

func (a *App) initCheckpoints(ctx context.Context) error {
	var store checkpoint.Store

	switch a.Config.Checkpoint.Backend {
	case constants.CheckpointBackendPostgres:
		store = checkpoint.NewPostgresStore(a.dbConnector.Postgres)

	case constants.CheckpointBackendRedis:
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.health.Register(health.NewRedisChecker(rdb))
		store = checkpoint.NewRedisStore(rdb, a.Config.Checkpoint.KeyPrefix).
			WithAOFWait(a.Config.Checkpoint.RedisAOFWait)

	case constants.CheckpointBackendMongoDB:
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.health.Register(health.NewMongoDBChecker(client))

		dbName := a.Config.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		db := client.Database(dbName)
		if err := migrations.EnsureCheckpointCollection(ctx, db, a.Config.Checkpoint.Collection); err != nil {
			return err
		}
		store = checkpoint.NewMongoStore(db, a.Config.Checkpoint.Collection)

	default:
		fileStore, err := checkpoint.NewFileStore(a.Config.Checkpoint.Location)
		if err != nil {
			return err
		}
		store = fileStore
	}

	kafkaCfg := a.Config.Broker.Kafka
	a.checkpoints = checkpoint.NewManager(store, kafkaCfg.Topic, kafkaCfg.GroupID, a.Logger)

	a.Logger.InfowCtx(ctx, "Checkpoint store ready",
		"backend", a.Config.Checkpoint.Backend,
		"topic", kafkaCfg.Topic,
		"group_id", kafkaCfg.GroupID,
	)
	return nil
}

func (a *App) initPipeline() error {
	var writer sink.Writer = sink.NewPostgresWriter(a.dbConnector.Postgres, a.Config.Pipeline.ChunkSize)
	if a.Config.CircuitBreaker.Enabled {
		writer = sink.NewCircuitBreakerWriter(writer, a.Config.CircuitBreaker)
	}

	p, err := pipeline.New(pipeline.Deps{
		Reader:      a.Reader,
		Writer:      writer,
		Checkpoints: a.checkpoints,
		Quarantine:  a.Producer,
		Logger:      a.Logger,
	}, pipeline.OptionsFromConfig(a.Config))
	if err != nil {
		return err
	}
	a.pipeline = p
	a.health.Register(health.NewRunningChecker("pipeline", p.Done()))
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", health.Handler(a.health))
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

// Run blocks until ctx is cancelled or the pipeline fails. On cancellation
// the pipeline drains its in-flight batch before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx = a.logContext(ctx)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.pipeline.Start(gCtx); err != nil {
			return fmt.Errorf("failed to start pipeline: %w", err)
		}

		select {
		case <-gCtx.Done():
			a.pipeline.Stop()
		case <-a.pipeline.Done():
		}

		err := a.pipeline.Wait()
		if err == nil && gCtx.Err() == nil {
			err = fmt.Errorf("pipeline stopped unexpectedly")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		a.server.Shutdown(shutdownCtx)
		return err
	})

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	stats := a.pipeline.Stats()
	a.Logger.InfowCtx(ctx, "Pipeline summary",
		"messages", stats.Messages,
		"batches", stats.Batches,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"quarantined", stats.Quarantined,
		"abandoned", stats.Abandoned,
		"epoch", stats.Epoch,
	)
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := a.logContext(ctx)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down ingest service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.checkpoints != nil {
			if err := a.checkpoints.Close(); err != nil {
				errs = append(errs, fmt.Errorf("checkpoint store close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.Shutdown(ctx)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}

func runMigrate(ctx context.Context, up bool, steps int) error {
	cfg, log, err := bootstrapConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	dc := bootstrap.NewDatabaseConnector(cfg, log)
	db, err := dc.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	defer dc.Shutdown(ctx)

	var version uint
	if up {
		version, err = migrations.UpPostgres(db)
	} else {
		version, err = migrations.DownPostgres(db, steps)
	}
	if err != nil {
		log.Errorw("Migration failed", "up", up, "error", err)
		return err
	}
	log.Infow("Migration complete", "up", up, "version", version)
	return nil
}
