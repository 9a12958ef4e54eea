package bootstrap

import (
	"context"
	"fmt"

	"ampere/internal/broker"
	"ampere/internal/config"
	"ampere/internal/logger"
)

type Base struct {
	Config *config.Config
	Logger logger.Logger
	Reader broker.StreamReader
	// Producer is nil unless a quarantine topic is configured.
	Producer broker.Producer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker builds the stream reader and, when quarantine is enabled, the
// producer used to publish rejected messages.
func (b *Base) InitBroker(ctx context.Context) error {
	reader, err := broker.NewStreamReader(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create stream reader: %w", err)
	}

	if err := reader.Validate(ctx); err != nil {
		reader.Close()
		return fmt.Errorf("failed to validate source topic: %w", err)
	}

	if b.Config.Quarantine.Enabled() {
		producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
		if err != nil {
			reader.Close()
			return fmt.Errorf("failed to create quarantine producer: %w", err)
		}
		b.Producer = producer
	}

	b.Reader = reader
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Reader != nil {
		if err := b.Reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("reader close error: %w", err))
		}
	}

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownBroker()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
