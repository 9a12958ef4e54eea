package pipeline

import (
	"errors"
	"time"

	"ampere/internal/config"
	"ampere/internal/constants"
	"ampere/pkg/retry"
)

type Options struct {
	Topic   string
	GroupID string

	TriggerInterval  time.Duration
	MaxBatchRecords  int
	DrainTimeout     time.Duration
	ProgressInterval time.Duration
	Retry            retry.Policy

	// CheckpointBackend only labels metrics.
	CheckpointBackend string

	QuarantineTopic string
	QuarantineMode  string
}

func OptionsFromConfig(cfg *config.Config) Options {
	policy := retry.DefaultPolicy()
	rc := cfg.Pipeline.Retry
	if rc.MaxAttempts > 0 {
		policy.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialInterval > 0 {
		policy.InitialInterval = rc.InitialInterval
	}
	if rc.MaxInterval > 0 {
		policy.MaxInterval = rc.MaxInterval
	}
	if rc.Multiplier > 0 {
		policy.Multiplier = rc.Multiplier
	}
	if rc.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = rc.MaxElapsedTime
	}

	return Options{
		Topic:             cfg.Broker.Kafka.Topic,
		GroupID:           cfg.Broker.Kafka.GroupID,
		TriggerInterval:   cfg.Pipeline.TriggerInterval,
		MaxBatchRecords:   cfg.Pipeline.MaxBatchRecords,
		DrainTimeout:      cfg.Pipeline.DrainTimeout,
		ProgressInterval:  cfg.Pipeline.ProgressInterval,
		Retry:             policy,
		CheckpointBackend: cfg.Checkpoint.Backend,
		QuarantineTopic:   cfg.Quarantine.Topic,
		QuarantineMode:    cfg.Quarantine.Mode,
	}
}

func (o *Options) applyDefaults() {
	if o.TriggerInterval <= 0 {
		o.TriggerInterval = constants.DefaultTriggerInterval
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = constants.DefaultDrainTimeout
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = constants.DefaultProgressInterval
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = retry.DefaultPolicy()
	}
	if o.QuarantineTopic != "" && o.QuarantineMode == "" {
		o.QuarantineMode = constants.DefaultQuarantineMode
	}
}

func (o Options) validate() error {
	var errs []error
	if o.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if o.GroupID == "" {
		errs = append(errs, errors.New("group id is required"))
	}
	if o.MaxBatchRecords < 0 {
		errs = append(errs, errors.New("max batch records must not be negative"))
	}
	if o.QuarantineTopic != "" {
		if o.QuarantineTopic == o.Topic {
			errs = append(errs, errors.New("quarantine topic must differ from the input topic"))
		}
		if o.QuarantineMode != constants.QuarantineModeCopy && o.QuarantineMode != constants.QuarantineModeDivert {
			errs = append(errs, errors.New("quarantine mode must be copy or divert"))
		}
	}
	return errors.Join(errs...)
}
