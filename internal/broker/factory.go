package broker

import (
	"fmt"

	"ampere/internal/config"
	"ampere/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewStreamReader(cfg config.BrokerConfig, log logger.Logger) (StreamReader, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaStreamReader(cfg.Kafka, log)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
