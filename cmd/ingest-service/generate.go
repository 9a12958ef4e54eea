package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ampere/internal/broker"
	"ampere/internal/generator"
)

func generateCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Produce synthetic power telemetry to the source topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrapConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			producer, err := broker.NewProducer(cfg.Broker, log)
			if err != nil {
				return err
			}
			defer producer.Close()

			gen, err := generator.New(producer, cfg.Broker.Kafka.Topic, cfg.Generator, log)
			if err != nil {
				return err
			}

			log.InfowCtx(ctx, "Producing synthetic telemetry",
				"topic", cfg.Broker.Kafka.Topic,
				"rate", cfg.Generator.Rate,
				"count", count,
			)
			sent, err := gen.Run(ctx, count)
			log.InfowCtx(ctx, "Generator stopped", "sent", sent)
			return err
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many events (0 runs until interrupted)")
	return cmd
}
