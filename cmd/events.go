/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lostboard/apiserver/config"
	"github.com/lostboard/apiserver/internal/logging"
	"github.com/lostboard/apiserver/internal/mq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the report audit stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print report events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.Broker)
		if err != nil {
			return fmt.Errorf("open broker: %w", err)
		}
		if broker == nil {
			return errors.New("no broker configured, set BROKER_BACKEND")
		}
		defer broker.Close()

		logger.Info("tailing events", zap.String("channel", cfg.Broker.EventChannel))
		err = broker.Subscribe(ctx, cfg.Broker.EventChannel, func(ctx context.Context, msg mq.Message) error {
			event, err := mq.DecodeItemEvent(msg)
			if err != nil {
				logger.Warn("skipping undecodable event", zap.String("id", msg.ID), zap.Error(err))
				return nil
			}
			logger.Info(event.Event,
				zap.Int("item_id", event.ItemID),
				zap.Int("user_id", event.UserID),
				zap.String("type", string(event.Type)),
				zap.Time("occurred_at", event.OccurredAt),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
