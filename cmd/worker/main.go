package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"notifyhub/internal/config"
	"notifyhub/internal/model"
	"notifyhub/internal/repository"
	"notifyhub/internal/sender"
	"notifyhub/internal/service"
	"notifyhub/internal/worker"
	"notifyhub/pkg/db"
	"notifyhub/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	channelRepo := repository.NewChannelRepository(dbConn, log)
	deliveryRepo := repository.NewDeliveryRepository(dbConn, log)
	deliveryService := service.NewDeliveryService(deliveryRepo, log)

	senders := sender.NewRegistry(
		sender.NewLogSender(model.ChannelEmail, log),
		sender.NewLogSender(model.ChannelSMS, log),
		sender.NewLogSender(model.ChannelPush, log),
		sender.NewLogSender(model.ChannelInApp, log),
		sender.NewWebhookSender(cfg.Worker.WebhookTimeout(), log),
	)

	w := worker.NewDeliveryWorker(
		worker.Config{
			PollInterval:  cfg.Worker.PollInterval(),
			BatchSize:     cfg.Worker.BatchSize,
			LeaseDuration: cfg.Worker.LeaseDuration(),
		},
		deliveryService,
		notificationRepo,
		channelRepo,
		senders,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Worker stopped", zap.Error(err))
	}
	log.Info("Worker shut down")
}
