package main

import (
	"notifyhub/internal/api"
	"notifyhub/internal/cache"
	"notifyhub/internal/config"
	"notifyhub/internal/repository"
	"notifyhub/internal/service"
	"notifyhub/pkg/db"
	"notifyhub/pkg/logger"
	pkgredis "notifyhub/pkg/redis"

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

	rdb := pkgredis.NewClient(cfg.Redis)
	defer rdb.Close()

	// Repositories
	templateRepo := repository.NewTemplateRepository(dbConn, log)
	channelRepo := repository.NewChannelRepository(dbConn, log)
	preferenceRepo := repository.NewPreferenceRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	deliveryRepo := repository.NewDeliveryRepository(dbConn, log)
	batchRepo := repository.NewBatchRepository(dbConn, log)

	// Services
	prefCache := cache.NewPreferenceCache(rdb, cfg.Cache.PreferenceTTL(), log)
	templateService := service.NewTemplateService(templateRepo, log)
	channelService := service.NewChannelService(channelRepo, log)
	preferenceService := service.NewPreferenceService(preferenceRepo, prefCache, log)
	deliveryService := service.NewDeliveryService(deliveryRepo, log)
	dispatchService := service.NewDispatchService(notificationRepo, templateRepo, channelRepo, preferenceService, log)
	batchService := service.NewBatchService(batchRepo, templateRepo, deliveryRepo, log)

	// Handlers
	router := api.NewRouter(
		api.NewTemplateHandler(templateService),
		api.NewChannelHandler(channelService),
		api.NewPreferenceHandler(preferenceService),
		api.NewNotificationHandler(dispatchService, deliveryService),
		api.NewDeliveryHandler(deliveryService),
		api.NewBatchHandler(batchService),
		dbConn,
		rdb,
		log,
	)

	log.Info("API server starting", zap.String("addr", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("Server start failed", zap.Error(err))
	}
}
