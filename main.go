package main

import (
	"CloudKeep/config"
	"CloudKeep/internal/handler"
	"CloudKeep/internal/mq"
	"CloudKeep/internal/repo"
	"CloudKeep/internal/service"
	"CloudKeep/internal/storage"
	"CloudKeep/internal/worker"
	"CloudKeep/router"
	"CloudKeep/utils"
	"context"
	"log"
	"time"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	repo.InitMysql()
	repo.InitRedis()
	storage.InitMinio()

	kv := utils.NewRedisCache(repo.Redis)
	store := repo.NewGormStore(repo.Db)
	ledger := service.NewQuotaLedger(repo.Db, kv, config.AppConfig.UserCacheTTL)
	cache := service.NewMetadataCache(kv, store, storage.Minio, config.AppConfig.FileCacheTTL)

	var events service.EventPublisher
	if publisher, err := mq.GetPublisher(); err != nil {
		log.Printf("rabbitmq unavailable, purge events disabled: %v", err)
	} else {
		events = publisher
	}

	manager := service.NewTrashManager(store, cache, ledger, events)
	fileSvc := service.NewFileService(store, cache, ledger)
	userSvc := service.NewUserService(store, config.AppConfig.QuotaLimitBytes)
	handler.Init(userSvc, fileSvc, manager, ledger)

	reaper := worker.NewReaper(store, manager, worker.ReaperConfig{
		ShelfSweepInterval: config.AppConfig.ShelfSweepInterval,
		TrashSweepInterval: config.AppConfig.TrashSweepInterval,
		TrashLifespanDays:  config.AppConfig.TrashLifespanDays,
		PurgeRate:          config.AppConfig.CleanupRate,
		PurgeBurst:         config.AppConfig.CleanupBurst,
	}, newSweepLock, worker.NewMailNotifier(store))
	go reaper.Run(context.Background())

	router := router.InitRouter()

	router.Run(":8000")
}

// newSweepLock builds a short redis lock so only one replica runs a sweep.
func newSweepLock(key string) worker.Locker {
	return repo.NewRedisLock(repo.Redis, key, 10*time.Minute)
}
