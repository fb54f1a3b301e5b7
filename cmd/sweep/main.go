package main

import (
	"context"
	"log"
	"time"

	"pdfchat/internal/app"
	"pdfchat/internal/cache"
	"pdfchat/internal/config"
	"pdfchat/internal/lifecycle"
	"pdfchat/internal/pkg/logger"
	mysqlClient "pdfchat/internal/platform/mysql"
	redisClient "pdfchat/internal/platform/redis"
	"pdfchat/internal/repository"
)

// One-shot retention sweep, meant to run from cron. Archives ACTIVE
// sessions idle past the inactivity threshold and hard-deletes
// ARCHIVED sessions past the retention threshold.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	slogger := logger.New(cfg.Log.Level, cfg.Log.Format)

	db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("connect mysql failed: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("connect redis failed: %v", err)
	}
	defer redisCli.Close()

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	txManager := repository.NewTxManager(db)

	historyCache := cache.NewHistoryCache(
		redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	machine := lifecycle.NewMachine(sessionRepo, slogger)
	secondary := app.NewSessionResources(chunkRepo, messageRepo, historyCache, slogger)
	sessionService := app.NewSessionService(
		userRepo,
		sessionRepo,
		documentRepo,
		txManager,
		machine,
		secondary,
		slogger,
		cfg.Lifecycle.InactivityThreshold(),
		cfg.Lifecycle.RetentionThreshold(),
	)

	start := time.Now()
	result, err := sessionService.RunRetentionSweep(ctx)
	if err != nil {
		log.Fatalf("retention sweep failed: %v", err)
	}
	slogger.Info("retention sweep finished",
		"archived", result.Archived,
		"deleted", result.Deleted,
		"elapsed", time.Since(start).String(),
	)
}
