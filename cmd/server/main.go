package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anoa.com/gamiledger/internal/bootstrap"
	"anoa.com/gamiledger/internal/config"
	"anoa.com/gamiledger/internal/entity"
	questRepo "anoa.com/gamiledger/internal/modules/quest/repository"
	searchService "anoa.com/gamiledger/internal/modules/search/service"
	"anoa.com/gamiledger/internal/server"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/logger"
	"github.com/meilisearch/meilisearch-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres
	db, err := database.Connect(database.Options{
		URL:      cfg.DatabaseURL,
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Name:     cfg.DBName,
		Port:     cfg.DBPort,
		Debug:    !cfg.IsProduction(),
	})
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	if err := entity.AutoMigrate(db); err != nil {
		log.Fatal("migration failed", "error", err)
	}

	// Redis is optional; markers, locks, live notifications and the
	// leaderboard cache degrade to database-only behaviour without it.
	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, continuing without it", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Meilisearch
	var index searchService.QuestIndex
	if cfg.SearchEnabled {
		meiliClient := meilisearch.New(cfg.MeiliSearchHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
		index = searchService.NewMeiliSearchService(meiliClient, log)
	}

	if err := bootstrap.SeedCatalog(ctx, questRepo.NewCategoryRepository(db), questRepo.NewQuestRepository(db), log); err != nil {
		log.Fatal("failed to seed quest catalog", "error", err)
	}
	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedDevAdmin(ctx, db, log); err != nil {
			log.Fatal("failed to seed admin user", "error", err)
		}
	}

	srv, err := server.NewServer(server.Dependencies{
		Config: cfg,
		DB:     db,
		Redis:  redisClient,
		Index:  index,
		Clock:  clock.Real{},
		Log:    log,
	})
	if err != nil {
		log.Fatal("failed to build server", "error", err)
	}
	srv.Warmup(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server exited with error", "error", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
