package main

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/handler"
	"taskboard/internal/httpserver"
	"taskboard/internal/mq"
	redisclient "taskboard/internal/redis"
	"taskboard/internal/repository"
	"taskboard/internal/service/auth"
	"taskboard/internal/service/task"
	"taskboard/internal/util"
	"taskboard/pkg/otel"
)

func main() {
	logger := util.NewLogger()
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Config load failed", zap.Error(err))
	}

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "taskboard",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	if err := db.Migrate(context.Background(), dbConn, logger); err != nil {
		logger.Fatal("Schema migration failed", zap.Error(err))
	}

	// Init Redis (optional stats cache)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redisclient.NewClient(cfg.Redis)
		defer rdb.Close()
	}

	// Init RabbitMQ publisher (optional lifecycle events)
	var publisher *mq.Publisher
	if cfg.MQ.URL != "" {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			logger.Fatal("Failed to init publisher", zap.Error(err))
		}
		defer publisher.Close()
	}

	// Init Repositories
	userRepo := repository.NewUserRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn, logger)

	// Init Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret)
	var events task.Publisher
	if publisher != nil {
		events = publisher
	}
	taskService := task.NewService(taskRepo, rdb, events, logger)

	// Init Handlers
	authHandler := handler.NewAuthHandler(authService, logger)
	taskHandler := handler.NewTaskHandler(taskService, logger)

	// Router
	router := httpserver.NewRouter(authHandler, taskHandler, cfg.JWT.Secret, dbConn)

	if err := router.Run(cfg.Server.Port); err != nil {
		logger.Fatal("Server start failed", zap.Error(err))
	}
}
