package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/marketplace/pkg/config"
	"github.com/example/marketplace/pkg/identity"
	"github.com/example/marketplace/pkg/notify"
	"github.com/example/marketplace/pkg/repository"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting notification dispatcher")

	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	redisRepo := repository.NewRedisRepository(&cfg.Redis)

	identitySvc, err := identity.NewService(&cfg.MySQL, redisRepo, logger.Named("identity"))
	if err != nil {
		logger.Fatal("Failed to create identity service", zap.Error(err))
	}

	templates, err := notify.NewTemplates()
	if err != nil {
		logger.Fatal("Failed to build templates", zap.Error(err))
	}

	system := actor.NewActorSystem()
	sender := &notify.LogSender{Logger: logger.Named("sender")}
	sendPID, err := notify.SpawnSendActor(system, sender, cfg.Notify.SendTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to spawn send actor", zap.Error(err))
	}

	dispatcher := notify.NewDispatcher(
		repository.NewOutboxStore(mongoRepo),
		identitySvc,
		templates,
		system,
		sendPID,
		notify.DispatcherConfig{
			PollInterval: cfg.Notify.PollInterval,
			BatchSize:    cfg.Notify.BatchSize,
			MaxAttempts:  cfg.Notify.MaxAttempts,
			SendTimeout:  cfg.Notify.SendTimeout,
		},
		logger.Named("dispatcher"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	logger.Info("Received shutdown signal")
	cancel()

	if err := mongoRepo.Close(context.Background()); err != nil {
		logger.Error("Failed to close MongoDB connection", zap.Error(err))
	}
	redisRepo.Close()

	logger.Info("Dispatcher stopped")
}
