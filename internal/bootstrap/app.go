package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"finetune-orchestrator/internal/ai"
	"finetune-orchestrator/internal/app"
	"finetune-orchestrator/internal/cache"
	"finetune-orchestrator/internal/config"
	"finetune-orchestrator/internal/dataset"
	"finetune-orchestrator/internal/dispatch"
	"finetune-orchestrator/internal/model"
	mysqlClient "finetune-orchestrator/internal/platform/mysql"
	rabbitmqClient "finetune-orchestrator/internal/platform/rabbitmq"
	redisClient "finetune-orchestrator/internal/platform/redis"
	sshClient "finetune-orchestrator/internal/platform/ssh"
	"finetune-orchestrator/internal/platform/storage"
	"finetune-orchestrator/internal/repository"
	"finetune-orchestrator/internal/worker"
)

type App struct {
	Config            *config.Config
	MySQL             *gorm.DB
	Redis             *redis.Client
	MQConn            *amqp.Connection
	TrainingLogWorker *worker.TrainingLogWorker

	Documents      *app.DocumentService
	FineTune       *app.FineTuneService
	Generation     *app.GenerationService
	GenerationLogs *app.GenerationLogService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	slog.SetDefault(NewLogger(cfg.App))

	mysqlDB, err := mysqlClient.New(ctx, mysqlClient.Options{
		DSN:          cfg.MySQLDSN(),
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		Debug:        cfg.App.Env == "dev",
	})
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.Document{}, &model.TrainingLog{}, &model.GenerationLog{}); err != nil {
		closeMySQL(mysqlDB)
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		closeMySQL(mysqlDB)
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.TrainingLogQueue)
	if err != nil {
		_ = redisCli.Close()
		closeMySQL(mysqlDB)
		return nil, err
	}

	documentRepo := repository.NewDocumentRepository(mysqlDB)
	trainingLogRepo := repository.NewTrainingLogRepository(mysqlDB)
	generationLogRepo := repository.NewGenerationLogRepository(mysqlDB)

	logWorker := worker.NewTrainingLogWorker(mqConn, trainingLogRepo, cfg.RabbitMQ.TrainingLogQueue)
	if err := logWorker.Start(ctx); err != nil {
		_ = mqConn.Close()
		_ = redisCli.Close()
		closeMySQL(mysqlDB)
		return nil, fmt.Errorf("start training log worker failed: %w", err)
	}

	files := storage.NewFileStore(cfg.Storage.UploadDir)
	llmClient := ai.NewOpenAICompatibleClientWithHTTP(&http.Client{
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	chatCfg := ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	}
	validator := dataset.NewValidator(files, dataset.NewPromptBuilder(llmClient, chatCfg))

	var dispatcher app.TrainingDispatcher
	if cfg.RemoteEnabled() {
		executor := sshClient.NewExecutor(cfg.Remote.KnownHostsPath, time.Duration(cfg.Remote.DialTimeoutSeconds)*time.Second)
		dispatcher = dispatch.NewDispatcher(dispatch.Config{
			Host:         cfg.Remote.Host,
			Port:         cfg.Remote.Port,
			User:         cfg.Remote.User,
			KeyPath:      cfg.Remote.KeyPath,
			DatasetPath:  cfg.Remote.DatasetPath,
			TrainCommand: cfg.Remote.TrainCommand,
			ArtifactPath: cfg.Remote.ArtifactPath,
		}, executor, files, rabbitmqClient.NewProgressPublisher(mqConn, cfg.RabbitMQ.TrainingLogQueue))
		slog.Info("remote training enabled", "host", cfg.Remote.Host, "port", cfg.Remote.Port)
	} else {
		slog.Info("remote host not configured, training is simulated")
	}

	fineTune := app.NewFineTuneService(
		documentRepo,
		validator,
		dispatcher,
		cache.NewBatchLock(redisCli, cfg.LockTTL()),
		app.FineTuneConfig{
			ObjectsPerSecond:    cfg.Training.ObjectsPerSecond,
			MinTrainingDuration: time.Duration(cfg.Training.MinDurationSeconds) * time.Second,
			ArtifactDir:         cfg.Training.ArtifactDir,
		},
	)

	return &App{
		Config:            cfg,
		MySQL:             mysqlDB,
		Redis:             redisCli,
		MQConn:            mqConn,
		TrainingLogWorker: logWorker,
		Documents:         app.NewDocumentService(documentRepo, files, trainingLogRepo, cfg.Storage.MaxUploadSize),
		FineTune:          fineTune,
		Generation:        app.NewGenerationService(llmClient, chatCfg, generationLogRepo, documentRepo),
		GenerationLogs:    app.NewGenerationLogService(generationLogRepo),
		StartedAt:         time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.TrainingLogWorker != nil {
		a.TrainingLogWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}

func closeMySQL(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
