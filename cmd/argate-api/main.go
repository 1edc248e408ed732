package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arvista/argate-backend/internal/auth"
	"github.com/arvista/argate-backend/internal/config"
	"github.com/arvista/argate-backend/internal/gate"
	"github.com/arvista/argate-backend/internal/handler"
	"github.com/arvista/argate-backend/internal/metrics"
	"github.com/arvista/argate-backend/internal/models"
	"github.com/arvista/argate-backend/internal/mqtt"
	"github.com/arvista/argate-backend/internal/repository"
	"github.com/arvista/argate-backend/internal/service"
	"github.com/arvista/argate-backend/pkg/utils"
)

var (
	// Version устанавливается при сборке через ldflags
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(config.LogLevel(), config.LogFormat())
	logger.WithField("version", Version).Info("Starting ArGate Backend")
	metrics.SetAppInfo(Version, Commit, BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Хранилище текущего состояния целей
	redisRepo, err := repository.NewRedisRepository(&cfg.Redis, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize Redis repository")
	}
	defer redisRepo.Close()

	if err := redisRepo.Ping(ctx); err != nil {
		logger.WithField("error", err).Fatal("Failed to connect to Redis")
	}
	logger.Info("Connected to Redis")

	// Долговременный журнал переходов (опционально)
	var journalRepo repository.JournalRepository
	var journalWriter *service.JournalWriter
	if cfg.MySQL.DSN != "" {
		mysqlRepo, err := repository.NewMySQLRepository(&cfg.MySQL, logger)
		if err != nil {
			logger.WithField("error", err).Warn("Failed to initialize MySQL journal")
		} else {
			defer mysqlRepo.Close()
			if err := mysqlRepo.Ping(ctx); err != nil {
				logger.WithField("error", err).Warn("Failed to connect to MySQL")
			} else {
				logger.Info("Connected to MySQL")
				journalRepo = mysqlRepo
				journalWriter = service.NewJournalWriter(mysqlRepo, &service.JournalConfig{
					BatchSize:     cfg.Performance.JournalBatchSize,
					FlushInterval: cfg.Performance.JournalFlushInterval,
					QueueSize:     cfg.Performance.JournalQueueSize,
				}, logger)
				journalWriter.Start()
				defer journalWriter.Stop()
			}
		}
	}

	// Hub рассылки событий WebSocket клиентам
	hub := handler.NewHub(logger)

	// Менеджер контроллеров видимости
	defaultPolicy, err := models.ParsePolicy(cfg.Gate.DefaultPolicy)
	if err != nil {
		logger.WithField("error", err).Fatal("Invalid default filter policy")
	}

	var journal gate.TransitionJournal
	if journalWriter != nil {
		journal = journalWriter
	}

	manager := gate.NewGateManager(gate.ManagerConfig{
		DefaultPolicy: defaultPolicy,
		StaleAfter:    cfg.Gate.StaleAfter,
		SweepInterval: cfg.Gate.SweepInterval,
		AudioElements: cfg.Gate.AudioElements,
	}, redisRepo, hub, journal, logger)

	go manager.Run(ctx)

	// Аутентификация через identity-сервис (опционально)
	var authMw *auth.Middleware
	if cfg.Auth.Endpoint != "" {
		authCache := auth.NewCache(redisRepo.GetClient(), cfg.Auth.CacheTTL)
		validator := auth.NewValidator(cfg.Auth.Endpoint, authCache, logger)
		authMw = auth.NewMiddleware(validator, logger)
	}

	// HTTP сервер
	server := handler.NewServer(cfg, redisRepo, journalRepo, manager, hub, authMw, logger)

	// MQTT клиент: статусы трекинга направляются в менеджер
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger, func(msg *mqtt.StatusMessage) error {
		return manager.Apply(ctx, gate.Update{
			TargetID:  msg.TargetID,
			Name:      msg.Name,
			Anchor:    msg.Anchor,
			Status:    msg.Status,
			Destroyed: msg.Destroyed,
		})
	})
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize MQTT client")
	}
	defer mqttClient.Disconnect()

	if err := mqttClient.Connect(); err != nil {
		logger.WithField("error", err).Fatal("Failed to connect to MQTT broker")
	}
	logger.Info("Connected to MQTT broker")

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithField("error", err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig).Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("HTTP server shutdown error")
	}

	logger.Info("Server stopped gracefully")
}
