package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"fault-dashboard/internal/config"
	"fault-dashboard/internal/models"
	"fault-dashboard/internal/notify"
	"fault-dashboard/internal/server"
	"fault-dashboard/internal/service"
	"fault-dashboard/internal/storage/cache"
	storage_gorm "fault-dashboard/internal/storage/gorm"
	"fault-dashboard/internal/storage/jsonfile"
	"fault-dashboard/internal/storage/payload"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("application stopped with error", zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("application stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// --- Хранилище отчетов ---
	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	if cfg.Cache.Enabled {
		store = cache.New(store, cfg.Cache.Size, cfg.Cache.TTL)
		logger.Info("fault cache enabled", zap.Int("size", cfg.Cache.Size), zap.Duration("ttl", cfg.Cache.TTL))
	}

	// --- Хранилище вложений ---
	payloads, err := openPayloads(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("upload storage ready", zap.String("driver", cfg.Uploads.Driver))

	// --- Оповещения ---
	var notifier service.Notifier = notify.Nop{}
	if cfg.Telegram.BotToken == "" || cfg.Telegram.AlertChannelID == 0 {
		logger.Info("Telegram alert channel is not configured, escalations will only be logged")
	} else {
		tg, err := notify.NewTelegramNotifier(notify.TelegramOptions{
			Token:     cfg.Telegram.BotToken,
			ChannelID: cfg.Telegram.AlertChannelID,
			Timeout:   cfg.Telegram.Timeout,
		})
		if err != nil {
			return err
		}
		notifier = tg
	}

	policy := service.NewEscalationPolicy()
	policy.MinSeverity = models.Severity(cfg.Telegram.MinSeverity)

	reportService := service.NewReportService(store, payloads, notifier, policy, service.UploadLimits{
		MaxFileSize: cfg.Uploads.MaxFileSize,
		MaxFiles:    cfg.Uploads.MaxFiles,
	}, logger)

	return server.Start(ctx, reportService, cfg.Server, logger)
}

// openStore выбирает движок хранения по конфигурации.
func openStore(cfg config.StorageConfig, logger *zap.Logger) (service.FaultStore, error) {
	switch cfg.Driver {
	case config.StorageJSON:
		store, err := jsonfile.New(cfg.JSONPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open JSON store: %w", err)
		}
		logger.Info("using JSON document store", zap.String("path", cfg.JSONPath))
		return store, nil
	case config.StorageSQLite:
		if err := ensureDir(cfg.SQLiteDSN); err != nil {
			return nil, err
		}
		db, err := storage_gorm.Open(cfg.SQLiteDSN, logger)
		if err != nil {
			return nil, err
		}
		store, err := storage_gorm.NewGormFaultRepository(db)
		if err != nil {
			return nil, err
		}
		logger.Info("using SQLite store", zap.String("dsn", cfg.SQLiteDSN))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openPayloads(ctx context.Context, cfg *config.Config) (service.PayloadStore, error) {
	if cfg.Uploads.Driver == config.UploadsMinio {
		return payload.NewMinioStore(ctx, payload.MinioOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
	}
	return payload.NewLocalStore(cfg.Uploads.Dir)
}

// ensureDir создает каталог файла базы: SQLite сам его не создает.
func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
