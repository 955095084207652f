package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix - префикс переменных окружения: FAULTS_SERVER_PORT, FAULTS_STORAGE_DRIVER и т.д.
const EnvPrefix = "FAULTS"

// Драйверы хранилищ.
const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"

	UploadsLocal = "local"
	UploadsMinio = "minio"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // development | production
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IsDevelopment сообщает, можно ли отдавать клиенту подробности внутренних ошибок.
func (c ServerConfig) IsDevelopment() bool {
	return c.Mode == "development"
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"` // sqlite | json
	SQLiteDSN string `mapstructure:"sqlite_dsn"`
	JSONPath  string `mapstructure:"json_path"`
}

type UploadsConfig struct {
	Driver      string `mapstructure:"driver"` // local | minio
	Dir         string `mapstructure:"dir"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
	MaxFiles    int    `mapstructure:"max_files"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type TelegramConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	AlertChannelID int64  `mapstructure:"alert_channel_id"`
	// MinSeverity - степень, начиная с которой отчет эскалируется без флагов безопасности.
	MinSeverity string `mapstructure:"min_severity"`
	// Timeout - таймаут запроса к Bot API.
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// Load читает конфигурацию из JSON-файла path, затем применяет .env и переменные окружения.
// Отсутствующий файл не ошибка: используются значения по умолчанию.
func Load(path string) (*Config, error) {
	// .env не обязателен, переменные окружения процесса имеют приоритет.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("failed to read config file: %w", err)
				}
			}
		}
	}

	// Совместимость со старой переменной без префикса.
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && v.GetString("telegram.bot_token") == "" {
		v.Set("telegram.bot_token", token)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.sqlite_dsn", "data/faults.db")
	v.SetDefault("storage.json_path", "data/faults.json")

	v.SetDefault("uploads.driver", UploadsLocal)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.max_file_size", 10<<20)
	v.SetDefault("uploads.max_files", 5)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "fault-uploads")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.alert_channel_id", 0)
	v.SetDefault("telegram.min_severity", "critical")
	v.SetDefault("telegram.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.Mode != "development" && c.Server.Mode != "production" {
		errs = append(errs, fmt.Errorf("server.mode must be development or production, got %q", c.Server.Mode))
	}

	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.SQLiteDSN == "" {
			errs = append(errs, errors.New("storage.sqlite_dsn is required for sqlite driver"))
		}
	case StorageJSON:
		if c.Storage.JSONPath == "" {
			errs = append(errs, errors.New("storage.json_path is required for json driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Uploads.Driver {
	case UploadsLocal:
		if c.Uploads.Dir == "" {
			errs = append(errs, errors.New("uploads.dir is required for local driver"))
		}
	case UploadsMinio:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			errs = append(errs, errors.New("minio.endpoint and minio.bucket are required for minio driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown uploads.driver %q", c.Uploads.Driver))
	}
	if c.Uploads.MaxFileSize <= 0 {
		errs = append(errs, errors.New("uploads.max_file_size must be positive"))
	}
	if c.Uploads.MaxFiles <= 0 {
		errs = append(errs, errors.New("uploads.max_files must be positive"))
	}

	if c.Cache.Enabled && c.Cache.Size <= 0 {
		errs = append(errs, errors.New("cache.size must be positive when cache is enabled"))
	}

	return errors.Join(errs...)
}
