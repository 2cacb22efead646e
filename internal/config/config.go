package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	// Режимы работы демонов.
	ModeOneShot = "one-shot"
	ModeLoop    = "loop"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Queue    QueueConfig    `mapstructure:"Queue"`
	Mail     MailConfig     `mapstructure:"Mail"`
	Daemon   DaemonConfig   `mapstructure:"Daemon"`
	Cache    CacheConfig    `mapstructure:"Cache"`
}

type ServerConfig struct {
	Port string `mapstructure:"Port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type QueueConfig struct {
	URL string `mapstructure:"URL"`
}

type MailConfig struct {
	Host string `mapstructure:"Host"`
	Port int    `mapstructure:"Port"`
	From string `mapstructure:"From"`
}

type DaemonConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	Mode          string `mapstructure:"Mode"`
	RunEveryHours int    `mapstructure:"RunEveryHours"`
}

// CacheConfig — доменные константы управления кэшем.
type CacheConfig struct {
	DefaultQuotaSize    int64 `mapstructure:"DefaultQuotaSize"`
	DefaultHardLimit    int64 `mapstructure:"DefaultHardLimit"`
	MaxPersistenceDays  int64 `mapstructure:"MaxPersistenceDays"`
	DeletionGraceHours  int   `mapstructure:"DeletionGraceHours"`
	SweepIntervalSecond int   `mapstructure:"SweepIntervalSecond"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Queue.URL", "AMQP_URL")
	v.BindEnv("Mail.Host", "SMTP_HOST")
	v.BindEnv("Mail.Port", "SMTP_PORT")
	v.BindEnv("Mail.From", "SMTP_FROM")
	v.BindEnv("Daemon.LogLevel", "LOG_LEVEL")
	v.BindEnv("Daemon.Mode", "DAEMON_MODE")
	v.BindEnv("Daemon.RunEveryHours", "RUN_EVERY_HOURS")

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Проверяем переменные окружения напрямую если конфигурация неполная
	if cfg.Database.Host == "" {
		cfg.Database.Host = v.GetString("DATABASE_HOST")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = v.GetString("DATABASE_PORT")
	}
	if cfg.Database.User == "" {
		cfg.Database.User = v.GetString("DATABASE_USER")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = v.GetString("DATABASE_NAME")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = v.GetString("HTTP_PORT")
	}
	if cfg.Queue.URL == "" {
		cfg.Queue.URL = v.GetString("AMQP_URL")
	}

	// Без каталога процесс не имеет права трогать пользователей — это
	// фатальная ошибка конфигурации на старте
	if cfg.Database.Host == "" ||
		cfg.Database.Port == "" ||
		cfg.Database.User == "" ||
		cfg.Database.Password == "" ||
		cfg.Database.Name == "" {
		return nil, fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Name)
	}

	// Установка значений по умолчанию
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "2525"
	}
	if cfg.Daemon.LogLevel == "" {
		cfg.Daemon.LogLevel = "info"
	}
	if cfg.Daemon.Mode == "" {
		cfg.Daemon.Mode = ModeOneShot
	}
	if cfg.Daemon.Mode != ModeOneShot && cfg.Daemon.Mode != ModeLoop {
		return nil, fmt.Errorf("invalid daemon mode: %s (expected %q or %q)",
			cfg.Daemon.Mode, ModeOneShot, ModeLoop)
	}
	if cfg.Daemon.RunEveryHours <= 0 {
		cfg.Daemon.RunEveryHours = 1
	}
	if cfg.Cache.DefaultQuotaSize <= 0 {
		cfg.Cache.DefaultQuotaSize = 2 * 1024 * 1024 * 1024 // 2GB
	}
	if cfg.Cache.DefaultHardLimit <= 0 {
		cfg.Cache.DefaultHardLimit = 2 * 1024 * 1024 * 1024 // 2GB
	}
	if cfg.Cache.MaxPersistenceDays <= 0 {
		cfg.Cache.MaxPersistenceDays = 365
	}
	if cfg.Cache.DeletionGraceHours <= 0 {
		cfg.Cache.DeletionGraceHours = 24
	}
	if cfg.Cache.SweepIntervalSecond <= 0 {
		cfg.Cache.SweepIntervalSecond = 60
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 25
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = "xfercache@localhost"
	}

	return &cfg, nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GracePeriod возвращает grace-период между планированием и удалением.
func (c *CacheConfig) GracePeriod() time.Duration {
	return time.Duration(c.DeletionGraceHours) * time.Hour
}

// RunInterval возвращает период между проходами демона в режиме loop.
func (c *DaemonConfig) RunInterval() time.Duration {
	return time.Duration(c.RunEveryHours) * time.Hour
}
