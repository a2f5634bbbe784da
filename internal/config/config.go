package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration constants
const (
	// Server Configuration
	Port = "PORT"
	Host = "HOST"

	// Logging Configuration
	LogLevel  = "LOG_LEVEL"
	LogFormat = "LOG_FORMAT"

	// Broadcast Configuration
	BroadcastBackend = "BROADCAST_BACKEND"

	// Redis Configuration
	RedisAddr     = "REDIS_ADDR"
	RedisPassword = "REDIS_PASSWORD"
	RedisDB       = "REDIS_DB"

	// WebSocket Configuration
	WSReadBufferSize  = "WS_READ_BUFFER_SIZE"
	WSWriteBufferSize = "WS_WRITE_BUFFER_SIZE"
	WSMaxWorkers      = 10
	WSMaxCapacity     = 100

	// Engine Configuration
	ClosingThresholdSec  = "CLOSING_THRESHOLD_SEC"
	ExtensionWindowSec   = "EXTENSION_WINDOW_SEC"
	ExtensionDurationSec = "EXTENSION_DURATION_SEC"
	MaxExtensions        = "MAX_EXTENSIONS"
	IdleNudgeSec         = "IDLE_NUDGE_SEC"
	NudgeCheckSec        = "NUDGE_CHECK_SEC"
	SubmitTimeoutMs      = "SUBMIT_TIMEOUT_MS"
	SnapshotHistory      = "SNAPSHOT_HISTORY"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	WebSocket WebSocketConfig
	Engine    EngineConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// EngineConfig holds the auction engine defaults applied to sessions opened
// without explicit values, plus which broadcast backend to use.
type EngineConfig struct {
	Backend            string
	ClosingThreshold   time.Duration
	ExtensionWindow    time.Duration
	ExtensionDuration  time.Duration
	MaxExtensions      int
	IdleNudgeWindow    time.Duration
	NudgeCheckInterval time.Duration
	SubmitTimeout      time.Duration
	SnapshotHistory    int
}

// LoadConfig loads configuration from environment variables and .envrc file
func LoadConfig() (*Config, error) {
	viper.SetConfigName(".envrc")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../config")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	// Config file is optional, env vars alone are fine
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: viper.GetString(Port),
			Host: viper.GetString(Host),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString(RedisAddr),
			Password: viper.GetString(RedisPassword),
			DB:       viper.GetInt(RedisDB),
		},
		Logging: LoggingConfig{
			Level:  viper.GetString(LogLevel),
			Format: viper.GetString(LogFormat),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  viper.GetInt(WSReadBufferSize),
			WriteBufferSize: viper.GetInt(WSWriteBufferSize),
		},
		Engine: EngineConfig{
			Backend:            viper.GetString(BroadcastBackend),
			ClosingThreshold:   time.Duration(viper.GetInt(ClosingThresholdSec)) * time.Second,
			ExtensionWindow:    time.Duration(viper.GetInt(ExtensionWindowSec)) * time.Second,
			ExtensionDuration:  time.Duration(viper.GetInt(ExtensionDurationSec)) * time.Second,
			MaxExtensions:      viper.GetInt(MaxExtensions),
			IdleNudgeWindow:    time.Duration(viper.GetInt(IdleNudgeSec)) * time.Second,
			NudgeCheckInterval: time.Duration(viper.GetInt(NudgeCheckSec)) * time.Second,
			SubmitTimeout:      time.Duration(viper.GetInt(SubmitTimeoutMs)) * time.Millisecond,
			SnapshotHistory:    viper.GetInt(SnapshotHistory),
		},
	}

	return config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	// Server defaults
	viper.SetDefault(Port, "8080")
	viper.SetDefault(Host, "localhost")

	// Broadcast defaults: in-process fan-out unless Redis is requested
	viper.SetDefault(BroadcastBackend, "memory")

	// Redis defaults
	viper.SetDefault(RedisAddr, "localhost:6379")
	viper.SetDefault(RedisPassword, "")
	viper.SetDefault(RedisDB, 0)

	// Logging defaults
	viper.SetDefault(LogLevel, "info")
	viper.SetDefault(LogFormat, "json")

	// WebSocket defaults
	viper.SetDefault(WSReadBufferSize, 1024)
	viper.SetDefault(WSWriteBufferSize, 1024)

	// Engine defaults
	viper.SetDefault(ClosingThresholdSec, 60)
	viper.SetDefault(ExtensionWindowSec, 15)
	viper.SetDefault(ExtensionDurationSec, 30)
	viper.SetDefault(MaxExtensions, 10)
	viper.SetDefault(IdleNudgeSec, 120)
	viper.SetDefault(NudgeCheckSec, 5)
	viper.SetDefault(SubmitTimeoutMs, 2000)
	viper.SetDefault(SnapshotHistory, 20)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Engine.Backend != "memory" && c.Engine.Backend != "redis" {
		return fmt.Errorf("broadcast backend must be memory or redis, got %q", c.Engine.Backend)
	}

	if c.Engine.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("Redis address is required for the redis broadcast backend")
	}

	if c.Engine.SubmitTimeout <= 0 {
		return fmt.Errorf("submit timeout must be positive")
	}

	return nil
}
