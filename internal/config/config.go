package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lumenchat/chatd/internal/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Chat      ChatConfig
	Journal   JournalConfig
	Bridge    BridgeConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type ChatConfig struct {
	HistoryPageSize int           `mapstructure:"history_page_size"`
	TypingIdle      time.Duration `mapstructure:"typing_idle"`
	MaxBodyLength   int           `mapstructure:"max_body_length"`
	MaxAttachments  int           `mapstructure:"max_attachments"`
	MaxHistoryLimit int           `mapstructure:"max_history_limit"`
}

type JournalConfig struct {
	Enabled bool
	Path    string
}

type BridgeConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Channel  string
}

// Load reads configuration from ./config/config.yaml (if present) and
// environment variables, applying defaults for every key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; rely on defaults and env vars.
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("chat.history_page_size", 50)
	v.SetDefault("chat.typing_idle", "1200ms")
	v.SetDefault("chat.max_body_length", 2000)
	v.SetDefault("chat.max_attachments", 8)
	v.SetDefault("chat.max_history_limit", 200)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "./data/chatd")
	v.SetDefault("bridge.enabled", false)
	v.SetDefault("bridge.address", "localhost:6379")
	v.SetDefault("bridge.password", "")
	v.SetDefault("bridge.db", 0)
	v.SetDefault("bridge.channel", "chatd:events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chatd")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("journal.enabled", "JOURNAL_ENABLED")
	v.BindEnv("journal.path", "JOURNAL_PATH")
	v.BindEnv("bridge.enabled", "BRIDGE_ENABLED")
	v.BindEnv("bridge.address", "REDIS_ADDRESS")
	v.BindEnv("bridge.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Chat.TypingIdle = parseDuration(v, "chat.typing_idle", 1200*time.Millisecond)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
