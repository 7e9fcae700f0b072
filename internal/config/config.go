package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  int
	LogLevel              string
	AppEnv                string
	AppURL                string
	TelegramToken         string
	TelegramAPIURL        string
	TelegramWebhookSecret string
	TelegramPollTimeout   int
	GroupChatID           int64
	DatabaseURL           string
	NatsURL               string
	NatsToken             string
	SlackBotToken         string
	SlackChannel          string
	QuestionTreePath      string
	APIToken              string
}

func Load() Config {
	return Config{
		Port:                  envInt("IHBAR_PORT", 8760),
		LogLevel:              envStr("LOG_LEVEL", "info"),
		AppEnv:                envStr("APP_ENV", "development"),
		AppURL:                strings.TrimRight(envStr("APP_URL", ""), "/"),
		TelegramToken:         envStr("TELEGRAM_TOKEN", ""),
		TelegramAPIURL:        envStr("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramWebhookSecret: envStr("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramPollTimeout:   envInt("TELEGRAM_POLL_TIMEOUT", 30),
		GroupChatID:           envInt64("GROUP_CHAT_ID", 0),
		DatabaseURL:           envStr("DATABASE_URL", ""),
		NatsURL:               envStr("NATS_URL", ""),
		NatsToken:             envStr("NATS_TOKEN", ""),
		SlackBotToken:         envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:          envStr("SLACK_CHANNEL", ""),
		QuestionTreePath:      envStr("QUESTION_TREE_PATH", ""),
		APIToken:              envStr("IHBAR_API_TOKEN", ""),
	}
}

// Webhook reports whether updates arrive by webhook rather than long polling.
func (c Config) Webhook() bool {
	return c.AppEnv == "production"
}

// Mode is "webhook" or "polling".
func (c Config) Mode() string {
	if c.Webhook() {
		return "webhook"
	}
	return "polling"
}

func (c Config) PollTimeout() time.Duration {
	return time.Duration(c.TelegramPollTimeout) * time.Second
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envInt64 exists for chat ids, which can exceed 32 bits.
func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
