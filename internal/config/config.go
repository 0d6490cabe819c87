package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPGHost     = "127.0.0.1"
	DefaultPGPort     = 5432
	DefaultPGUser     = "postgres"
	DefaultPGDatabase = "deskwing"
	DefaultPGSSLMode  = "disable"
	DefaultFAQPath    = "configs/faq.md"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Responder ResponderConfig `toml:"responder"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type KafkaConfig struct {
	Brokers          []string `toml:"brokers"`
	IncomingTopic    string   `toml:"incoming_topic"`
	DeadLetterTopic  string   `toml:"dead_letter_topic"`
	EscalationsTopic string   `toml:"escalations_topic"`
	MetricsTopic     string   `toml:"metrics_topic"`
	ConsumerGroup    string   `toml:"consumer_group"`
}

type ResponderConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// PipelineConfig carries the orchestrator's retry and policy knobs.
type PipelineConfig struct {
	StorageRetryAttempts   int     `toml:"storage_retry_attempts"`
	StorageRetryBackoffMS  int     `toml:"storage_retry_backoff_ms"`
	ConversationWindowHrs  int     `toml:"conversation_window_hours"`
	SentimentThreshold     float64 `toml:"sentiment_threshold"`
	MinTurnsForSentiment   int     `toml:"min_turns_for_sentiment"`
	KnowledgeGapThreshold  int     `toml:"knowledge_gap_threshold"`
	ChatCharBudget         int     `toml:"chat_char_budget"`
	EmailWordBudget        int     `toml:"email_word_budget"`
	WebFormWordBudget      int     `toml:"web_form_word_budget"`
	MetricsIntervalMinutes int     `toml:"metrics_interval_minutes"`
}

type KnowledgeConfig struct {
	FAQPath    string `toml:"faq_path"`
	MaxResults int    `toml:"max_results"`
}

// ConversationWindow returns the rolling window inside which an active
// conversation accepts new inbound messages.
func (c PipelineConfig) ConversationWindow() time.Duration {
	hrs := c.ConversationWindowHrs
	if hrs <= 0 {
		hrs = 24
	}
	return time.Duration(hrs) * time.Hour
}

// StorageRetryBackoff returns the base backoff between storage retries.
func (c PipelineConfig) StorageRetryBackoff() time.Duration {
	ms := c.StorageRetryBackoffMS
	if ms <= 0 {
		ms = 200
	}
	return time.Duration(ms) * time.Millisecond
}

// Timeout returns the responder call timeout.
func (c ResponderConfig) Timeout() time.Duration {
	secs := c.TimeoutSeconds
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// DSN builds a pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: "24h",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Kafka: KafkaConfig{
			Brokers:          []string{"localhost:9092"},
			IncomingTopic:    "desk.messages.incoming",
			DeadLetterTopic:  "desk.dlq",
			EscalationsTopic: "desk.escalations",
			MetricsTopic:     "desk.metrics",
			ConsumerGroup:    "deskwing-pipeline",
		},
		Responder: ResponderConfig{
			BaseURL:        "http://127.0.0.1:8081",
			TimeoutSeconds: 30,
			RetryAttempts:  2,
		},
		Pipeline: PipelineConfig{
			StorageRetryAttempts:   3,
			StorageRetryBackoffMS:  200,
			ConversationWindowHrs:  24,
			SentimentThreshold:     -0.3,
			MinTurnsForSentiment:   2,
			KnowledgeGapThreshold:  2,
			ChatCharBudget:         300,
			EmailWordBudget:        500,
			WebFormWordBudget:      300,
			MetricsIntervalMinutes: 5,
		},
		Knowledge: KnowledgeConfig{
			FAQPath:    DefaultFAQPath,
			MaxResults: 3,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
