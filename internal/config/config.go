// Package config loads runtime settings from an optional YAML file, an optional
// .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by the selectors.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendSQL       = "sql"
	BackendPubSub    = "pubsub"
	BackendKafka     = "kafka"
	BackendBigQuery  = "bigquery"
	BackendNotion    = "notion"
)

// Config top-level struct
type Config struct {
	Senders      SendersConfig `yaml:"senders"`
	Employer     string        `yaml:"employer"`
	EmailAddress string        `yaml:"email_address"`
	Name         string        `yaml:"name"`
	Timezone     string        `yaml:"timezone"`
	LogLevel     string        `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Gmail     GmailConfig     `yaml:"gmail"`
	GCP       GCPConfig       `yaml:"gcp"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Notion    NotionConfig    `yaml:"notion"`

	Watermark WatermarkConfig `yaml:"watermark"`
	Queue     QueueConfig     `yaml:"queue"`
	Sinks     []string        `yaml:"sinks"`
}

// SendersConfig holds the notification address of each institution.
type SendersConfig struct {
	Venmo      string `yaml:"venmo"`
	Amex       string `yaml:"amex"`
	Chase      string `yaml:"chase"`
	CapitalOne string `yaml:"capitalone"`
	WellsFargo string `yaml:"wellsfargo"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type GmailConfig struct {
	UserID    string  `yaml:"user_id"`
	FetchRPS  float64 `yaml:"fetch_rps"`
	TokenFile string  `yaml:"token_file"`
}

type GCPConfig struct {
	ProjectID                   string `yaml:"project_id"`
	OAuthTokenSecretID          string `yaml:"oauth_token_secret_id"`
	MessageProcessingCollection string `yaml:"message_processing_collection"`
	TransactionsCollection      string `yaml:"transactions_collection"`
	PubSubTopicID               string `yaml:"pubsub_topic_id"`
	PubSubSubscriptionID        string `yaml:"pubsub_subscription_id"`
	BigQueryDataset             string `yaml:"bigquery_dataset"`
	ArchiveBucket               string `yaml:"archive_bucket"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

type WatermarkConfig struct {
	Backend string `yaml:"backend"`
}

type QueueConfig struct {
	Backend string `yaml:"backend"`
}

// Load reads the YAML file at path (skipped when path is empty), then .env from
// the working directory if present, then environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("Load: parse %s: %w", path, err)
		}
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: read .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	for key, dst := range c.stringFields() {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("Load: PORT %q is not a number: %w", v, domain.ErrInvalidArgument)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("SINKS"); v != "" {
		c.Sinks = splitList(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.Gmail.UserID == "" {
		c.Gmail.UserID = "me"
	}
	if c.Gmail.FetchRPS == 0 {
		c.Gmail.FetchRPS = 10
	}
	if c.GCP.MessageProcessingCollection == "" {
		c.GCP.MessageProcessingCollection = "message_processing"
	}
	if c.GCP.TransactionsCollection == "" {
		c.GCP.TransactionsCollection = "transactions"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "mailledger-writer"
	}
	if c.Watermark.Backend == "" {
		c.Watermark.Backend = BackendMemory
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = BackendMemory
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []string{BackendSQL}
	}
}

// stringFields maps environment variable names to the string fields they override.
func (c *Config) stringFields() map[string]*string {
	return map[string]*string{
		"VENMO_EMAIL":                   &c.Senders.Venmo,
		"AMEX_EMAIL":                    &c.Senders.Amex,
		"CHASE_EMAIL":                   &c.Senders.Chase,
		"CAPITALONE_EMAIL":              &c.Senders.CapitalOne,
		"WELLSFARGO_EMAIL":              &c.Senders.WellsFargo,
		"EMPLOYER":                      &c.Employer,
		"EMAIL_ADDRESS":                 &c.EmailAddress,
		"NAME":                          &c.Name,
		"TIMEZONE":                      &c.Timezone,
		"LOG_LEVEL":                     &c.LogLevel,
		"GCP_PROJECT_ID":                &c.GCP.ProjectID,
		"OAUTH_TOKEN_SECRET_ID":         &c.GCP.OAuthTokenSecretID,
		"OAUTH_TOKEN_FILE":              &c.Gmail.TokenFile,
		"MESSAGE_PROCESSING_COLLECTION": &c.GCP.MessageProcessingCollection,
		"PUBSUB_TOPIC_ID":               &c.GCP.PubSubTopicID,
		"PUBSUB_SUBSCRIPTION_ID":        &c.GCP.PubSubSubscriptionID,
		"BIGQUERY_DATASET":              &c.GCP.BigQueryDataset,
		"ARCHIVE_BUCKET":                &c.GCP.ArchiveBucket,
		"DATABASE_URL":                  &c.Postgres.DSN,
		"REDIS_ADDR":                    &c.Redis.Addr,
		"REDIS_PASSWORD":                &c.Redis.Password,
		"KAFKA_TOPIC":                   &c.Kafka.Topic,
		"NOTION_TOKEN":                  &c.Notion.Token,
		"NOTION_DATABASE_ID":            &c.Notion.DatabaseID,
		"WATERMARK_BACKEND":             &c.Watermark.Backend,
		"QUEUE_BACKEND":                 &c.Queue.Backend,
	}
}

// Validate checks the settings every binary needs: the five sender addresses
// and known backend names.
func (c *Config) Validate() error {
	if err := c.Require("VENMO_EMAIL", "AMEX_EMAIL", "CHASE_EMAIL", "CAPITALONE_EMAIL", "WELLSFARGO_EMAIL"); err != nil {
		return err
	}

	switch c.Watermark.Backend {
	case BackendMemory, BackendFirestore, BackendRedis, BackendSQL:
	default:
		return fmt.Errorf("Validate: unknown watermark backend %q: %w", c.Watermark.Backend, domain.ErrInvalidArgument)
	}
	switch c.Queue.Backend {
	case BackendMemory, BackendPubSub, BackendKafka:
	default:
		return fmt.Errorf("Validate: unknown queue backend %q: %w", c.Queue.Backend, domain.ErrInvalidArgument)
	}
	for _, s := range c.Sinks {
		switch s {
		case BackendSQL, BackendFirestore, BackendBigQuery:
		default:
			return fmt.Errorf("Validate: unknown sink %q: %w", s, domain.ErrInvalidArgument)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Require reports every key in keys whose value is empty. Keys are the
// environment variable names, whichever source supplied the value.
func (c *Config) Require(keys ...string) error {
	fields := c.stringFields()
	var missing []string
	for _, key := range keys {
		if key == "KAFKA_BROKERS" {
			if len(c.Kafka.Brokers) == 0 {
				missing = append(missing, key)
			}
			continue
		}
		dst, ok := fields[key]
		if !ok || *dst == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), domain.ErrConfigurationMissing)
	}
	return nil
}

// RequireBackends checks the settings the selected watermark, queue and sink backends need.
func (c *Config) RequireBackends() error {
	var keys []string
	switch c.Watermark.Backend {
	case BackendFirestore:
		keys = append(keys, "GCP_PROJECT_ID", "MESSAGE_PROCESSING_COLLECTION")
	case BackendRedis:
		keys = append(keys, "REDIS_ADDR")
	case BackendSQL:
		keys = append(keys, "DATABASE_URL")
	}
	switch c.Queue.Backend {
	case BackendPubSub:
		keys = append(keys, "GCP_PROJECT_ID", "PUBSUB_TOPIC_ID")
	case BackendKafka:
		keys = append(keys, "KAFKA_BROKERS", "KAFKA_TOPIC")
	}
	for _, s := range c.Sinks {
		switch s {
		case BackendSQL:
			keys = append(keys, "DATABASE_URL")
		case BackendFirestore:
			keys = append(keys, "GCP_PROJECT_ID")
		case BackendBigQuery:
			keys = append(keys, "GCP_PROJECT_ID", "BIGQUERY_DATASET")
		}
	}
	return c.Require(dedupe(keys)...)
}

// HasSink reports whether name is among the configured sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// Location returns the zone transaction dates are rendered in.
// An empty Timezone means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("Location: %q: %w", c.Timezone, domain.ErrInvalidArgument)
	}
	return loc, nil
}

// SenderList returns the configured addresses, skipping empty ones.
func (c *Config) SenderList() []string {
	var out []string
	for _, s := range []string{c.Senders.Venmo, c.Senders.Amex, c.Senders.Chase, c.Senders.CapitalOne, c.Senders.WellsFargo} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
