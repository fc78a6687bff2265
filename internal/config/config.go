package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	defaultConfigPath  = "config.yaml"
	configPathEnv      = "DAILY_BRIEF_CONFIG"
	envFileEnv         = "ENV_PATH"
	databaseDSNEnv     = "DATABASE_DSN"
	storageDriverEnv   = "STORAGE_DRIVER"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	ollamaBaseURLEnv   = "OLLAMA_BASE_URL"
	smtpHostEnv        = "SMTP_HOST"
	smtpPortEnv        = "SMTP_PORT"
	smtpUserEnv        = "SMTP_USER"
	smtpPasswordEnv    = "SMTP_PASSWORD"
	smtpFromEnv        = "SMTP_FROM"
	slackWebhookEnv    = "SLACK_WEBHOOK_URL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	logLevelEnv        = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Timezone      string              `yaml:"timezone"`
	Topics        []string            `yaml:"topics"`
	Sources       SourceList          `yaml:"sources"`
	Limits        LimitsConfig        `yaml:"limits"`
	Ranking       RankingConfig       `yaml:"ranking"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Summarization SummarizationConfig `yaml:"summarization"`
	ChatGPT       ChatGPTConfig       `yaml:"chatgpt"`
	Anthropic     AnthropicConfig     `yaml:"anthropic"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	Storage       StorageConfig       `yaml:"storage"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`

	location *time.Location
}

// Location resolves the configured timezone.
func (c Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.UTC
}

// SourceConfig is a feed endpoint with the scanner that reads it.
type SourceConfig struct {
	URL     string            `yaml:"url"`
	Kind    string            `yaml:"kind"`
	Options map[string]string `yaml:"options"`
}

// SourceList accepts plain URLs ("https://...") and mappings ({url, kind, options}).
type SourceList []SourceConfig

// UnmarshalYAML handles both scalar strings and mapping nodes in the sequence.
func (sl *SourceList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return &yaml.TypeError{Errors: []string{"sources: expected sequence"}}
	}
	var result SourceList
	for _, item := range value.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			result = append(result, SourceConfig{URL: item.Value})
		case yaml.MappingNode:
			var entry SourceConfig
			if err := item.Decode(&entry); err != nil {
				return err
			}
			result = append(result, entry)
		default:
			return &yaml.TypeError{Errors: []string{fmt.Sprintf("sources: line %d: expected string or mapping", item.Line)}}
		}
	}
	*sl = result
	return nil
}

// LimitsConfig bounds the expensive funnel stages.
type LimitsConfig struct {
	PerRunMaxArticles int `yaml:"perRunMaxArticles"`
	PerRunMaxSummary  int `yaml:"perRunMaxSummary"`
}

// RankingConfig tunes keyword filtering and the hybrid score.
type RankingConfig struct {
	MinScore     *float64           `yaml:"minScore"`
	ScoreWeights map[string]float64 `yaml:"scoreWeights"`
	MaxAgeHours  float64            `yaml:"maxAgeHours"`
}

// MinScoreValue returns the keyword admission threshold.
func (r RankingConfig) MinScoreValue() float64 {
	if r.MinScore == nil {
		return 1
	}
	return *r.MinScore
}

// EmbeddingConfig selects the semantic backend. An empty provider disables semantic ranking.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseUrl"`
}

// SummarizationConfig picks the summary backend and its prompt parameters.
type SummarizationConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxWords  int    `yaml:"maxWords"`
	Language  string `yaml:"language"`
	Style     string `yaml:"style"`
	Sentences int    `yaml:"sentences"`
}

// IsEnabled reports whether abstractive summaries are allowed at all.
func (s SummarizationConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ChatGPTConfig defines how to contact the OpenAI chat completions API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// AnthropicConfig carries the Messages API credential.
type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
}

// DeliveryConfig encapsulates outbound channels.
type DeliveryConfig struct {
	SubjectPrefix string         `yaml:"subjectPrefix"`
	Email         EmailConfig    `yaml:"email"`
	Slack         SlackConfig    `yaml:"slack"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

// EmailConfig holds SMTP settings; credentials normally come from the environment.
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	To       string `yaml:"to"`
	From     string `yaml:"from"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SlackConfig targets an incoming webhook.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhookUrl"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// StorageConfig selects the database and the report directory.
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	ReportsDir string `yaml:"reportsDir"`
}

// FetchConfig controls outbound HTTP politeness and retries.
type FetchConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	PoliteDelay    time.Duration `yaml:"politeDelay"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
	UserAgent      string        `yaml:"userAgent"`
}

// SchedulerConfig defines when the digest should run.
type SchedulerConfig struct {
	CronExpression string `yaml:"cronExpression"`
}

// ServerConfig exposes the status API while scheduling. An empty address disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
// path wins over DAILY_BRIEF_CONFIG; a missing default file is not an error.
func Load(path string) (Config, error) {
	loadDotEnv()

	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		if path = os.Getenv(configPathEnv); path != "" {
			explicit = true
		} else {
			path = defaultConfigPath
		}
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	cfg.bindTimezone()

	return cfg, nil
}

func loadDotEnv() {
	envPath := os.Getenv(envFileEnv)
	if envPath == "" {
		envPath = ".env"
	}
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: cannot load env file", "path", envPath, "error", err)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		if c.ChatGPT.APIKey == "" {
			c.ChatGPT.APIKey = v
		}
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = v
		}
	}
	if v := os.Getenv(anthropicAPIKeyEnv); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv(ollamaBaseURLEnv); v != "" {
		c.Embedding.BaseURL = v
	}

	email := &c.Delivery.Email
	if v := os.Getenv(smtpHostEnv); v != "" {
		email.Host = v
	}
	if v := os.Getenv(smtpPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			email.Port = port
		} else {
			slog.Warn("config: invalid SMTP_PORT, keeping default", "value", v)
		}
	}
	if v := os.Getenv(smtpUserEnv); v != "" {
		email.Username = v
	}
	if v := os.Getenv(smtpPasswordEnv); v != "" {
		email.Password = v
	}
	if v := os.Getenv(smtpFromEnv); v != "" {
		email.From = v
	}

	if v := os.Getenv(slackWebhookEnv); v != "" {
		c.Delivery.Slack.WebhookURL = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Delivery.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Delivery.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

// normalize fills defaults and clamps limits after all layers are merged.
func (c *Config) normalize() {
	var topics []string
	for _, t := range c.Topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			topics = append(topics, t)
		}
	}
	c.Topics = topics

	var sources SourceList
	for _, s := range c.Sources {
		s.URL = strings.TrimSpace(s.URL)
		if s.URL == "" {
			continue
		}
		if s.Kind == "" {
			s.Kind = "rss"
		}
		sources = append(sources, s)
	}
	c.Sources = sources

	if c.Limits.PerRunMaxSummary > c.Limits.PerRunMaxArticles {
		c.Limits.PerRunMaxSummary = c.Limits.PerRunMaxArticles
	}
	if c.Delivery.Email.From == "" {
		c.Delivery.Email.From = c.Delivery.Email.Username
	}
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	c.Summarization.Provider = strings.ToLower(strings.TrimSpace(c.Summarization.Provider))
}

func (c *Config) bindTimezone() {
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("config: unknown timezone, reverting to default", "timezone", tz, "default", defaultTimezone)
		loc = time.UTC
		tz = defaultTimezone
	}
	c.Timezone = tz
	c.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}
	if len(override.Topics) > 0 {
		base.Topics = override.Topics
	}
	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	if override.Limits.PerRunMaxArticles > 0 {
		base.Limits.PerRunMaxArticles = override.Limits.PerRunMaxArticles
	}
	if override.Limits.PerRunMaxSummary > 0 {
		base.Limits.PerRunMaxSummary = override.Limits.PerRunMaxSummary
	}

	if override.Ranking.MinScore != nil {
		base.Ranking.MinScore = override.Ranking.MinScore
	}
	if len(override.Ranking.ScoreWeights) > 0 {
		base.Ranking.ScoreWeights = override.Ranking.ScoreWeights
	}
	if override.Ranking.MaxAgeHours > 0 {
		base.Ranking.MaxAgeHours = override.Ranking.MaxAgeHours
	}

	if override.Embedding.Provider != "" {
		base.Embedding.Provider = override.Embedding.Provider
	}
	if override.Embedding.Model != "" {
		base.Embedding.Model = override.Embedding.Model
	}
	if override.Embedding.Endpoint != "" {
		base.Embedding.Endpoint = override.Embedding.Endpoint
	}
	if override.Embedding.APIKey != "" {
		base.Embedding.APIKey = override.Embedding.APIKey
	}
	if override.Embedding.BaseURL != "" {
		base.Embedding.BaseURL = override.Embedding.BaseURL
	}

	if override.Summarization.Enabled != nil {
		base.Summarization.Enabled = override.Summarization.Enabled
	}
	if override.Summarization.Provider != "" {
		base.Summarization.Provider = override.Summarization.Provider
	}
	if override.Summarization.Model != "" {
		base.Summarization.Model = override.Summarization.Model
	}
	if override.Summarization.MaxWords > 0 {
		base.Summarization.MaxWords = override.Summarization.MaxWords
	}
	if override.Summarization.Language != "" {
		base.Summarization.Language = override.Summarization.Language
	}
	if override.Summarization.Style != "" {
		base.Summarization.Style = override.Summarization.Style
	}
	if override.Summarization.Sentences > 0 {
		base.Summarization.Sentences = override.Summarization.Sentences
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}
	if override.ChatGPT.SystemPrompt != "" {
		base.ChatGPT.SystemPrompt = override.ChatGPT.SystemPrompt
	}
	if override.Anthropic.APIKey != "" {
		base.Anthropic.APIKey = override.Anthropic.APIKey
	}

	base.Delivery = mergeDelivery(base.Delivery, override.Delivery)

	if override.Storage.Driver != "" {
		base.Storage.Driver = override.Storage.Driver
	}
	if override.Storage.DSN != "" {
		base.Storage.DSN = override.Storage.DSN
	}
	if override.Storage.ReportsDir != "" {
		base.Storage.ReportsDir = override.Storage.ReportsDir
	}

	if override.Fetch.Concurrency > 0 {
		base.Fetch.Concurrency = override.Fetch.Concurrency
	}
	if override.Fetch.PoliteDelay > 0 {
		base.Fetch.PoliteDelay = override.Fetch.PoliteDelay
	}
	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.MaxRetries > 0 {
		base.Fetch.MaxRetries = override.Fetch.MaxRetries
	}
	if override.Fetch.InitialBackoff > 0 {
		base.Fetch.InitialBackoff = override.Fetch.InitialBackoff
	}
	if override.Fetch.MaxBackoff > 0 {
		base.Fetch.MaxBackoff = override.Fetch.MaxBackoff
	}
	if override.Fetch.MaxBodyBytes > 0 {
		base.Fetch.MaxBodyBytes = override.Fetch.MaxBodyBytes
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func mergeDelivery(base, override DeliveryConfig) DeliveryConfig {
	if override.SubjectPrefix != "" {
		base.SubjectPrefix = override.SubjectPrefix
	}

	if override.Email.Enabled {
		base.Email.Enabled = true
	}
	if override.Email.To != "" {
		base.Email.To = override.Email.To
	}
	if override.Email.From != "" {
		base.Email.From = override.Email.From
	}
	if override.Email.Host != "" {
		base.Email.Host = override.Email.Host
	}
	if override.Email.Port > 0 {
		base.Email.Port = override.Email.Port
	}
	if override.Email.Username != "" {
		base.Email.Username = override.Email.Username
	}
	if override.Email.Password != "" {
		base.Email.Password = override.Email.Password
	}

	if override.Slack.Enabled {
		base.Slack.Enabled = true
	}
	if override.Slack.WebhookURL != "" {
		base.Slack.WebhookURL = override.Slack.WebhookURL
	}

	if override.Telegram.Enabled {
		base.Telegram.Enabled = true
	}
	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Timezone: defaultTimezone,
		Limits:   LimitsConfig{PerRunMaxArticles: 30, PerRunMaxSummary: 10},
		Ranking:  RankingConfig{MaxAgeHours: 48},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Endpoint: "https://api.openai.com/v1/embeddings",
		},
		Summarization: SummarizationConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxWords:  140,
			Language:  "en",
			Sentences: 6,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			SystemPrompt: "You write concise, factual news digests for a single reader.",
		},
		Delivery: DeliveryConfig{
			SubjectPrefix: "[Daily Brief]",
			Email:         EmailConfig{Port: 587},
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "dailybrief.db", ReportsDir: "reports"},
		Fetch: FetchConfig{
			Concurrency:    5,
			PoliteDelay:    300 * time.Millisecond,
			Timeout:        20 * time.Second,
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     4 * time.Second,
			MaxBodyBytes:   5 << 20,
			UserAgent:      "DailyBriefAgent/1.0 (+personal research)",
		},
		Scheduler: SchedulerConfig{CronExpression: "0 7 * * *"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}
