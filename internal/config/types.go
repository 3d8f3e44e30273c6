package config

import "time"

type Config struct {
	DBPath          string
	ProviderTimeout time.Duration
	LLM             LLMConfig
	Embedder        EmbedderConfig
	Scoring         ScoringConfig
	Schedule        ScheduleConfig
	Assistant       AssistantConfig
	Storage         StorageConfig
	Notify          NotifyConfig
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type EmbedderConfig struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

type WeightsConfig struct {
	Text     float64 `yaml:"text"`
	Image    float64 `yaml:"image"`
	Location float64 `yaml:"location"`
	Date     float64 `yaml:"date"`
}

// ScoringConfig tunes match scoring. It is read from the YAML file named by
// TALAQI_SCORING_FILE, then individual env vars override it.
type ScoringConfig struct {
	Weights          WeightsConfig `yaml:"weights"`
	Threshold        float64       `yaml:"threshold"`
	MaxDistanceKm    float64       `yaml:"max_distance_km"`
	GovernorateScore float64       `yaml:"governorate_score"`
	DateWindowDays   float64       `yaml:"date_window_days"`
	DateGraceDays    float64       `yaml:"date_grace_days"`
	StaleAfterDays   int           `yaml:"stale_after_days"`
}

type ScheduleConfig struct {
	Reevaluate string
	Refresh    string
}

type AssistantConfig struct {
	DefaultTopK int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type NotifyConfig struct {
	TelegramToken    string
	TelegramChatID   int64
	DiscordToken     string
	DiscordChannelID string
}
