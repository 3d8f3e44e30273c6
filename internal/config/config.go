package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

func Load() (*Config, error) {
	dbPath := os.Getenv("TALAQI_DB")
	if dbPath == "" {
		dbPath = "talaqi.db"
	}

	timeout := 30 * time.Second
	if d, err := time.ParseDuration(os.Getenv("TALAQI_PROVIDER_TIMEOUT")); err == nil && d > 0 {
		timeout = d
	}

	llmConfig, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	embedderConfig, err := loadEmbedderConfig()
	if err != nil {
		return nil, err
	}

	scoringConfig, err := loadScoringConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		DBPath:          dbPath,
		ProviderTimeout: timeout,
		LLM:             llmConfig,
		Embedder:        embedderConfig,
		Scoring:         scoringConfig,
		Schedule:        loadScheduleConfig(),
		Assistant:       loadAssistantConfig(),
		Storage:         loadStorageConfig(),
		Notify:          loadNotifyConfig(),
	}, nil
}

// DefaultScoring returns the weights and thresholds used when no file or env
// override is present.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Weights: WeightsConfig{
			Text:     0.45,
			Image:    0.15,
			Location: 0.25,
			Date:     0.15,
		},
		Threshold:        0.6,
		MaxDistanceKm:    50,
		GovernorateScore: 0.5,
		DateWindowDays:   30,
		DateGraceDays:    1,
		StaleAfterDays:   30,
	}
}

func loadScoringConfig() (ScoringConfig, error) {
	cfg := DefaultScoring()

	if path := os.Getenv("TALAQI_SCORING_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ScoringConfig{}, fmt.Errorf("read scoring file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ScoringConfig{}, fmt.Errorf("parse scoring file %s: %w", path, err)
		}
	}

	overrideFloat(&cfg.Weights.Text, "TALAQI_WEIGHT_TEXT")
	overrideFloat(&cfg.Weights.Image, "TALAQI_WEIGHT_IMAGE")
	overrideFloat(&cfg.Weights.Location, "TALAQI_WEIGHT_LOCATION")
	overrideFloat(&cfg.Weights.Date, "TALAQI_WEIGHT_DATE")
	overrideFloat(&cfg.Threshold, "TALAQI_MATCH_THRESHOLD")
	overrideFloat(&cfg.MaxDistanceKm, "TALAQI_MAX_DISTANCE_KM")

	if days, err := strconv.Atoi(os.Getenv("TALAQI_STALE_AFTER_DAYS")); err == nil && days > 0 {
		cfg.StaleAfterDays = days
	}

	if err := cfg.Validate(); err != nil {
		return ScoringConfig{}, err
	}

	return cfg, nil
}

// Validate rejects weights and thresholds the scorer cannot work with.
func (c ScoringConfig) Validate() error {
	w := c.Weights
	if w.Text < 0 || w.Image < 0 || w.Location < 0 || w.Date < 0 {
		return fmt.Errorf("scoring weights must not be negative")
	}
	if w.Text+w.Image+w.Location+w.Date == 0 {
		return fmt.Errorf("at least one scoring weight must be positive")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("match threshold must be in (0, 1], got %g", c.Threshold)
	}
	if c.MaxDistanceKm <= 0 {
		return fmt.Errorf("max distance must be positive, got %g", c.MaxDistanceKm)
	}
	if c.DateWindowDays <= 0 {
		return fmt.Errorf("date window must be positive, got %g", c.DateWindowDays)
	}
	if c.StaleAfterDays <= 0 {
		return fmt.Errorf("stale window must be positive, got %d", c.StaleAfterDays)
	}
	return nil
}

func overrideFloat(dst *float64, env string) {
	if v, err := strconv.ParseFloat(os.Getenv(env), 64); err == nil {
		*dst = v
	}
}

func loadScheduleConfig() ScheduleConfig {
	reevaluate := os.Getenv("TALAQI_REEVALUATE_SCHEDULE")
	if reevaluate == "" {
		reevaluate = "@every 24h"
	}

	refresh := os.Getenv("TALAQI_REFRESH_SCHEDULE")
	if refresh == "" {
		refresh = "0 3 * * *"
	}

	return ScheduleConfig{
		Reevaluate: reevaluate,
		Refresh:    refresh,
	}
}

func loadAssistantConfig() AssistantConfig {
	topK := 5
	if k, err := strconv.Atoi(os.Getenv("TALAQI_ASSISTANT_TOP_K")); err == nil && k > 0 {
		topK = k
	}

	return AssistantConfig{DefaultTopK: topK}
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	bucket := os.Getenv("TALAQI_IMAGE_BUCKET")
	if bucket == "" {
		bucket = "report-images"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Bucket:    bucket,
	}
}

func loadNotifyConfig() NotifyConfig {
	var chatID int64
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		chatID = id
	}

	return NotifyConfig{
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:   chatID,
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
	}
}

func loadEmbedderConfig() (EmbedderConfig, error) {
	provider := os.Getenv("EMBEDDER_PROVIDER")

	var apiKey string
	if provider == "openai" {
		var err error
		apiKey, err = getAPIKey(provider, "EMBEDDER")
		if err != nil {
			return EmbedderConfig{}, err
		}
	}

	return EmbedderConfig{
		Provider: provider,
		BaseURL:  os.Getenv("EMBEDDER_URL"),
		Model:    os.Getenv("EMBEDDER_MODEL"),
		APIKey:   apiKey,
	}, nil
}

// loadLLMConfig returns an empty provider when LLM_PROVIDER is unset; the
// assistant is then unavailable but matching still runs.
func loadLLMConfig() (LLMConfig, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		return LLMConfig{}, nil
	}

	apiKey, err := getAPIKey(provider, "LLM")
	if err != nil {
		return LLMConfig{}, err
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   apiKey,
		Model:    os.Getenv("LLM_MODEL"),
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}, nil
}

func getAPIKey(provider, prefix string) (string, error) {
	envKey := os.Getenv(prefix + "_API_KEY")
	if envKey != "" {
		return envKey, nil
	}

	switch provider {
	case "claude":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return key, nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		return key, nil
	case "ollama":
		// Ollama doesn't need an API key
		return "ollama", nil
	default:
		return "", fmt.Errorf("%s_API_KEY not set for provider %s", prefix, provider)
	}
}
