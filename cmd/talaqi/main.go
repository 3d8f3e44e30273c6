package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/talaqi/talaqi/internal/assistant"
	"github.com/talaqi/talaqi/internal/config"
	"github.com/talaqi/talaqi/internal/embedder"
	"github.com/talaqi/talaqi/internal/embeddings"
	"github.com/talaqi/talaqi/internal/images"
	"github.com/talaqi/talaqi/internal/llm"
	"github.com/talaqi/talaqi/internal/logger"
	"github.com/talaqi/talaqi/internal/matching"
	"github.com/talaqi/talaqi/internal/notify"
	"github.com/talaqi/talaqi/internal/schedule"
	"github.com/talaqi/talaqi/internal/search"
	"github.com/talaqi/talaqi/internal/store"
)

const (
	jobReevaluate = "reevaluate-matches"
	jobRefresh    = "refresh-embeddings"
)

var dbPath string

func init() {
	godotenv.Load()
}

var rootCmd = &cobra.Command{
	Use:   "talaqi",
	Short: "Lost and found matching and assistant service",
	Long: `Talaqi scores lost reports against found reports, promotes strong
candidates to matches and answers questions from stored reports.

Commands:
  serve     - run the scheduled re-evaluation and embedding refresh
  ask       - answer a question from retrieved snippets
  refresh   - re-embed every report and knowledge entry once
  evaluate  - score one report, or re-evaluate all open candidates
  jobs      - show scheduled job history`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: TALAQI_DB or talaqi.db)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(jobsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	store      *store.Store
	history    *schedule.Store
	maintainer *embeddings.Maintainer
	search     *search.Engine
	matcher    *matching.Engine
	assistant  *assistant.Assistant
	clock      schedule.Clock
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}

	if version, err := db.VecVersion(ctx); err == nil {
		logger.Debug("store opened", "path", cfg.DBPath, "sqlite_vec", version)
	}

	history, err := schedule.NewStore(db.DB())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("job history: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider: cfg.Embedder.Provider,
		BaseURL:  cfg.Embedder.BaseURL,
		Model:    cfg.Embedder.Model,
		APIKey:   cfg.Embedder.APIKey,
		Timeout:  cfg.ProviderTimeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if emb == nil {
		logger.Warn("no embedding provider configured, set EMBEDDER_PROVIDER")
	}

	var completion llm.LLM
	if cfg.LLM.Provider != "" {
		completion, err = llm.New(llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			BaseURL:  cfg.LLM.BaseURL,
			Timeout:  cfg.ProviderTimeout,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("llm: %w", err)
		}
	}

	clock := schedule.SystemClock{}

	matchOpts := []matching.Option{matching.WithClock(clock.Now)}

	if cfg.Storage.Enabled {
		imgStore, err := images.NewClient(images.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			logger.Warn("image features disabled", "error", err)
		} else if err := imgStore.Init(ctx); err != nil {
			logger.Warn("image features disabled", "error", err)
		} else {
			matchOpts = append(matchOpts, matching.WithImages(imgStore))
			logger.Info("image features enabled", "bucket", cfg.Storage.Bucket)
		}
	}

	notifier, err := notify.New(notify.Config{
		TelegramToken:    cfg.Notify.TelegramToken,
		TelegramChatID:   cfg.Notify.TelegramChatID,
		DiscordToken:     cfg.Notify.DiscordToken,
		DiscordChannelID: cfg.Notify.DiscordChannelID,
	})
	if err != nil {
		logger.Warn("match notifications disabled", "error", err)
	} else if notifier != nil {
		matchOpts = append(matchOpts, matching.WithNotifier(notifier))
	}

	matcher, err := matching.New(db, matchingConfig(cfg), matchOpts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	maintainer := embeddings.New(db, emb, embeddings.WithTimeout(cfg.ProviderTimeout))
	engine := search.New(db)

	return &app{
		cfg:        cfg,
		store:      db,
		history:    history,
		maintainer: maintainer,
		search:     engine,
		matcher:    matcher,
		assistant: assistant.New(maintainer, engine, completion,
			assistant.WithDefaultTopK(cfg.Assistant.DefaultTopK),
			assistant.WithTimeout(cfg.ProviderTimeout)),
		clock: clock,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func matchingConfig(cfg *config.Config) matching.Config {
	s := cfg.Scoring

	return matching.Config{
		Weights: matching.Weights{
			Text:     s.Weights.Text,
			Image:    s.Weights.Image,
			Location: s.Weights.Location,
			Date:     s.Weights.Date,
		},
		Threshold:        s.Threshold,
		MaxDistanceKm:    s.MaxDistanceKm,
		GovernorateScore: s.GovernorateScore,
		DateWindowDays:   s.DateWindowDays,
		DateGrace:        time.Duration(s.DateGraceDays * float64(24*time.Hour)),
		StaleAfter:       time.Duration(s.StaleAfterDays) * 24 * time.Hour,
		ProviderTimeout:  cfg.ProviderTimeout,
	}
}
