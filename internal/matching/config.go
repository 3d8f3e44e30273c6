package matching

import (
	"fmt"
	"time"
)

// Weights sets how much each signal counts toward the aggregate. They are
// normalised to sum to 1 when the engine is built.
type Weights struct {
	Text     float64
	Image    float64
	Location float64
	Date     float64
}

func (w Weights) sum() float64 {
	return w.Text + w.Image + w.Location + w.Date
}

func (w Weights) normalized() Weights {
	total := w.sum()
	return Weights{
		Text:     w.Text / total,
		Image:    w.Image / total,
		Location: w.Location / total,
		Date:     w.Date / total,
	}
}

type Config struct {
	Weights   Weights
	Threshold float64

	// location: coordinates decay linearly to 0 at MaxDistanceKm
	MaxDistanceKm    float64
	GovernorateScore float64

	// date: found dates up to DateGrace before the loss still count as same-day
	DateWindowDays float64
	DateGrace      time.Duration

	StaleAfter      time.Duration
	ProviderTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Text:     0.45,
			Image:    0.15,
			Location: 0.25,
			Date:     0.15,
		},
		Threshold:        0.6,
		MaxDistanceKm:    50,
		GovernorateScore: 0.5,
		DateWindowDays:   30,
		DateGrace:        24 * time.Hour,
		StaleAfter:       30 * 24 * time.Hour,
		ProviderTimeout:  30 * time.Second,
	}
}

func (c Config) validate() error {
	w := c.Weights
	if w.Text < 0 || w.Image < 0 || w.Location < 0 || w.Date < 0 {
		return fmt.Errorf("weights must not be negative: %+v", w)
	}
	if w.sum() == 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %g", c.Threshold)
	}
	if c.MaxDistanceKm <= 0 || c.DateWindowDays <= 0 {
		return fmt.Errorf("distance and date windows must be positive")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale window must be positive, got %v", c.StaleAfter)
	}
	return nil
}
