// Package matching scores lost reports against found reports and promotes
// strong candidates to matches.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/talaqi/talaqi/internal/errs"
	"github.com/talaqi/talaqi/internal/keylock"
	"github.com/talaqi/talaqi/internal/logger"
	"github.com/talaqi/talaqi/internal/notify"
	"github.com/talaqi/talaqi/internal/similarity"
	"github.com/talaqi/talaqi/internal/store"
	"github.com/talaqi/talaqi/internal/textnorm"
)

type Store interface {
	GetReport(ctx context.Context, t store.ItemType, id string, d store.Deleted) (*store.Report, error)
	ListReports(ctx context.Context, t store.ItemType, d store.Deleted, statuses ...store.ReportStatus) ([]*store.Report, error)
	FindItemEmbedding(ctx context.Context, itemID string, t store.ItemType) (*store.ItemEmbedding, error)

	UpsertCandidate(ctx context.Context, c *store.MatchCandidate) error
	SetCandidatePromoted(ctx context.Context, id string, promoted bool) error
	ListCandidates(ctx context.Context, f store.CandidateFilter) ([]*store.MatchCandidate, error)
	DeleteCandidate(ctx context.Context, id string) error

	FindMatch(ctx context.Context, lostID, foundID string) (*store.Match, error)
	CreateMatch(ctx context.Context, m *store.Match) (bool, error)
	MarkMatchNotified(ctx context.Context, id string, lostOwner, foundOwner bool) error
}

// ImageFeatures supplies the precomputed feature vector for a report photo.
type ImageFeatures interface {
	Features(ctx context.Context, imageRef string) ([]float32, error)
}

// Scores holds the four sub-scores and their weighted aggregate, all in [0, 1].
type Scores struct {
	Text      float64
	Image     float64
	Location  float64
	Date      float64
	Aggregate float64
}

// Summary counts what one evaluation or re-evaluation pass did.
type Summary struct {
	Evaluated int
	Promoted  int
	Cleaned   int
	Failed    int
}

func (s *Summary) add(o Summary) {
	s.Evaluated += o.Evaluated
	s.Promoted += o.Promoted
	s.Cleaned += o.Cleaned
	s.Failed += o.Failed
}

type Engine struct {
	store    Store
	images   ImageFeatures
	notifier notify.Notifier
	cfg      Config
	weights  Weights
	now      func() time.Time
	pairs    *keylock.Map
}

type Option func(*Engine)

func WithImages(f ImageFeatures) Option {
	return func(e *Engine) {
		e.images = f
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithClock sets the time source used for candidate creation and staleness.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(s Store, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("matching config: %w", err)
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultConfig().ProviderTimeout
	}

	e := &Engine{
		store:   s,
		cfg:     cfg,
		weights: cfg.Weights.normalized(),
		now:     time.Now,
		pairs:   keylock.New(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// ScorePair computes every signal for one lost/found pair and explains each
// contribution in the returned reasons.
func (e *Engine) ScorePair(ctx context.Context, lost, found *store.Report) (Scores, store.Reasons, error) {
	if lost.Type != store.ItemLost || found.Type != store.ItemFound {
		return Scores{}, nil, errs.Validation("pair", fmt.Sprintf("need a lost and a found report, got %s and %s", lost.Type, found.Type))
	}

	lostEmb, err := e.store.FindItemEmbedding(ctx, lost.ID, store.ItemLost)
	if err != nil {
		return Scores{}, nil, fmt.Errorf("load lost embedding: %w", err)
	}
	foundEmb, err := e.store.FindItemEmbedding(ctx, found.ID, store.ItemFound)
	if err != nil {
		return Scores{}, nil, fmt.Errorf("load found embedding: %w", err)
	}

	var lostVec, foundVec []float32
	if lostEmb != nil {
		lostVec = lostEmb.Vector
	}
	if foundEmb != nil {
		foundVec = foundEmb.Vector
	}

	var s Scores
	var textDetail, imageDetail, locationDetail, dateDetail string

	s.Text, textDetail = textScore(lost, found, lostVec, foundVec)
	s.Image, imageDetail = e.imageScore(ctx, lost, found)
	s.Location, locationDetail = e.locationScore(lost.Location, found.Location)
	s.Date, dateDetail = e.dateScore(lost.OccurredAt, found.OccurredAt)

	reasons := store.Reasons{
		store.SignalText:     contribution(s.Text, e.weights.Text, textDetail),
		store.SignalImage:    contribution(s.Image, e.weights.Image, imageDetail),
		store.SignalLocation: contribution(s.Location, e.weights.Location, locationDetail),
		store.SignalDate:     contribution(s.Date, e.weights.Date, dateDetail),
	}

	for _, sig := range []store.Signal{store.SignalText, store.SignalImage, store.SignalLocation, store.SignalDate} {
		s.Aggregate += reasons[sig].Weighted
	}
	s.Aggregate = similarity.Clamp01(s.Aggregate)

	return s, reasons, nil
}

func contribution(score, weight float64, detail string) store.Contribution {
	return store.Contribution{
		Score:    score,
		Weight:   weight,
		Weighted: score * weight,
		Detail:   detail,
	}
}

type pairKey struct {
	lost, found string
}

// EvaluateReport scores an active report against every plausible counterpart,
// writes the candidate for each pair and promotes the ones that qualify.
// Errors for one pair are logged and counted; cancellation stops the loop
// between pairs.
func (e *Engine) EvaluateReport(ctx context.Context, r *store.Report) (Summary, error) {
	return e.evaluateReport(ctx, r, make(map[pairKey]struct{}))
}

func (e *Engine) evaluateReport(ctx context.Context, r *store.Report, seen map[pairKey]struct{}) (Summary, error) {
	var summary Summary

	if !r.Type.Valid() {
		return summary, errs.Validation("item type", fmt.Sprintf("%q is not a report type", r.Type))
	}
	if r.Deleted || r.Status != store.StatusActive {
		logger.Debug("skipping inactive report", "item_id", r.ID, "item_type", r.Type, "status", r.Status)
		return summary, nil
	}

	counterparts, err := e.counterparts(ctx, r)
	if err != nil {
		return summary, err
	}

	for _, other := range counterparts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		lost, found := r, other
		if r.Type == store.ItemFound {
			lost, found = other, r
		}

		key := pairKey{lost.ID, found.ID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		promoted, err := e.evaluatePair(ctx, lost, found)
		if err != nil {
			summary.Failed++
			logger.Warn("pair evaluation failed", "lost_id", lost.ID, "found_id", found.ID, "error", err)
			continue
		}

		summary.Evaluated++
		if promoted {
			summary.Promoted++
		}
	}

	return summary, nil
}

// counterparts lists the active, non-deleted reports of the opposite type that
// share r's category, or its city or governorate when either side has no
// category.
func (e *Engine) counterparts(ctx context.Context, r *store.Report) ([]*store.Report, error) {
	other := store.ItemFound
	if r.Type == store.ItemFound {
		other = store.ItemLost
	}

	reports, err := e.store.ListReports(ctx, other, store.ExcludeDeleted, store.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list %s reports: %w", other, err)
	}

	category := textnorm.Normalize(r.Category)
	city := textnorm.Normalize(r.Location.City)
	governorate := textnorm.Normalize(r.Location.Governorate)

	var out []*store.Report
	for _, o := range reports {
		otherCategory := textnorm.Normalize(o.Category)

		if category != "" && otherCategory != "" {
			if category == otherCategory {
				out = append(out, o)
			}
			continue
		}

		if city != "" && city == textnorm.Normalize(o.Location.City) {
			out = append(out, o)
			continue
		}
		if governorate != "" && governorate == textnorm.Normalize(o.Location.Governorate) {
			out = append(out, o)
		}
	}

	return out, nil
}

func (e *Engine) evaluatePair(ctx context.Context, lost, found *store.Report) (bool, error) {
	defer e.pairs.Lock(lost.ID + "|" + found.ID)()

	scores, reasons, err := e.ScorePair(ctx, lost, found)
	if err != nil {
		return false, err
	}

	c := &store.MatchCandidate{
		LostItemID:     lost.ID,
		FoundItemID:    found.ID,
		TextScore:      scores.Text,
		ImageScore:     scores.Image,
		LocationScore:  scores.Location,
		DateScore:      scores.Date,
		AggregateScore: scores.Aggregate,
		Reasons:        reasons,
		CreatedAt:      e.now(),
	}

	if err := e.store.UpsertCandidate(ctx, c); err != nil {
		return false, fmt.Errorf("save candidate: %w", err)
	}

	logger.Debug("candidate scored", "lost_id", lost.ID, "found_id", found.ID,
		"aggregate", scores.Aggregate, "promoted", c.Promoted)

	return e.Promote(ctx, c)
}

// Promote turns a candidate into a pending match when its aggregate reaches
// the threshold. It reports whether a new match was created. A pair that
// already has a match only gets its candidate flagged, so running it twice
// never yields a second match.
func (e *Engine) Promote(ctx context.Context, c *store.MatchCandidate) (bool, error) {
	if c.Promoted || c.AggregateScore < e.cfg.Threshold {
		return false, nil
	}

	existing, err := e.store.FindMatch(ctx, c.LostItemID, c.FoundItemID)
	if err != nil {
		return false, fmt.Errorf("find match: %w", err)
	}

	created := false
	var m *store.Match

	if existing == nil {
		m = &store.Match{
			LostItemID:      c.LostItemID,
			FoundItemID:     c.FoundItemID,
			ConfidenceScore: c.AggregateScore,
			Status:          store.MatchPending,
			CreatedAt:       e.now(),
		}

		created, err = e.store.CreateMatch(ctx, m)
		if err != nil {
			return false, fmt.Errorf("create match: %w", err)
		}
	}

	if err := e.store.SetCandidatePromoted(ctx, c.ID, true); err != nil {
		return false, fmt.Errorf("mark candidate promoted: %w", err)
	}
	c.Promoted = true

	if created {
		logger.Info("match created", "match_id", m.ID, "lost_id", c.LostItemID, "found_id", c.FoundItemID,
			"score", c.AggregateScore)
		e.notify(ctx, m)
	}

	return created, nil
}

func (e *Engine) notify(ctx context.Context, m *store.Match) {
	if e.notifier == nil {
		return
	}

	event := notify.Event{
		MatchID:     m.ID,
		LostItemID:  m.LostItemID,
		FoundItemID: m.FoundItemID,
		Score:       m.ConfidenceScore,
	}

	if lost, err := e.store.GetReport(ctx, store.ItemLost, m.LostItemID, store.IncludeDeleted); err == nil {
		event.LostOwnerID = lost.OwnerID
		event.LostTitle = lost.Title
		event.Category = lost.Category
	}
	if found, err := e.store.GetReport(ctx, store.ItemFound, m.FoundItemID, store.IncludeDeleted); err == nil {
		event.FoundOwnerID = found.OwnerID
		event.FoundTitle = found.Title
		if event.Category == "" {
			event.Category = found.Category
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	if err := e.notifier.MatchPromoted(callCtx, event); err != nil {
		logger.Warn("match notification failed", "match_id", m.ID, "error", err)
		return
	}

	if err := e.store.MarkMatchNotified(ctx, m.ID, true, true); err != nil {
		logger.Warn("failed to record notification", "match_id", m.ID, "error", err)
	}
}

// Reevaluate re-runs matching for every item that still has an unpromoted
// candidate, scoring each pair at most once, then sweeps stale candidates.
func (e *Engine) Reevaluate(ctx context.Context) (Summary, error) {
	var summary Summary

	candidates, err := e.store.ListCandidates(ctx, store.CandidateFilter{OnlyUnpromoted: true})
	if err != nil {
		return summary, fmt.Errorf("list candidates: %w", err)
	}

	var lostIDs, foundIDs []string
	seenLost := make(map[string]bool)
	seenFound := make(map[string]bool)
	for _, c := range candidates {
		if !seenLost[c.LostItemID] {
			seenLost[c.LostItemID] = true
			lostIDs = append(lostIDs, c.LostItemID)
		}
		if !seenFound[c.FoundItemID] {
			seenFound[c.FoundItemID] = true
			foundIDs = append(foundIDs, c.FoundItemID)
		}
	}

	pairs := make(map[pairKey]struct{})

	items := []struct {
		t   store.ItemType
		ids []string
	}{
		{store.ItemLost, lostIDs},
		{store.ItemFound, foundIDs},
	}

	for _, group := range items {
		for _, id := range group.ids {
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			r, err := e.store.GetReport(ctx, group.t, id, store.ExcludeDeleted)
			if errs.IsNotFound(err) {
				logger.Debug("candidate item gone, leaving it to the sweep", "item_id", id, "item_type", group.t)
				continue
			}
			if err != nil {
				summary.Failed++
				logger.Warn("failed to load report for re-evaluation", "item_id", id, "item_type", group.t, "error", err)
				continue
			}

			s, err := e.evaluateReport(ctx, r, pairs)
			summary.add(s)
			if err != nil {
				if ctx.Err() != nil {
					return summary, err
				}
				summary.Failed++
				logger.Warn("report re-evaluation failed", "item_id", id, "item_type", group.t, "error", err)
			}
		}
	}

	cleaned, err := e.Sweep(ctx)
	summary.Cleaned = cleaned
	if err != nil {
		return summary, err
	}

	logger.Info("re-evaluation finished", "evaluated", summary.Evaluated, "promoted", summary.Promoted,
		"cleaned", summary.Cleaned, "failed", summary.Failed)

	return summary, nil
}

// Sweep permanently deletes candidates that never promoted and were created
// more than StaleAfter before now. It returns how many were removed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	candidates, err := e.store.ListCandidates(ctx, store.CandidateFilter{Deleted: store.IncludeDeleted})
	if err != nil {
		return 0, fmt.Errorf("list candidates: %w", err)
	}

	cutoff := e.now().Add(-e.cfg.StaleAfter)
	cleaned := 0

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return cleaned, err
		}

		if c.Promoted || !c.CreatedAt.Before(cutoff) {
			continue
		}

		if err := e.store.DeleteCandidate(ctx, c.ID); err != nil {
			logger.Warn("failed to delete stale candidate", "candidate_id", c.ID, "error", err)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		logger.Info("stale candidates removed", "count", cleaned)
	}

	return cleaned, nil
}
