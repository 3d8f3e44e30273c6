// Package embeddings keeps item and knowledge vectors in step with their source rows.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talaqi/talaqi/internal/embedder"
	"github.com/talaqi/talaqi/internal/errs"
	"github.com/talaqi/talaqi/internal/keylock"
	"github.com/talaqi/talaqi/internal/logger"
	"github.com/talaqi/talaqi/internal/store"
	"github.com/talaqi/talaqi/internal/textnorm"
)

// Store is the slice of the persistent store the maintainer needs.
type Store interface {
	ListReports(ctx context.Context, t store.ItemType, d store.Deleted, statuses ...store.ReportStatus) ([]*store.Report, error)
	ListKnowledge(ctx context.Context, d store.Deleted) ([]*store.KnowledgeEntry, error)
	UpsertItemEmbedding(ctx context.Context, e *store.ItemEmbedding) error
	UpsertKnowledgeEmbedding(ctx context.Context, e *store.KnowledgeEmbedding) error
	DeleteItemEmbedding(ctx context.Context, itemID string, t store.ItemType) (bool, error)
}

type Maintainer struct {
	store    Store
	provider embedder.Embedder
	timeout  time.Duration
	now      func() time.Time
	locks    *keylock.Map
}

type Option func(*Maintainer)

// WithTimeout bounds every provider call. Expiry surfaces as a ProviderError.
func WithTimeout(d time.Duration) Option {
	return func(m *Maintainer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock overrides the timestamp source for written rows.
func WithClock(now func() time.Time) Option {
	return func(m *Maintainer) {
		m.now = now
	}
}

func New(s Store, provider embedder.Embedder, opts ...Option) *Maintainer {
	m := &Maintainer{
		store:    s,
		provider: provider,
		timeout:  30 * time.Second,
		now:      time.Now,
		locks:    keylock.New(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RefreshSummary counts what a bulk refresh touched.
type RefreshSummary struct {
	Lost      int
	Found     int
	Knowledge int
	Failed    int
}

// Embed normalizes text and asks the provider for its vector. The vector is
// returned as the provider produced it.
func (m *Maintainer) Embed(ctx context.Context, text string) ([]float32, error) {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return nil, errs.Validation("text", "nothing to embed")
	}

	if m.provider == nil {
		return nil, errs.Provider("embedding", "embed", errors.New("no embedding provider configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	vector, err := m.provider.Embed(callCtx, normalized)
	if err != nil {
		return nil, errs.Provider("embedding", "embed", err)
	}

	if len(vector) == 0 {
		return nil, errs.Provider("embedding", "embed", embedder.ErrEmptyEmbedding)
	}

	return vector, nil
}

// UpsertItemEmbedding embeds a report's composite text and writes the single
// row for (report id, report type). Calling it again with unchanged data
// leaves the same row with only its timestamp moved.
func (m *Maintainer) UpsertItemEmbedding(ctx context.Context, r *store.Report) error {
	if !r.Type.Valid() {
		return errs.Validation("item type", fmt.Sprintf("%q is not a report type", r.Type))
	}

	defer m.locks.Lock(itemKey(r.ID, r.Type))()

	text := textnorm.BuildItemText(r.Title, r.Description, r.Category, r.Location.City, r.Location.Governorate)

	vector, err := m.Embed(ctx, text)
	if err != nil {
		return err
	}

	row := &store.ItemEmbedding{
		ItemID:      r.ID,
		ItemType:    r.Type,
		Vector:      vector,
		Text:        text,
		Category:    textnorm.Normalize(r.Category),
		City:        textnorm.Normalize(r.Location.City),
		Governorate: textnorm.Normalize(r.Location.Governorate),
		UpdatedAt:   m.now(),
	}

	if err := m.store.UpsertItemEmbedding(ctx, row); err != nil {
		return fmt.Errorf("save item embedding %s: %w", r.ID, err)
	}

	return nil
}

// UpsertKnowledgeEmbedding embeds a knowledge entry's title and content.
func (m *Maintainer) UpsertKnowledgeEmbedding(ctx context.Context, k *store.KnowledgeEntry) error {
	defer m.locks.Lock(itemKey(k.ID, store.ItemKnowledge))()

	text := textnorm.Normalize(strings.Join([]string{k.Title, k.Content}, "\n"))

	vector, err := m.Embed(ctx, text)
	if err != nil {
		return err
	}

	row := &store.KnowledgeEmbedding{
		KnowledgeID: k.ID,
		Category:    textnorm.Normalize(k.Category),
		Text:        text,
		Vector:      vector,
		UpdatedAt:   m.now(),
	}

	if err := m.store.UpsertKnowledgeEmbedding(ctx, row); err != nil {
		return fmt.Errorf("save knowledge embedding %s: %w", k.ID, err)
	}

	return nil
}

// RemoveItemEmbedding drops the vector for an item if one is stored.
func (m *Maintainer) RemoveItemEmbedding(ctx context.Context, itemID string, t store.ItemType) error {
	defer m.locks.Lock(itemKey(itemID, t))()

	removed, err := m.store.DeleteItemEmbedding(ctx, itemID, t)
	if err != nil {
		return fmt.Errorf("delete item embedding %s: %w", itemID, err)
	}

	if removed {
		logger.Debug("item embedding removed", "item_id", itemID, "item_type", t)
	}

	return nil
}

// BulkRefresh re-embeds every non-deleted lost report, found report and
// knowledge entry, in that order. A failing entity is logged and skipped.
// Cancellation is checked before each entity; a cancelled run returns the
// counts so far with ctx.Err(). Rows already written stay written.
func (m *Maintainer) BulkRefresh(ctx context.Context) (RefreshSummary, error) {
	var summary RefreshSummary
	var listErrs []error

	for _, t := range []store.ItemType{store.ItemLost, store.ItemFound} {
		reports, err := m.store.ListReports(ctx, t, store.ExcludeDeleted)
		if err != nil {
			logger.Error("failed to list reports for refresh", "item_type", t, "error", err)
			listErrs = append(listErrs, fmt.Errorf("list %s reports: %w", strings.ToLower(string(t)), err))
			continue
		}

		for _, r := range reports {
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			if err := m.UpsertItemEmbedding(ctx, r); err != nil {
				summary.Failed++
				logger.Warn("item embedding refresh failed", "item_id", r.ID, "item_type", t, "error", err)
				continue
			}

			if t == store.ItemLost {
				summary.Lost++
			} else {
				summary.Found++
			}
		}
	}

	entries, err := m.store.ListKnowledge(ctx, store.ExcludeDeleted)
	if err != nil {
		logger.Error("failed to list knowledge for refresh", "error", err)
		listErrs = append(listErrs, fmt.Errorf("list knowledge: %w", err))
	}

	for _, k := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := m.UpsertKnowledgeEmbedding(ctx, k); err != nil {
			summary.Failed++
			logger.Warn("knowledge embedding refresh failed", "knowledge_id", k.ID, "error", err)
			continue
		}

		summary.Knowledge++
	}

	logger.Info("embedding refresh finished",
		"lost", summary.Lost, "found", summary.Found, "knowledge", summary.Knowledge, "failed", summary.Failed)

	return summary, errors.Join(listErrs...)
}

// itemKey names the embedding row a write touches, so writes to the same row
// run one at a time while other rows proceed.
func itemKey(id string, t store.ItemType) string {
	return string(t) + ":" + id
}
