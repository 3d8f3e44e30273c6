// Package search ranks stored item and knowledge embeddings against a query vector.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/talaqi/talaqi/internal/errs"
	"github.com/talaqi/talaqi/internal/similarity"
	"github.com/talaqi/talaqi/internal/store"
	"github.com/talaqi/talaqi/internal/textnorm"
)

type Store interface {
	QueryItemEmbeddings(ctx context.Context, f store.EmbeddingFilter) ([]*store.ItemEmbedding, error)
	ListKnowledgeEmbeddings(ctx context.Context) ([]*store.KnowledgeEmbedding, error)
}

// Filters narrow the item half of the pool. Empty fields do not filter.
// Knowledge rows are never filtered by location or category.
type Filters struct {
	Category    string
	City        string
	Governorate string
	ItemType    store.ItemType
}

type Result struct {
	ItemID   string         `json:"itemId"`
	ItemType store.ItemType `json:"itemType"`
	Snippet  string         `json:"snippet"`
	Score    float64        `json:"score"`
}

type Engine struct {
	store Store
}

func New(s Store) *Engine {
	return &Engine{store: s}
}

// Search scans every candidate row, scores it by cosine against query and
// returns the best topK. Equal scores keep pool order: items in insertion
// order, then knowledge entries. topK <= 0 yields an empty list.
func (e *Engine) Search(ctx context.Context, query []float32, topK int, f Filters) ([]Result, error) {
	if f.ItemType != "" && !f.ItemType.Valid() && f.ItemType != store.ItemKnowledge {
		return nil, errs.Validation("item type", fmt.Sprintf("unknown filter %q", f.ItemType))
	}

	if topK <= 0 {
		return []Result{}, nil
	}

	var pool []Result

	if f.ItemType != store.ItemKnowledge {
		items, err := e.store.QueryItemEmbeddings(ctx, store.EmbeddingFilter{
			Category:    textnorm.Normalize(f.Category),
			City:        textnorm.Normalize(f.City),
			Governorate: textnorm.Normalize(f.Governorate),
			ItemType:    f.ItemType,
		})
		if err != nil {
			return nil, fmt.Errorf("query item embeddings: %w", err)
		}

		for _, row := range items {
			pool = append(pool, Result{
				ItemID:   row.ItemID,
				ItemType: row.ItemType,
				Snippet:  row.Text,
				Score:    similarity.Cosine(query, row.Vector),
			})
		}
	}

	knowledge, err := e.store.ListKnowledgeEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list knowledge embeddings: %w", err)
	}

	for _, row := range knowledge {
		pool = append(pool, Result{
			ItemID:   row.KnowledgeID,
			ItemType: store.ItemKnowledge,
			Snippet:  row.Text,
			Score:    similarity.Cosine(query, row.Vector),
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Score > pool[j].Score
	})

	if len(pool) > topK {
		pool = pool[:topK]
	}

	if pool == nil {
		return []Result{}, nil
	}

	return pool, nil
}
