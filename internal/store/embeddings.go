package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const itemEmbeddingSelect = `
SELECT id, item_id, item_type, embedding, text, category, city, governorate, updated_at
FROM item_embeddings`

const knowledgeEmbeddingSelect = `
SELECT id, knowledge_id, category, text, embedding, updated_at
FROM knowledge_embeddings`

// FindItemEmbedding returns the row for an item, or nil when there is none.
func (s *Store) FindItemEmbedding(ctx context.Context, itemID string, t ItemType) (*ItemEmbedding, error) {
	return findItemEmbedding(ctx, s.db, itemID, t)
}

func findItemEmbedding(ctx context.Context, q querier, itemID string, t ItemType) (*ItemEmbedding, error) {
	rows, err := q.QueryContext(ctx, itemEmbeddingSelect+` WHERE item_id = ? AND item_type = ?`,
		itemID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	embeddings, err := scanItemEmbeddings(rows)
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, nil
	}

	return embeddings[0], nil
}

// UpsertItemEmbedding writes the single live row for (ItemID, ItemType). An
// existing row keeps its id; everything else is overwritten.
func (s *Store) UpsertItemEmbedding(ctx context.Context, e *ItemEmbedding) error {
	blob, err := serializeEmbedding(e.Vector)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := findItemEmbedding(ctx, tx, e.ItemID, e.ItemType)
	if err != nil {
		return err
	}

	if existing != nil {
		e.ID = existing.ID
		_, err = tx.ExecContext(ctx, `
			UPDATE item_embeddings
			SET embedding = ?, text = ?, category = ?, city = ?, governorate = ?, updated_at = ?
			WHERE id = ?`,
			blob, e.Text, e.Category, e.City, e.Governorate, formatTime(e.UpdatedAt), e.ID)
	} else {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO item_embeddings (id, item_id, item_type, embedding, text, category, city,
			    governorate, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ItemID, string(e.ItemType), blob, e.Text, e.Category, e.City, e.Governorate,
			formatTime(e.UpdatedAt))
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteItemEmbedding removes the row for an item and reports whether one existed.
func (s *Store) DeleteItemEmbedding(ctx context.Context, itemID string, t ItemType) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM item_embeddings WHERE item_id = ? AND item_type = ?`,
		itemID, string(t))
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	return n > 0, err
}

// QueryItemEmbeddings returns item embeddings matching every non-empty filter
// field, in insertion order.
func (s *Store) QueryItemEmbeddings(ctx context.Context, f EmbeddingFilter) ([]*ItemEmbedding, error) {
	var conditions []string
	var args []any

	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}
	if f.City != "" {
		conditions = append(conditions, "city = ?")
		args = append(args, f.City)
	}
	if f.Governorate != "" {
		conditions = append(conditions, "governorate = ?")
		args = append(args, f.Governorate)
	}
	if f.ItemType != "" {
		conditions = append(conditions, "item_type = ?")
		args = append(args, string(f.ItemType))
	}

	query := itemEmbeddingSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanItemEmbeddings(rows)
}

// UpsertKnowledgeEmbedding writes the single live row for e.KnowledgeID.
func (s *Store) UpsertKnowledgeEmbedding(ctx context.Context, e *KnowledgeEmbedding) error {
	blob, err := serializeEmbedding(e.Vector)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, knowledgeEmbeddingSelect+` WHERE knowledge_id = ?`, e.KnowledgeID)
	if err != nil {
		return err
	}
	existing, err := scanKnowledgeEmbeddings(rows)
	rows.Close()
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		e.ID = existing[0].ID
		_, err = tx.ExecContext(ctx, `
			UPDATE knowledge_embeddings
			SET category = ?, text = ?, embedding = ?, updated_at = ?
			WHERE id = ?`,
			e.Category, e.Text, blob, formatTime(e.UpdatedAt), e.ID)
	} else {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO knowledge_embeddings (id, knowledge_id, category, text, embedding, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.KnowledgeID, e.Category, e.Text, blob, formatTime(e.UpdatedAt))
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListKnowledgeEmbeddings(ctx context.Context) ([]*KnowledgeEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, knowledgeEmbeddingSelect+` ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKnowledgeEmbeddings(rows)
}

func scanItemEmbeddings(rows *sql.Rows) ([]*ItemEmbedding, error) {
	var embeddings []*ItemEmbedding

	for rows.Next() {
		var e ItemEmbedding
		var itemType, updatedAt string
		var blob []byte

		err := rows.Scan(&e.ID, &e.ItemID, &itemType, &blob, &e.Text, &e.Category, &e.City,
			&e.Governorate, &updatedAt)
		if err != nil {
			return nil, err
		}

		e.Vector, err = deserializeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("item embedding %s: %w", e.ID, err)
		}

		e.ItemType = ItemType(itemType)
		e.UpdatedAt = parseTime(updatedAt)
		embeddings = append(embeddings, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return embeddings, nil
}

func scanKnowledgeEmbeddings(rows *sql.Rows) ([]*KnowledgeEmbedding, error) {
	var embeddings []*KnowledgeEmbedding

	for rows.Next() {
		var e KnowledgeEmbedding
		var updatedAt string
		var blob []byte

		if err := rows.Scan(&e.ID, &e.KnowledgeID, &e.Category, &e.Text, &blob, &updatedAt); err != nil {
			return nil, err
		}

		var err error
		e.Vector, err = deserializeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("knowledge embedding %s: %w", e.ID, err)
		}

		e.UpdatedAt = parseTime(updatedAt)
		embeddings = append(embeddings, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return embeddings, nil
}
