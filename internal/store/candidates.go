package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const candidateSelect = `
SELECT id, lost_item_id, found_item_id, text_score, image_score, location_score, date_score,
       aggregate_score, reasons, promoted, created_at, deleted_at
FROM match_candidates`

// FindCandidate returns the live candidate for a pair, or nil when there is none.
func (s *Store) FindCandidate(ctx context.Context, lostID, foundID string) (*MatchCandidate, error) {
	return findCandidate(ctx, s.db, lostID, foundID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func findCandidate(ctx context.Context, q querier, lostID, foundID string) (*MatchCandidate, error) {
	rows, err := q.QueryContext(ctx, candidateSelect+`
		WHERE lost_item_id = ? AND found_item_id = ? AND deleted_at IS NULL`, lostID, foundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	return candidates[0], nil
}

// UpsertCandidate creates the live candidate for c's pair or overwrites its
// scores and reasons. On update the stored id, creation time and promoted
// flag are kept and copied back into c; only SetCandidatePromoted changes the
// flag of an existing row.
func (s *Store) UpsertCandidate(ctx context.Context, c *MatchCandidate) error {
	reasons, err := c.Reasons.encode()
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := findCandidate(ctx, tx, c.LostItemID, c.FoundItemID)
	if err != nil {
		return err
	}

	if existing != nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		c.Promoted = existing.Promoted

		_, err = tx.ExecContext(ctx, `
			UPDATE match_candidates
			SET text_score = ?, image_score = ?, location_score = ?, date_score = ?,
			    aggregate_score = ?, reasons = ?
			WHERE id = ?`,
			c.TextScore, c.ImageScore, c.LocationScore, c.DateScore,
			c.AggregateScore, reasons, c.ID)
		if err != nil {
			return err
		}

		return tx.Commit()
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO match_candidates (id, lost_item_id, found_item_id, text_score, image_score,
		    location_score, date_score, aggregate_score, reasons, promoted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LostItemID, c.FoundItemID, c.TextScore, c.ImageScore,
		c.LocationScore, c.DateScore, c.AggregateScore, reasons, boolToInt(c.Promoted),
		formatTime(c.CreatedAt))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SetCandidatePromoted flips the promoted flag on a single candidate.
func (s *Store) SetCandidatePromoted(ctx context.Context, id string, promoted bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE match_candidates SET promoted = ? WHERE id = ?`,
		boolToInt(promoted), id)
	return err
}

func (s *Store) ListCandidates(ctx context.Context, f CandidateFilter) ([]*MatchCandidate, error) {
	var conditions []string

	if f.Deleted == ExcludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if f.OnlyUnpromoted {
		conditions = append(conditions, "promoted = 0")
	}

	query := candidateSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// DeleteCandidate permanently removes a candidate row.
func (s *Store) DeleteCandidate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM match_candidates WHERE id = ?`, id)
	return err
}

func scanCandidates(rows *sql.Rows) ([]*MatchCandidate, error) {
	var candidates []*MatchCandidate

	for rows.Next() {
		var c MatchCandidate
		var reasons, createdAt string
		var deletedAt sql.NullString
		var promoted int

		err := rows.Scan(&c.ID, &c.LostItemID, &c.FoundItemID, &c.TextScore, &c.ImageScore,
			&c.LocationScore, &c.DateScore, &c.AggregateScore, &reasons, &promoted,
			&createdAt, &deletedAt)
		if err != nil {
			return nil, err
		}

		c.Reasons, err = decodeReasons(reasons)
		if err != nil {
			return nil, fmt.Errorf("candidate %s reasons: %w", c.ID, err)
		}

		c.Promoted = promoted != 0
		c.CreatedAt = parseTime(createdAt)
		if deletedAt.Valid {
			t := parseTime(deletedAt.String)
			c.DeletedAt = &t
		}

		candidates = append(candidates, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return candidates, nil
}
