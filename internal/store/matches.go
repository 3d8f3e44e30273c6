package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const matchSelect = `
SELECT id, lost_item_id, found_item_id, confidence_score, status,
       lost_owner_notified, found_owner_notified, created_at
FROM matches`

// FindMatch returns the match for a pair, or nil when there is none.
func (s *Store) FindMatch(ctx context.Context, lostID, foundID string) (*Match, error) {
	rows, err := s.db.QueryContext(ctx, matchSelect+` WHERE lost_item_id = ? AND found_item_id = ?`,
		lostID, foundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches, err := scanMatches(rows)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, nil
	}

	return matches[0], nil
}

// CreateMatch inserts m unless a match for the same pair exists. It reports
// whether a row was written; the pair constraint makes a second create a no-op.
func (s *Store) CreateMatch(ctx context.Context, m *Match) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = MatchPending
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, lost_item_id, found_item_id, confidence_score, status,
		    lost_owner_notified, found_owner_notified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lost_item_id, found_item_id) DO NOTHING`,
		m.ID, m.LostItemID, m.FoundItemID, m.ConfidenceScore, string(m.Status),
		boolToInt(m.LostOwnerNotified), boolToInt(m.FoundOwnerNotified), formatTime(m.CreatedAt))
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// MarkMatchNotified records which owners have been told about a match.
func (s *Store) MarkMatchNotified(ctx context.Context, id string, lostOwner, foundOwner bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE matches SET lost_owner_notified = ?, found_owner_notified = ? WHERE id = ?`,
		boolToInt(lostOwner), boolToInt(foundOwner), id)
	return err
}

func (s *Store) ListMatches(ctx context.Context) ([]*Match, error) {
	rows, err := s.db.QueryContext(ctx, matchSelect+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMatches(rows)
}

func scanMatches(rows *sql.Rows) ([]*Match, error) {
	var matches []*Match

	for rows.Next() {
		var m Match
		var status, createdAt string
		var lostNotified, foundNotified int

		err := rows.Scan(&m.ID, &m.LostItemID, &m.FoundItemID, &m.ConfidenceScore, &status,
			&lostNotified, &foundNotified, &createdAt)
		if err != nil {
			return nil, err
		}

		m.Status = MatchStatus(status)
		m.LostOwnerNotified = lostNotified != 0
		m.FoundOwnerNotified = foundNotified != 0
		m.CreatedAt = parseTime(createdAt)

		matches = append(matches, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return matches, nil
}
