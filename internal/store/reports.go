package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talaqi/talaqi/internal/errs"
)

const reportSelect = `
SELECT id, owner_id, category, title, description, image_ref, address, latitude, longitude,
       city, governorate, occurred_at, status, deleted, created_at
FROM `

func reportTable(t ItemType) (string, error) {
	switch t {
	case ItemLost:
		return "lost_reports", nil
	case ItemFound:
		return "found_reports", nil
	default:
		return "", errs.Validation("item type", fmt.Sprintf("%q is not a report type", t))
	}
}

// SaveReport inserts or replaces a report. Reports are written by the reporting
// flow; the pipeline only reads them, so this exists for seeding and tests.
func (s *Store) SaveReport(ctx context.Context, r *Report) error {
	table, err := reportTable(r.Type)
	if err != nil {
		return err
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = StatusActive
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, owner_id, category, title, description, image_ref, address,
		    latitude, longitude, city, governorate, occurred_at, status, deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    owner_id = excluded.owner_id,
		    category = excluded.category,
		    title = excluded.title,
		    description = excluded.description,
		    image_ref = excluded.image_ref,
		    address = excluded.address,
		    latitude = excluded.latitude,
		    longitude = excluded.longitude,
		    city = excluded.city,
		    governorate = excluded.governorate,
		    occurred_at = excluded.occurred_at,
		    status = excluded.status,
		    deleted = excluded.deleted`,
		r.ID, r.OwnerID, r.Category, r.Title, r.Description, r.ImageRef, r.Location.Address,
		r.Location.Latitude, r.Location.Longitude, r.Location.City, r.Location.Governorate,
		formatTime(r.OccurredAt), string(r.Status), boolToInt(r.Deleted), formatTime(r.CreatedAt))

	return err
}

// GetReport returns a report by id, including soft-deleted ones only when asked.
func (s *Store) GetReport(ctx context.Context, t ItemType, id string, d Deleted) (*Report, error) {
	table, err := reportTable(t)
	if err != nil {
		return nil, err
	}

	query := reportSelect + table + ` WHERE id = ?`
	if d == ExcludeDeleted {
		query += ` AND deleted = 0`
	}

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports, err := scanReports(rows, t)
	if err != nil {
		return nil, err
	}

	if len(reports) == 0 {
		return nil, errs.NotFound(strings.ToLower(string(t))+" report", id)
	}

	return reports[0], nil
}

// ListReports returns reports of one type ordered by creation time. Passing
// statuses restricts the result to those statuses.
func (s *Store) ListReports(ctx context.Context, t ItemType, d Deleted, statuses ...ReportStatus) ([]*Report, error) {
	table, err := reportTable(t)
	if err != nil {
		return nil, err
	}

	var conditions []string
	var args []any

	if d == ExcludeDeleted {
		conditions = append(conditions, "deleted = 0")
	}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ",")+")")
	}

	query := reportSelect + table
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReports(rows, t)
}

func scanReports(rows *sql.Rows, t ItemType) ([]*Report, error) {
	var reports []*Report

	for rows.Next() {
		var r Report
		var lat, lng sql.NullFloat64
		var status, occurredAt, createdAt string
		var deleted int

		err := rows.Scan(&r.ID, &r.OwnerID, &r.Category, &r.Title, &r.Description, &r.ImageRef,
			&r.Location.Address, &lat, &lng, &r.Location.City, &r.Location.Governorate,
			&occurredAt, &status, &deleted, &createdAt)
		if err != nil {
			return nil, err
		}

		if lat.Valid {
			r.Location.Latitude = &lat.Float64
		}
		if lng.Valid {
			r.Location.Longitude = &lng.Float64
		}

		r.Type = t
		r.Status = ReportStatus(status)
		r.Deleted = deleted != 0
		r.OccurredAt = parseTime(occurredAt)
		r.CreatedAt = parseTime(createdAt)

		reports = append(reports, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reports, nil
}

// SaveKnowledge inserts or replaces a knowledge entry.
func (s *Store) SaveKnowledge(ctx context.Context, k *KnowledgeEntry) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.UpdatedAt.IsZero() {
		k.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries (id, category, title, content, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    category = excluded.category,
		    title = excluded.title,
		    content = excluded.content,
		    deleted = excluded.deleted,
		    updated_at = excluded.updated_at`,
		k.ID, k.Category, k.Title, k.Content, boolToInt(k.Deleted), formatTime(k.UpdatedAt))

	return err
}

func (s *Store) ListKnowledge(ctx context.Context, d Deleted) ([]*KnowledgeEntry, error) {
	query := `SELECT id, category, title, content, deleted, updated_at FROM knowledge_entries`
	if d == ExcludeDeleted {
		query += ` WHERE deleted = 0`
	}
	query += ` ORDER BY updated_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*KnowledgeEntry
	for rows.Next() {
		var k KnowledgeEntry
		var deleted int
		var updatedAt string

		if err := rows.Scan(&k.ID, &k.Category, &k.Title, &k.Content, &deleted, &updatedAt); err != nil {
			return nil, err
		}

		k.Deleted = deleted != 0
		k.UpdatedAt = parseTime(updatedAt)
		entries = append(entries, &k)
	}

	return entries, rows.Err()
}
