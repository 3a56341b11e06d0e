package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"streamkeep/internal/database"
)

const itemColumns = "id, source_name, segments_dir, final_filename, format, timestamp, start_time, created_at"

// Store manages segment queue persistence.
type Store struct {
	db *database.DB
}

// NewStore wraps an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Enqueue appends a batch for source and returns the stored item.
func (s *Store) Enqueue(ctx context.Context, source string, batch Batch) (*Item, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("source name is required")
	}
	if strings.TrimSpace(batch.SegmentsDir) == "" || strings.TrimSpace(batch.FinalFilename) == "" {
		return nil, errors.New("batch requires segments dir and final filename")
	}
	if batch.StartTime.IsZero() {
		batch.StartTime = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO segment_queue (
            source_name, segments_dir, final_filename, format, timestamp, start_time, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		source,
		batch.SegmentsDir,
		batch.FinalFilename,
		batch.Format,
		batch.Timestamp(),
		database.FormatTime(batch.StartTime),
		database.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// List returns every queued item ordered by id.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM segment_queue ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	return items, nil
}

// Get fetches a queued item. A missing row yields nil without error.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM segment_queue WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// Remove deletes an item. Removing a missing id is not an error.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM segment_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove queue item: %w", err)
	}
	return nil
}

// Count returns the number of queued items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM segment_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// CountBySource returns queued item counts keyed by source name.
func (s *Store) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_name, COUNT(1) FROM segment_queue GROUP BY source_name`)
	if err != nil {
		return nil, fmt.Errorf("count queue by source: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan queue count: %w", err)
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item       Item
		startRaw   sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.SourceName,
		&item.Batch.SegmentsDir,
		&item.Batch.FinalFilename,
		&item.Batch.Format,
		&item.Timestamp,
		&startRaw,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if start, err := database.ParseTime(startRaw.String); err == nil {
		item.Batch.StartTime = start.Local()
	}
	if created, err := database.ParseTime(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	return &item, nil
}
