package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"streamkeep/internal/database"
	"streamkeep/internal/services"
	"streamkeep/internal/textutil"
)

// Source is a monitored live stream.
type Source struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrDuplicateName is returned when a source with the same name already exists.
var ErrDuplicateName = errors.New("source name already registered")

const sourceColumns = "id, name, address, active, created_at"

// Store reads and writes the sources table.
type Store struct {
	db *database.DB
}

// NewStore wraps an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Add registers a new active source.
func (s *Store) Add(ctx context.Context, name, address string) (*Source, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if !textutil.ValidSourceName(name) {
		return nil, services.Wrap(services.ErrValidation, "sources", "add",
			fmt.Sprintf("name %q must be non-empty and contain no spaces or path characters", name), nil)
	}
	if address == "" {
		return nil, services.Wrap(services.ErrValidation, "sources", "add", "address is required", nil)
	}

	existing, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, address, active, created_at) VALUES (?, ?, 1, ?)`,
		name, address, database.FormatTime(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		return nil, fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Remove deletes a source by id. It reports whether a row was removed.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveByName deletes a source by name. It reports whether a row was removed.
func (s *Store) RemoveByName(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SetActive toggles whether the monitor probes a source.
func (s *Store) SetActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET active = ? WHERE name = ?`, boolToInt(active), name)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "sources", "set active", name, nil)
	}
	return nil
}

// List returns all sources ordered by id.
func (s *Store) List(ctx context.Context) ([]Source, error) {
	return s.query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
}

// ListActive returns sources the monitor should probe.
func (s *Store) ListActive(ctx context.Context) ([]Source, error) {
	return s.query(ctx, `SELECT `+sourceColumns+` FROM sources WHERE active = 1 ORDER BY id`)
}

// GetByID fetches a source. A missing row yields nil without error.
func (s *Store) GetByID(ctx context.Context, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// GetByName fetches a source. A missing row yields nil without error.
func (s *Store) GetByName(ctx context.Context, name string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		src        Source
		active     int64
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&src.ID, &src.Name, &src.Address, &active, &createdRaw); err != nil {
		return nil, err
	}
	src.Active = active != 0
	if created, err := database.ParseTime(createdRaw.String); err == nil {
		src.CreatedAt = created
	}
	return &src, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
