package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteMappingStore keeps mappings in a single SQLite file. It suits
// single-instance deployments and tests that need a real UNIQUE constraint.
type SQLiteMappingStore struct {
	db *sql.DB
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long a writer waits for the lock.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

func NewSQLiteMappingStore(cfg SQLiteConfig) (*SQLiteMappingStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &SQLiteMappingStore{db: db}, nil
}

func (s *SQLiteMappingStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	// databases created before mappings were versioned
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info('mappings') WHERE name = 'version'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE mappings ADD COLUMN version INTEGER NOT NULL DEFAULT 1`); err != nil {
			return fmt.Errorf("failed to add version column: %w", err)
		}
	}
	return nil
}

func (s *SQLiteMappingStore) CreateMapping(ctx context.Context, m *Mapping) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO mappings (owner_id, destination, short_key, is_custom_key, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.OwnerID.String(), m.Destination, m.Key, m.IsCustomKey, now.UnixMicro(), toMicros(m.ExpiresAt))
	if err != nil {
		return translateSQLiteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	m.CreatedAt = time.UnixMicro(now.UnixMicro()).UTC()
	m.Version = 1
	return nil
}

func (s *SQLiteMappingStore) FindByKey(ctx context.Context, key string) (*Mapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE short_key = ?`, key)
	return scanSQLiteMapping(row)
}

func (s *SQLiteMappingStore) FindByID(ctx context.Context, id int64) (*Mapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE id = ?`, id)
	return scanSQLiteMapping(row)
}

func (s *SQLiteMappingStore) KeyExists(ctx context.Context, key string, excludeID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM mappings WHERE short_key = ? AND id <> ?)`, key, excludeID).Scan(&exists)
	return exists, err
}

func (s *SQLiteMappingStore) UpdateMapping(ctx context.Context, m *Mapping) error {
	err := s.db.QueryRowContext(ctx,
		`UPDATE mappings SET destination = ?, short_key = ?, is_custom_key = ?, expires_at = ?, version = version + 1 WHERE id = ? RETURNING version`,
		m.Destination, m.Key, m.IsCustomKey, toMicros(m.ExpiresAt), m.ID).Scan(&m.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return translateSQLiteError(err)
}

func (s *SQLiteMappingStore) IncrementClickCount(ctx context.Context, id int64, delta int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `UPDATE mappings SET click_count = click_count + ? WHERE id = ? RETURNING click_count`, delta, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

func (s *SQLiteMappingStore) AppendClickEvent(ctx context.Context, e *ClickEvent, key string, version int64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO click_events (mapping_id, clicked_at, source_ip, user_agent, referer)
		SELECT id, ?, ?, ?, ? FROM mappings WHERE id = ? AND short_key = ? AND version = ?`,
		e.ClickedAt.UnixMicro(), e.SourceIP, e.UserAgent, e.Referer, e.MappingID, key, version)
	if err != nil {
		return translateSQLiteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleMapping
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteMappingStore) DeleteMapping(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRows(res)
}

func (s *SQLiteMappingStore) ListClicks(ctx context.Context, mappingID int64, limit int) ([]*ClickEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mapping_id, clicked_at, source_ip, user_agent, referer FROM click_events WHERE mapping_id = ? ORDER BY clicked_at DESC, id DESC LIMIT ?`,
		mappingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ClickEvent
	for rows.Next() {
		var (
			e         ClickEvent
			clickedAt int64
			ip        sql.NullString
			ua        sql.NullString
			referer   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.MappingID, &clickedAt, &ip, &ua, &referer); err != nil {
			return nil, err
		}
		e.ClickedAt = time.UnixMicro(clickedAt).UTC()
		e.SourceIP = fromNullString(ip)
		e.UserAgent = fromNullString(ua)
		e.Referer = fromNullString(referer)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *SQLiteMappingStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, search string) ([]*Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE owner_id = ?`
	args := []any{ownerID.String()}
	if search != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		query += ` AND (destination LIKE ? ESCAPE '\' OR short_key LIKE ? ESCAPE '\')`
		p := likePattern(search)
		args = append(args, p, p)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		m, err := scanSQLiteMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (s *SQLiteMappingStore) ReconcileClickCounts(ctx context.Context, settledBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mappings SET click_count = (SELECT COUNT(*) FROM click_events e WHERE e.mapping_id = mappings.id)
		WHERE click_count < (SELECT COUNT(*) FROM click_events e WHERE e.mapping_id = mappings.id)
		  AND (SELECT MAX(clicked_at) FROM click_events e WHERE e.mapping_id = mappings.id) < ?`,
		settledBefore.UnixMicro())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteMappingStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMapping(row rowScanner) (*Mapping, error) {
	var (
		m         Mapping
		owner     string
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := row.Scan(&m.ID, &owner, &m.Destination, &m.Key, &m.IsCustomKey, &createdAt, &expiresAt, &m.ClickCount, &m.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if m.OwnerID, err = uuid.Parse(owner); err != nil {
		return nil, fmt.Errorf("corrupt owner_id for mapping %d: %w", m.ID, err)
	}
	m.CreatedAt = time.UnixMicro(createdAt).UTC()
	if expiresAt.Valid {
		t := time.UnixMicro(expiresAt.Int64).UTC()
		m.ExpiresAt = &t
	}
	return &m, nil
}

func toMicros(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMicro()
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translateSQLiteError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch code := se.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w (%s)", ErrUniquenessViolation, se.Error())
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ErrNotFound
	case code&0xff == sqlite3.SQLITE_CONSTRAINT:
		msg := se.Error()
		if strings.Contains(msg, "UNIQUE") {
			return fmt.Errorf("%w (%s)", ErrUniquenessViolation, msg)
		}
		if strings.Contains(msg, "FOREIGN KEY") {
			return ErrNotFound
		}
	}
	return err
}
