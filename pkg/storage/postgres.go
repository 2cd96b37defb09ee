package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	mappingColumns = `id, owner_id, destination, short_key, is_custom_key, created_at, expires_at, click_count, version`
)

type PostgresMappingStore struct {
	pool *pgxpool.Pool
}

func NewPostgresMappingStore(pool *pgxpool.Pool) *PostgresMappingStore {
	return &PostgresMappingStore{pool: pool}
}

func (s *PostgresMappingStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresMappingStore) CreateMapping(ctx context.Context, m *Mapping) error {
	query := `INSERT INTO mappings (owner_id, destination, short_key, is_custom_key, expires_at) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, version`
	err := s.pool.QueryRow(ctx, query, m.OwnerID, m.Destination, m.Key, m.IsCustomKey, m.ExpiresAt).Scan(&m.ID, &m.CreatedAt, &m.Version)
	return translatePgError(err)
}

func (s *PostgresMappingStore) FindByKey(ctx context.Context, key string) (*Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE short_key = $1`
	return scanMapping(s.pool.QueryRow(ctx, query, key))
}

func (s *PostgresMappingStore) FindByID(ctx context.Context, id int64) (*Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE id = $1`
	return scanMapping(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresMappingStore) KeyExists(ctx context.Context, key string, excludeID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM mappings WHERE short_key = $1 AND id <> $2)`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, key, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresMappingStore) UpdateMapping(ctx context.Context, m *Mapping) error {
	query := `UPDATE mappings SET destination = $2, short_key = $3, is_custom_key = $4, expires_at = $5, version = version + 1 WHERE id = $1 RETURNING version`
	err := s.pool.QueryRow(ctx, query, m.ID, m.Destination, m.Key, m.IsCustomKey, m.ExpiresAt).Scan(&m.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return translatePgError(err)
}

func (s *PostgresMappingStore) IncrementClickCount(ctx context.Context, id int64, delta int64) (int64, error) {
	query := `UPDATE mappings SET click_count = click_count + $2 WHERE id = $1 RETURNING click_count`
	var count int64
	err := s.pool.QueryRow(ctx, query, id, delta).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

func (s *PostgresMappingStore) AppendClickEvent(ctx context.Context, e *ClickEvent, key string, version int64) error {
	query := `
		INSERT INTO click_events (mapping_id, clicked_at, source_ip, user_agent, referer)
		SELECT id, $2, $3, $4, $5 FROM mappings WHERE id = $1 AND short_key = $6 AND version = $7
		RETURNING id`
	err := s.pool.QueryRow(ctx, query, e.MappingID, e.ClickedAt, e.SourceIP, e.UserAgent, e.Referer, key, version).Scan(&e.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStaleMapping
	}
	return translatePgError(err)
}

func (s *PostgresMappingStore) DeleteMapping(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mappings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresMappingStore) ListClicks(ctx context.Context, mappingID int64, limit int) ([]*ClickEvent, error) {
	query := `SELECT id, mapping_id, clicked_at, source_ip, user_agent, referer FROM click_events WHERE mapping_id = $1 ORDER BY clicked_at DESC, id DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, mappingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ClickEvent
	for rows.Next() {
		var e ClickEvent
		if err := rows.Scan(&e.ID, &e.MappingID, &e.ClickedAt, &e.SourceIP, &e.UserAgent, &e.Referer); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *PostgresMappingStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, search string) ([]*Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE owner_id = $1`
	args := []any{ownerID}
	if search != "" {
		query += ` AND (destination ILIKE $2 ESCAPE '\' OR short_key ILIKE $2 ESCAPE '\')`
		args = append(args, likePattern(search))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (s *PostgresMappingStore) ReconcileClickCounts(ctx context.Context, settledBefore time.Time) (int64, error) {
	query := `
		UPDATE mappings m SET click_count = c.n
		FROM (
			SELECT mapping_id, COUNT(*) AS n, MAX(clicked_at) AS last_click
			FROM click_events
			GROUP BY mapping_id
		) c
		WHERE m.id = c.mapping_id AND m.click_count < c.n AND c.last_click < $1`
	tag, err := s.pool.Exec(ctx, query, settledBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresMappingStore) Close() error {
	s.pool.Close()
	return nil
}

func scanMapping(row pgx.Row) (*Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.OwnerID, &m.Destination, &m.Key, &m.IsCustomKey, &m.CreatedAt, &m.ExpiresAt, &m.ClickCount, &m.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w (%s)", ErrUniquenessViolation, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}
