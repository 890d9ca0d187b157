package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"quicktext/internal/server/storage"
)

var _ storage.Store = (*PostgresStore)(nil)

const shareColumns = `code, content, content_type, language, password_hash,
	max_views, views, one_time_access, is_accessed, created_at, expires_at`

// PostgresStore persists shares in the shares table.
type PostgresStore struct {
	db *DB
}

// NewPostgresStore creates a store on top of a migrated database.
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new share, reporting a collision when the code is taken.
func (r *PostgresStore) Create(ctx context.Context, share *storage.Share) error {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO NOTHING
	`,
		share.Code,
		share.Content,
		string(share.ContentType),
		nullString(share.Language),
		nullString(share.PasswordHash),
		share.MaxViews,
		share.Views,
		share.OneTimeAccess,
		share.IsAccessed,
		share.CreatedAt,
		share.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrCodeCollision
	}
	return nil
}

// Get retrieves a share by its code.
func (r *PostgresStore) Get(ctx context.Context, code string) (*storage.Share, error) {
	share, err := scanShare(r.db.Pool.QueryRow(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return share, nil
}

// Save updates the mutable columns of an existing share if its admission
// state still matches from.
func (r *PostgresStore) Save(ctx context.Context, share *storage.Share, from storage.Revision) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE shares SET content = $2, views = $3, is_accessed = $4
		WHERE code = $1 AND views = $5 AND is_accessed = $6
	`, share.Code, share.Content, share.Views, share.IsAccessed, from.Views, from.IsAccessed)
	if err != nil {
		return fmt.Errorf("failed to save share: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM shares WHERE code = $1)", share.Code,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to save share: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

// Delete removes a share record by code.
func (r *PostgresStore) Delete(ctx context.Context, code string) error {
	if _, err := r.db.Pool.Exec(ctx, "DELETE FROM shares WHERE code = $1", code); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

// SweepExpired deletes all shares whose expiration time is before now.
func (r *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM shares WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired shares: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats returns aggregate share statistics.
func (r *PostgresStore) Stats(ctx context.Context, now time.Time) (*storage.Stats, error) {
	stats := storage.NewStats()

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE expires_at >= $1),
			COALESCE(SUM(views), 0)
		FROM shares
	`, now).Scan(
		&stats.TotalShares,
		&stats.ActiveShares,
		&stats.TotalViews,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx,
		"SELECT content_type, COUNT(*) FROM shares GROUP BY content_type")
	if err != nil {
		return nil, fmt.Errorf("failed to get content type stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contentType string
			count       int64
		)
		if err := rows.Scan(&contentType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan content type stats: %w", err)
		}
		stats.ContentTypes[storage.ContentType(contentType)] = count
	}
	return stats, rows.Err()
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func (r *PostgresStore) Close() error {
	r.db.Close()
	return nil
}

func scanShare(row pgx.Row) (*storage.Share, error) {
	var (
		share        storage.Share
		contentType  string
		language     *string
		passwordHash *string
	)
	err := row.Scan(
		&share.Code,
		&share.Content,
		&contentType,
		&language,
		&passwordHash,
		&share.MaxViews,
		&share.Views,
		&share.OneTimeAccess,
		&share.IsAccessed,
		&share.CreatedAt,
		&share.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	share.ContentType = storage.ContentType(contentType)
	share.Language = derefString(language)
	share.PasswordHash = derefString(passwordHash)
	return &share, nil
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
