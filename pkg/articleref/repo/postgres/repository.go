// Package postgres provides a pgx-backed articleref.Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/article-assets/pkg/articleref"
)

// DBTX is an interface that allows us to use either a database connection
// or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements articleref.Repository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with a connection pool.
// Pool-backed repositories run position updates inside a transaction.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("attachment already exists")
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced article not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) SaveAttachment(ctx context.Context, attachment *articleref.ReferenceAttachment) error {
	query := `
		INSERT INTO article_reference (
			id, article_id, storage_key, original_filename, mime_type,
			position, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		attachment.ID, attachment.ArticleID, attachment.StorageKey,
		attachment.OriginalFilename, attachment.MimeType,
		attachment.Position, attachment.CreatedAt, attachment.UpdatedAt)
	if err != nil {
		return handlePostgresError("save attachment", err)
	}

	return nil
}

func (r *Repository) UpdateAttachment(ctx context.Context, attachment *articleref.ReferenceAttachment) error {
	query := `
		UPDATE article_reference
		SET original_filename = $2, mime_type = $3, position = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		attachment.ID, attachment.OriginalFilename, attachment.MimeType,
		attachment.Position, attachment.UpdatedAt)
	if err != nil {
		return handlePostgresError("update attachment", err)
	}
	if tag.RowsAffected() == 0 {
		return articleref.ErrAttachmentNotFound
	}

	return nil
}

func (r *Repository) RemoveAttachment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM article_reference WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("remove attachment", err)
	}
	if tag.RowsAffected() == 0 {
		return articleref.ErrAttachmentNotFound
	}

	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, id uuid.UUID) (*articleref.ReferenceAttachment, error) {
	query := `
		SELECT id, article_id, storage_key, original_filename, mime_type,
		       position, created_at, updated_at
		FROM article_reference WHERE id = $1`

	var a articleref.ReferenceAttachment
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.ArticleID, &a.StorageKey, &a.OriginalFilename,
		&a.MimeType, &a.Position, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, articleref.ErrAttachmentNotFound
		}
		return nil, handlePostgresError("get attachment", err)
	}

	return &a, nil
}

func (r *Repository) ListByArticle(ctx context.Context, articleID uuid.UUID) ([]*articleref.ReferenceAttachment, error) {
	query := `
		SELECT id, article_id, storage_key, original_filename, mime_type,
		       position, created_at, updated_at
		FROM article_reference
		WHERE article_id = $1
		ORDER BY position ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query, articleID)
	if err != nil {
		return nil, handlePostgresError("list attachments", err)
	}
	defer rows.Close()

	var result []*articleref.ReferenceAttachment
	for rows.Next() {
		var a articleref.ReferenceAttachment
		if err := rows.Scan(
			&a.ID, &a.ArticleID, &a.StorageKey, &a.OriginalFilename,
			&a.MimeType, &a.Position, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, handlePostgresError("list attachments", err)
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list attachments", err)
	}

	return result, nil
}

// UpdatePositions applies a complete id->position assignment for one
// article. With a pool the statements run in a single transaction, so no
// observer sees a mixed old/new ordering.
func (r *Repository) UpdatePositions(ctx context.Context, articleID uuid.UUID, positions map[uuid.UUID]int) error {
	if r.pool != nil {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return handlePostgresError("update positions", err)
		}
		defer tx.Rollback(ctx)

		if err := updatePositions(ctx, tx, articleID, positions); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return handlePostgresError("update positions", err)
		}
		return nil
	}

	return updatePositions(ctx, r.db, articleID, positions)
}

func updatePositions(ctx context.Context, db DBTX, articleID uuid.UUID, positions map[uuid.UUID]int) error {
	query := `
		UPDATE article_reference SET position = $3, updated_at = now()
		WHERE id = $1 AND article_id = $2`

	for id, position := range positions {
		tag, err := db.Exec(ctx, query, id, articleID, position)
		if err != nil {
			return handlePostgresError("update positions", err)
		}
		if tag.RowsAffected() == 0 {
			return articleref.ErrAttachmentNotFound
		}
	}

	return nil
}
