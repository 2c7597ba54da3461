package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

//go:embed schema.sql
var Schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplemedia.Repository and simplemedia.SpaceStore using PostgreSQL
type Repository struct {
	db DBTX
}

var (
	_ simplemedia.Repository = (*Repository)(nil)
	_ simplemedia.SpaceStore = (*Repository)(nil)
)

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate applies the embedded schema. It is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return r.handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "spaces") {
				return fmt.Errorf("space already exists")
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			if strings.Contains(pgErr.ConstraintName, "space") {
				return simplemedia.ErrSpaceNotFound
			}
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", simplemedia.ErrInvalidRequest, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

const itemColumns = `id, space_id, key, file_name, mime_type, size_bytes, location,
	location_expires_at, upload_completion, upload_error, is_ai_generated,
	source_item_id, width, height, duration_seconds, created_at, updated_at, deactivated_at`

func scanItem(row pgx.Row) (*simplemedia.ContentItem, error) {
	var item simplemedia.ContentItem
	err := row.Scan(
		&item.ID, &item.SpaceID, &item.Key, &item.FileName, &item.MimeType, &item.SizeBytes,
		&item.Location, &item.LocationExpiresAt, &item.UploadCompletion, &item.UploadError,
		&item.IsAIGenerated, &item.SourceItemID, &item.Width, &item.Height, &item.DurationSeconds,
		&item.CreatedAt, &item.UpdatedAt, &item.DeactivatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Item operations

func (r *Repository) SaveItem(ctx context.Context, item *simplemedia.ContentItem) error {
	if item.ID == uuid.Nil {
		return r.createItem(ctx, item)
	}

	query := `
		UPDATE content_items SET
			key = $2, file_name = $3, mime_type = $4, size_bytes = $5, location = $6,
			location_expires_at = $7, upload_completion = $8, upload_error = $9,
			is_ai_generated = $10, source_item_id = $11, width = $12, height = $13,
			duration_seconds = $14, deactivated_at = $15, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		item.ID, item.Key, item.FileName, item.MimeType, item.SizeBytes, item.Location,
		item.LocationExpiresAt, item.UploadCompletion, item.UploadError,
		item.IsAIGenerated, item.SourceItemID, item.Width, item.Height,
		item.DurationSeconds, item.DeactivatedAt,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return simplemedia.ErrItemNotFound
	}
	if err != nil {
		return r.handlePostgresError("update item", err)
	}
	return nil
}

func (r *Repository) createItem(ctx context.Context, item *simplemedia.ContentItem) error {
	id := uuid.New()
	query := `
		INSERT INTO content_items (
			id, space_id, key, file_name, mime_type, size_bytes, location,
			location_expires_at, upload_completion, upload_error, is_ai_generated,
			source_item_id, width, height, duration_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		id, item.SpaceID, item.Key, item.FileName, item.MimeType, item.SizeBytes, item.Location,
		item.LocationExpiresAt, item.UploadCompletion, item.UploadError, item.IsAIGenerated,
		item.SourceItemID, item.Width, item.Height, item.DurationSeconds,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create item", err)
	}
	item.ID = id
	return nil
}

func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (*simplemedia.ContentItem, error) {
	item, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, simplemedia.ErrItemNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get item", err)
	}
	return item, nil
}

func (r *Repository) ListItems(ctx context.Context, filter simplemedia.ItemFilter) (*simplemedia.ItemPage, error) {
	where, args := buildItemFilter(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM content_items`+where, args...).Scan(&total); err != nil {
		return nil, r.handlePostgresError("count items", err)
	}

	query := `SELECT ` + itemColumns + ` FROM content_items` + where + orderClause(filter)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list items", err)
	}
	defer rows.Close()

	items := make([]*simplemedia.ContentItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list items", err)
	}
	return &simplemedia.ItemPage{Items: items, Total: total}, nil
}

func buildItemFilter(f simplemedia.ItemFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.SpaceID != nil {
		add("space_id = $%d", *f.SpaceID)
	}
	if f.SourceItemID != nil {
		add("source_item_id = $%d", *f.SourceItemID)
	}
	if f.MimeTypePrefix != "" {
		add("mime_type LIKE $%d", escapeLike(f.MimeTypePrefix)+"%")
	}
	if f.OnlyComplete {
		conds = append(conds, "upload_completion = 100 AND upload_error IS NULL")
	}
	if !f.IncludeDeactivated {
		conds = append(conds, "deactivated_at IS NULL")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(f simplemedia.ItemFilter) string {
	col := "created_at"
	switch f.SortBy {
	case "updated_at", "size_bytes":
		col = f.SortBy
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *Repository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_items WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete item", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrItemNotFound
	}
	return nil
}

// UpdateProgress applies completion with a conditional update, so concurrent
// or late writes can never move the stored value backwards.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, completion int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE content_items SET upload_completion = $2, updated_at = NOW()
		WHERE id = $1 AND upload_error IS NULL AND upload_completion < $2`, id, completion)
	if err != nil {
		return false, r.handlePostgresError("update progress", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetItem(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) UpdateLocation(ctx context.Context, id uuid.UUID, location string, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE content_items SET location = $2, location_expires_at = $3, updated_at = NOW()
		WHERE id = $1`, id, location, expiresAt)
	if err != nil {
		return r.handlePostgresError("update location", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrItemNotFound
	}
	return nil
}

func (r *Repository) DeactivateItem(ctx context.Context, id uuid.UUID, at time.Time) (*simplemedia.ContentItem, error) {
	item, err := scanItem(r.db.QueryRow(ctx, `
		UPDATE content_items SET deactivated_at = $2, updated_at = NOW()
		WHERE id = $1 AND deactivated_at IS NULL
		RETURNING `+itemColumns, id, at))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.handlePostgresError("deactivate item", err)
	}
	if _, err := r.GetItem(ctx, id); err != nil {
		return nil, err
	}
	return nil, simplemedia.ErrAlreadyRetired
}

// Space operations

func (r *Repository) CreateSpace(ctx context.Context, space *simplemedia.Space) error {
	if space.ID == uuid.Nil {
		space.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO spaces (id, owner_id, used_bytes) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`, space.ID, space.OwnerID, space.UsedBytes,
	).Scan(&space.CreatedAt, &space.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create space", err)
	}
	return nil
}

func (r *Repository) GetSpace(ctx context.Context, id uuid.UUID) (*simplemedia.Space, error) {
	var s simplemedia.Space
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, used_bytes, created_at, updated_at FROM spaces WHERE id = $1`, id,
	).Scan(&s.ID, &s.OwnerID, &s.UsedBytes, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, simplemedia.ErrSpaceNotFound
	}
	if err != nil {
		return nil, r.handlePostgresError("get space", err)
	}
	return &s, nil
}

// IncrementUsedBytes adds delta in one statement; the row lock taken by the
// UPDATE serialises concurrent writers.
func (r *Repository) IncrementUsedBytes(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		UPDATE spaces SET used_bytes = used_bytes + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING used_bytes`, id, delta,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, simplemedia.ErrSpaceNotFound
	}
	if err != nil {
		return 0, r.handlePostgresError("increment used bytes", err)
	}
	return total, nil
}
