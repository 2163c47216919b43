package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/schedulehq/publisher/internal/models"
)

type PostRepository interface {
	GetByScheduleID(ctx context.Context, scheduleID int64) (*models.Post, error)
	UpsertProcessing(ctx context.Context, post *models.Post) error
	UpsertResultTx(ctx context.Context, tx *sql.Tx, post *models.Post) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) GetByScheduleID(ctx context.Context, scheduleID int64) (*models.Post, error) {
	query := `
		SELECT id, schedule_id, user_id, social_account_id, status, platform_post_id,
		       response_meta, media_urls, created_at, updated_at
		FROM posts WHERE schedule_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, scheduleID)

	var post models.Post
	err := row.Scan(&post.ID, &post.ScheduleID, &post.UserID, &post.SocialAccountID,
		&post.Status, &post.PlatformPostID, &post.ResponseMeta,
		pq.Array(&post.MediaURLs), &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &post, nil
}

const upsertPostQuery = `
	INSERT INTO posts (schedule_id, user_id, social_account_id, status, platform_post_id, response_meta, media_urls)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (schedule_id) DO UPDATE
	SET status = EXCLUDED.status,
	    platform_post_id = EXCLUDED.platform_post_id,
	    response_meta = EXCLUDED.response_meta,
	    media_urls = EXCLUDED.media_urls,
	    updated_at = CURRENT_TIMESTAMP
`

// UpsertProcessing opens an attempt's outcome row. Keyed on schedule_id so a
// retried or redelivered attempt overwrites the previous row.
func (r *postRepository) UpsertProcessing(ctx context.Context, post *models.Post) error {
	_, err := r.db.ExecContext(ctx, upsertPostQuery, post.ScheduleID, post.UserID,
		post.SocialAccountID, models.PostStatusProcessing, post.PlatformPostID,
		nullableJSON(post.ResponseMeta), pq.Array(post.MediaURLs))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) UpsertResultTx(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	_, err := tx.ExecContext(ctx, upsertPostQuery, post.ScheduleID, post.UserID,
		post.SocialAccountID, post.Status, post.PlatformPostID,
		nullableJSON(post.ResponseMeta), pq.Array(post.MediaURLs))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
