package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/schedulehq/publisher/internal/models"
)

type ContentItemRepository interface {
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
}

type contentItemRepository struct {
	db *sql.DB
}

func NewContentItemRepository(db *sql.DB) ContentItemRepository {
	return &contentItemRepository{db: db}
}

func (r *contentItemRepository) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	query := `SELECT id, user_id, metadata, preview_url, created_at FROM content_items WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var item models.ContentItem
	err := row.Scan(&item.ID, &item.UserID, &item.Metadata, &item.PreviewURL, &item.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &item, nil
}
