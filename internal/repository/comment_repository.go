package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/logbook-api/internal/models"
)

// CommentRepository persists record comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs the repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// ListByRecord returns comments for a record, newest first.
func (r *CommentRepository) ListByRecord(ctx context.Context, recordID string) ([]models.Comment, error) {
	const query = `SELECT id, record_id, user_id, comment_text, created_at
	FROM comments WHERE record_id = $1 ORDER BY created_at DESC`
	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, recordID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO comments (id, record_id, user_id, comment_text, created_at)
	VALUES (:id, :record_id, :user_id, :comment_text, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}
