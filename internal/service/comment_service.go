package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/logbook-api/internal/models"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
)

type commentRepo interface {
	ListByRecord(ctx context.Context, recordID string) ([]models.Comment, error)
	Create(ctx context.Context, comment *models.Comment) error
}

type recordAccessChecker interface {
	Get(ctx context.Context, claims *models.JWTClaims, recordID string) (*models.RecordDetail, error)
}

// CreateCommentRequest is the payload for attaching a comment.
type CreateCommentRequest struct {
	CommentText string `json:"comment_text" validate:"required"`
}

// CommentService manages remarks attached to records. Comments inherit the
// record's access rules and never require the edit lock.
type CommentService struct {
	comments  commentRepo
	records   recordAccessChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCommentService creates a service instance.
func NewCommentService(comments commentRepo, records recordAccessChecker, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{comments: comments, records: records, validator: validate, logger: logger}
}

// ListByRecord returns a record's comments, newest first.
func (s *CommentService) ListByRecord(ctx context.Context, claims *models.JWTClaims, recordID string) ([]models.Comment, error) {
	if _, err := s.records.Get(ctx, claims, recordID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// Create attaches a comment to a record the caller can access.
func (s *CommentService) Create(ctx context.Context, claims *models.JWTClaims, recordID string, req CreateCommentRequest) (*models.Comment, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	if _, err := s.records.Get(ctx, claims, recordID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		RecordID:    recordID,
		UserID:      claims.UserID,
		CommentText: req.CommentText,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}
