package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/openedu-labs/qfeed-api/internal/models"
)

// SubmissionRepository defines data operations for submissions, their
// answers and their computed block feedback.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	Update(ctx context.Context, submission *models.Submission) error
	UpsertAnswer(ctx context.Context, answer *models.Answer) error
	GetFeedback(ctx context.Context, submissionID, blockID uint) (models.BlockFeedback, error)
	SaveFeedback(ctx context.Context, feedback *models.BlockFeedback) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Assignment.Files").
		Preload("Assignment.Blocks").
		Preload("Student").
		Preload("Answers").
		Preload("Feedback")
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("created_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

// UpsertAnswer keeps at most one answer set per (submission, block) pair.
func (r *submissionRepository) UpsertAnswer(ctx context.Context, answer *models.Answer) error {
	var existing models.Answer
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", answer.SubmissionID).
		Where("block_id = ?", answer.BlockID).
		First(&existing).Error

	switch {
	case err == nil:
		answer.ID = existing.ID
		answer.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(answer).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(answer).Error
	default:
		return err
	}
}

func (r *submissionRepository) GetFeedback(ctx context.Context, submissionID, blockID uint) (models.BlockFeedback, error) {
	var feedback models.BlockFeedback
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Where("block_id = ?", blockID).
		First(&feedback).Error; err != nil {
		return models.BlockFeedback{}, err
	}

	return feedback, nil
}

// SaveFeedback creates the entry on first computation and overwrites it in
// place on every recomputation.
func (r *submissionRepository) SaveFeedback(ctx context.Context, feedback *models.BlockFeedback) error {
	if feedback.ID != 0 {
		return r.db.WithContext(ctx).Save(feedback).Error
	}
	return r.db.WithContext(ctx).Create(feedback).Error
}
