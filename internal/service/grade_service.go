package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/openedu-labs/qfeed-api/internal/dto"
	"github.com/openedu-labs/qfeed-api/internal/grading"
	"github.com/openedu-labs/qfeed-api/internal/models"
	"github.com/openedu-labs/qfeed-api/internal/repository"
	"github.com/openedu-labs/qfeed-api/pkg/sandbox"
)

// ErrAssignmentNotFound indicates the assignment cannot be located.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrGradeUnresolved indicates the grading scheme returned no result value.
var ErrGradeUnresolved = errors.New("grading scheme returned no result")

// GradeService aggregates per-block scores and resolves grade labels.
// Recalculation is staff only; score and grade are open to the owning
// student as well.
type GradeService interface {
	ComputeAssignmentScore(ctx context.Context, submissionID uint, requester dto.Requester) (dto.ScoreResponse, error)
	ComputeAssignmentGrade(ctx context.Context, submissionID uint, requester dto.Requester) (dto.GradeResponse, error)
	RecalculateAssignment(ctx context.Context, assignmentID uint, requester dto.Requester) (dto.RecalculationSummary, error)
}

// GradeConfig carries grading configuration injected at construction time.
type GradeConfig struct {
	DefaultScheme  string
	SchemeCacheTTL time.Duration
}

type gradeService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	sandbox     sandbox.Client
	cache       *redis.Client
	logger      zerolog.Logger
	config      GradeConfig
}

// NewGradeService constructs the grade computation service. The redis client
// may be nil, which disables scheme caching.
func NewGradeService(submissionRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, client sandbox.Client, cache *redis.Client, logger zerolog.Logger, cfg GradeConfig) GradeService {
	return &gradeService{
		submissions: submissionRepo,
		assignments: assignmentRepo,
		sandbox:     client,
		cache:       cache,
		logger:      logger.With().Str("component", "grade_service").Logger(),
		config:      cfg,
	}
}

func (s *gradeService) ComputeAssignmentScore(ctx context.Context, submissionID uint, requester dto.Requester) (dto.ScoreResponse, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return dto.ScoreResponse{}, err
	}

	if err := authorizeRequester(requester, submission); err != nil {
		return dto.ScoreResponse{}, err
	}

	score, err := s.aggregateAndPersist(ctx, &submission)
	if err != nil {
		return dto.ScoreResponse{}, err
	}

	return dto.ScoreResponse{SubmissionID: submission.ID, Score: score}, nil
}

func (s *gradeService) ComputeAssignmentGrade(ctx context.Context, submissionID uint, requester dto.Requester) (dto.GradeResponse, error) {
	tracer := otel.Tracer("github.com/openedu-labs/qfeed-api/internal/service/grade")
	ctx, span := tracer.Start(ctx, "grade.resolve")
	span.SetAttributes(attribute.Int64("grade.submission_id", int64(submissionID)))
	defer span.End()

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return dto.GradeResponse{}, err
	}

	if err := authorizeRequester(requester, submission); err != nil {
		return dto.GradeResponse{}, err
	}

	// Grade computation always re-derives the aggregate from the current
	// feedback set; nothing is computed incrementally.
	score, err := s.aggregateAndPersist(ctx, &submission)
	if err != nil {
		return dto.GradeResponse{}, err
	}

	scheme, err := s.resolveScheme(ctx, submission.Assignment)
	if err != nil {
		return dto.GradeResponse{}, err
	}

	questions := blockResults(submission)
	input := map[string]any{
		"score":     score,
		"questions": questions,
	}
	pipeline := []grading.Step{{
		Action:  grading.StepCode,
		Options: map[string]any{"code": scheme},
	}}

	result, err := s.sandbox.Dispatch(ctx, input, pipeline)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scheme_dispatch_failed")
		return dto.GradeResponse{}, fmt.Errorf("dispatch grading scheme: %w", err)
	}

	raw, ok := result.Data["result"]
	if !ok || raw == nil {
		span.SetStatus(codes.Error, "grade_unresolved")
		return dto.GradeResponse{}, ErrGradeUnresolved
	}

	grade, ok := raw.(string)
	if !ok {
		grade = fmt.Sprintf("%v", raw)
	}

	submission.Grade = grade
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.GradeResponse{}, err
	}

	span.SetAttributes(attribute.String("grade.label", grade))
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Float64("score", score).
		Str("grade", grade).
		Msg("assignment grade resolved")

	return dto.GradeResponse{SubmissionID: submission.ID, Score: score, Grade: grade}, nil
}

// RecalculateAssignment re-derives score and grade for every submission of
// the assignment, one at a time. The loop is deliberately sequential so the
// shared sandbox is not flooded; one failing submission does not stop the
// rest.
func (s *gradeService) RecalculateAssignment(ctx context.Context, assignmentID uint, requester dto.Requester) (dto.RecalculationSummary, error) {
	if requester.ID != 0 && !requester.IsStaff() {
		return dto.RecalculationSummary{}, ErrForbidden
	}

	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RecalculationSummary{}, ErrAssignmentNotFound
		}
		return dto.RecalculationSummary{}, err
	}

	s.invalidateScheme(ctx, assignmentID)

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return dto.RecalculationSummary{}, err
	}

	summary := dto.RecalculationSummary{AssignmentID: assignmentID}
	for _, submission := range submissions {
		if _, err := s.ComputeAssignmentGrade(ctx, submission.ID, requester); err != nil {
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, submission.ID)
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("recalculation failed for submission")
			continue
		}
		summary.Processed++
	}

	return summary, nil
}

func (s *gradeService) loadSubmission(ctx context.Context, submissionID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *gradeService) aggregateAndPersist(ctx context.Context, submission *models.Submission) (float64, error) {
	results := blockResults(*submission)

	totalWeight := 0.0
	for _, result := range results {
		totalWeight += result.Weight
	}
	if len(results) > 0 && totalWeight == 0 {
		s.logger.Warn().Uint("submission_id", submission.ID).Msg("all block weights are zero, aggregate defaults to 0")
	}

	score := grading.AggregateScore(results)
	submission.Score = &score
	if err := s.submissions.Update(ctx, submission); err != nil {
		return 0, err
	}

	return score, nil
}

// blockResults pairs every non-text block with the submission's recorded
// score for it, defaulting to 0 when feedback has never been computed.
func blockResults(submission models.Submission) []grading.BlockResult {
	results := make([]grading.BlockResult, 0, len(submission.Assignment.Blocks))
	for _, block := range submission.Assignment.Blocks {
		if !block.IsScorable() {
			continue
		}

		score := 0.0
		if feedback, ok := submission.FeedbackFor(block.ID); ok && feedback.Score != nil {
			score = *feedback.Score
		}

		results = append(results, grading.BlockResult{Score: score, Weight: block.Weight})
	}
	return results
}

// resolveScheme returns the assignment's grading scheme, falling back to the
// organization default. The resolved script is cached so bulk recalculation
// does not re-resolve it per submission.
func (s *gradeService) resolveScheme(ctx context.Context, assignment models.Assignment) (string, error) {
	cacheKey := fmt.Sprintf("grading:scheme:v1:%d", assignment.ID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			return cached, nil
		}
	}

	scheme := assignment.GradingScheme
	if scheme == "" {
		scheme = s.config.DefaultScheme
	}
	if scheme == "" {
		return "", fmt.Errorf("no grading scheme configured for assignment %d", assignment.ID)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, scheme, s.config.SchemeCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cache grading scheme")
		}
	}

	return scheme, nil
}

func (s *gradeService) invalidateScheme(ctx context.Context, assignmentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, fmt.Sprintf("grading:scheme:v1:%d", assignmentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate grading scheme cache")
	}
}
