package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openedu-labs/qfeed-api/internal/dto"
	"github.com/openedu-labs/qfeed-api/internal/grading"
	"github.com/openedu-labs/qfeed-api/internal/models"
	"github.com/openedu-labs/qfeed-api/internal/repository"
	"github.com/openedu-labs/qfeed-api/pkg/sandbox"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrBlockNotFound indicates the block does not exist or belongs to another assignment.
var ErrBlockNotFound = errors.New("block not found")

// ErrUnsupportedFileType indicates an uploaded answer file has a disallowed type.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ErrForbidden indicates the requester may not act on the submission.
var ErrForbidden = errors.New("forbidden")

// authorizeRequester checks that the requester may act on the submission.
// The owning student and staff roles are allowed. A zero requester carries
// no identity (internal callers and routes mounted without authentication)
// and is not restricted.
func authorizeRequester(requester dto.Requester, submission models.Submission) error {
	if requester.ID == 0 || requester.IsStaff() || requester.ID == submission.StudentID {
		return nil
	}
	return ErrForbidden
}

// FeedbackService computes automated feedback for one block of a submission.
type FeedbackService interface {
	ComputeBlockFeedback(ctx context.Context, blockID uint, requester dto.Requester, payload dto.FeedbackRequest, files []*multipart.FileHeader) (dto.BlockFeedbackResponse, error)
}

// FeedbackConfig carries the injected configuration the service needs.
type FeedbackConfig struct {
	StorageBucket string
}

type feedbackService struct {
	submissions repository.SubmissionRepository
	blocks      repository.BlockRepository
	sandbox     sandbox.Client
	validator   *validator.Validate
	logger      zerolog.Logger
	config      FeedbackConfig
	locks       submissionLocks
}

// NewFeedbackService constructs the feedback computation service.
func NewFeedbackService(submissionRepo repository.SubmissionRepository, blockRepo repository.BlockRepository, client sandbox.Client, validate *validator.Validate, logger zerolog.Logger, cfg FeedbackConfig) FeedbackService {
	return &feedbackService{
		submissions: submissionRepo,
		blocks:      blockRepo,
		sandbox:     client,
		validator:   validate,
		logger:      logger.With().Str("component", "feedback_service").Logger(),
		config:      cfg,
	}
}

func (s *feedbackService) ComputeBlockFeedback(ctx context.Context, blockID uint, requester dto.Requester, payload dto.FeedbackRequest, files []*multipart.FileHeader) (dto.BlockFeedbackResponse, error) {
	tracer := otel.Tracer("github.com/openedu-labs/qfeed-api/internal/service/feedback")
	ctx, span := tracer.Start(ctx, "feedback.compute")
	span.SetAttributes(
		attribute.Int64("feedback.block_id", int64(blockID)),
		attribute.Int64("feedback.submission_id", int64(payload.SubmissionID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.BlockFeedbackResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, payload.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BlockFeedbackResponse{}, ErrSubmissionNotFound
		}
		return dto.BlockFeedbackResponse{}, err
	}

	if err := authorizeRequester(requester, submission); err != nil {
		return dto.BlockFeedbackResponse{}, err
	}

	block, err := s.blocks.GetByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BlockFeedbackResponse{}, ErrBlockNotFound
		}
		return dto.BlockFeedbackResponse{}, err
	}

	if block.AssignmentID != submission.AssignmentID {
		return dto.BlockFeedbackResponse{}, ErrBlockNotFound
	}

	// Block feedback entries mutate in place; hold the per-submission lock
	// so concurrent requests cannot interleave recomputations.
	unlock := s.locks.lock(submission.ID)
	defer unlock()

	answer, err := s.storeAnswer(ctx, submission, block, payload, files)
	if err != nil {
		return dto.BlockFeedbackResponse{}, err
	}

	priorAttempts := 0
	feedback, err := s.submissions.GetFeedback(ctx, submission.ID, block.ID)
	switch {
	case err == nil:
		priorAttempts = feedback.Attempts
	case errors.Is(err, gorm.ErrRecordNotFound):
		feedback = models.BlockFeedback{SubmissionID: submission.ID, BlockID: block.ID}
	default:
		return dto.BlockFeedbackResponse{}, err
	}

	feedbackContext := grading.BuildContext(grading.ContextInput{
		Assignment:    submission.Assignment,
		Block:         block,
		Student:       submission.Student,
		Values:        payload.Values,
		Answer:        answer,
		PriorAttempts: priorAttempts,
		StorageBucket: s.config.StorageBucket,
	})

	pipeline := grading.BuildPipeline(block.OrderedActions(), grading.PipelineMeta{
		Assignment:    submission.Assignment,
		StorageBucket: s.config.StorageBucket,
	})

	result, err := s.sandbox.Dispatch(ctx, feedbackContext, pipeline)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sandbox_dispatch_failed")
		return dto.BlockFeedbackResponse{}, fmt.Errorf("dispatch feedback pipeline: %w", err)
	}

	score := extractScore(result)
	score = grading.RoundToGranularity(score, block.Granularity)

	text, err := grading.RenderFeedback(result.Data, extractFragments(result), submission.Student)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render_failed")
		return dto.BlockFeedbackResponse{}, err
	}

	feedback.Text = text
	feedback.Log = datatypes.JSONSlice[string](result.Log)
	feedback.ExitCode = result.Code
	feedback.Score = &score
	feedback.Attempts = priorAttempts + 1

	if err := s.submissions.SaveFeedback(ctx, &feedback); err != nil {
		return dto.BlockFeedbackResponse{}, err
	}

	span.SetAttributes(
		attribute.Float64("feedback.score", score),
		attribute.Int("feedback.exit_code", result.Code),
	)
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("block_id", block.ID).
		Int("attempt", feedback.Attempts).
		Int("exit_code", result.Code).
		Msg("block feedback computed")

	return dto.NewBlockFeedbackResponse(feedback), nil
}

// storeAnswer upserts the student's answer for the block, validating uploaded
// files for file-upload blocks. Storing the files themselves is owned by the
// storage service; only the reference is recorded here.
func (s *feedbackService) storeAnswer(ctx context.Context, submission models.Submission, block models.Block, payload dto.FeedbackRequest, files []*multipart.FileHeader) (*models.Answer, error) {
	answer := models.Answer{
		SubmissionID: submission.ID,
		BlockID:      block.ID,
		Values:       datatypes.JSONSlice[string](payload.Values),
		Comment:      payload.Comment,
	}

	if block.Kind == models.BlockKindFileUpload {
		refs := make([]models.AnswerFile, 0, len(files))
		for _, file := range files {
			ref, err := s.validateAnswerFile(submission.ID, file)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
		answer.Files = datatypes.JSONSlice[models.AnswerFile](refs)
	}

	if err := s.submissions.UpsertAnswer(ctx, &answer); err != nil {
		return nil, err
	}

	return &answer, nil
}

func (s *feedbackService) validateAnswerFile(submissionID uint, file *multipart.FileHeader) (models.AnswerFile, error) {
	reader, err := file.Open()
	if err != nil {
		return models.AnswerFile{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return models.AnswerFile{}, fmt.Errorf("failed to detect file type: %w", err)
	}

	allowed := []string{"application/pdf", "application/zip", "application/x-zip-compressed", "text/plain", "image/png", "image/jpeg"}
	permitted := false
	for _, a := range allowed {
		if mime.Is(a) {
			permitted = true
			break
		}
	}
	if !permitted {
		return models.AnswerFile{}, fmt.Errorf("%w: %s", ErrUnsupportedFileType, mime.String())
	}

	return models.AnswerFile{
		Name:        file.Filename,
		URL:         fmt.Sprintf("https://storage.googleapis.com/%s/submissions/%d/%s", s.config.StorageBucket, submissionID, file.Filename),
		ContentType: mime.String(),
		Size:        file.Size,
	}, nil
}

// extractScore reads the score the pipeline computed. A non-zero exit code
// forces the score to 0 regardless of what the sandbox reported.
func extractScore(result sandbox.Result) float64 {
	if result.Code != 0 {
		return 0
	}
	if raw, ok := result.Data["score"]; ok {
		if score, ok := raw.(float64); ok {
			return score
		}
	}
	return 0
}

// extractFragments collects the feedback fragments the pipeline accumulated.
func extractFragments(result sandbox.Result) []string {
	raw, ok := result.Data["feedback"]
	if !ok {
		return nil
	}

	switch typed := raw.(type) {
	case []string:
		return typed
	case []any:
		fragments := make([]string, 0, len(typed))
		for _, item := range typed {
			if text, ok := item.(string); ok {
				fragments = append(fragments, text)
			}
		}
		return fragments
	default:
		return nil
	}
}

// submissionLocks hands out one mutex per submission so each submission has
// a single writer at a time. Entries are reference counted and removed once
// the last holder releases, keeping the map bounded by in-flight submissions.
type submissionLocks struct {
	mu    sync.Mutex
	locks map[uint]*submissionLock
}

type submissionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *submissionLocks) lock(submissionID uint) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uint]*submissionLock)
	}
	entry, ok := l.locks[submissionID]
	if !ok {
		entry = &submissionLock{}
		l.locks[submissionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, submissionID)
		}
		l.mu.Unlock()
	}
}
