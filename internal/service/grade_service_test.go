package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openedu-labs/qfeed-api/internal/dto"
	"github.com/openedu-labs/qfeed-api/internal/grading"
	"github.com/openedu-labs/qfeed-api/internal/models"
	"github.com/openedu-labs/qfeed-api/pkg/sandbox"
)

// staffRequester may recalculate assignments and read any submission.
var staffRequester = dto.Requester{ID: 1, Role: models.RoleTeacher}

func sandboxResultWith(result any) sandbox.Result {
	data := map[string]any{}
	if result != nil {
		data["result"] = result
	}
	return sandbox.Result{Data: data}
}

type stubAssignmentRepo struct {
	assignment models.Assignment
	err        error
}

func (s *stubAssignmentRepo) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	if s.err != nil {
		return models.Assignment{}, s.err
	}
	if s.assignment.ID == 0 || s.assignment.ID != id {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return s.assignment, nil
}

func gradeFixture() (*stubSubmissionRepo, *stubAssignmentRepo) {
	scoreA := 80.0
	scoreB := 60.0
	assignment := models.Assignment{
		ID:            7,
		Title:         "Loops",
		GradingScheme: `result = input.score >= 55 ? "pass" : "fail";`,
		Blocks: []models.Block{
			{ID: 1, AssignmentID: 7, Kind: models.BlockKindText, Weight: 1},
			{ID: 3, AssignmentID: 7, Kind: models.BlockKindCode, Weight: 1},
			{ID: 4, AssignmentID: 7, Kind: models.BlockKindOpen, Weight: 3},
		},
	}

	submissions := &stubSubmissionRepo{
		submission: models.Submission{
			ID:           11,
			AssignmentID: 7,
			StudentID:    9,
			Assignment:   assignment,
			Student:      models.Student{ID: 9, Email: "ada@example.com"},
			Feedback: []models.BlockFeedback{
				{SubmissionID: 11, BlockID: 3, Score: &scoreA},
				{SubmissionID: 11, BlockID: 4, Score: &scoreB},
			},
		},
	}

	return submissions, &stubAssignmentRepo{assignment: assignment}
}

func newGradeServiceForTest(submissions *stubSubmissionRepo, assignments *stubAssignmentRepo, box *stubSandbox, cache *redis.Client) GradeService {
	return NewGradeService(submissions, assignments, box, cache, zerolog.Nop(), GradeConfig{
		DefaultScheme:  `result = "default";`,
		SchemeCacheTTL: time.Minute,
	})
}

func TestComputeAssignmentScoreWeightedAggregate(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	// Text block excluded; (80*1 + 60*3) / 4 = 65.
	response, err := svc.ComputeAssignmentScore(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	require.Equal(t, uint(11), response.SubmissionID)
	require.Equal(t, 65.0, response.Score)
	require.NotNil(t, submissions.updated)
	require.Equal(t, 65.0, *submissions.updated.Score)
	require.Zero(t, box.calls)
}

func TestComputeAssignmentScoreMissingFeedbackCountsAsZero(t *testing.T) {
	submissions, assignments := gradeFixture()
	submissions.submission.Feedback = submissions.submission.Feedback[:1]
	svc := newGradeServiceForTest(submissions, assignments, &stubSandbox{}, nil)

	// (80*1 + 0*3) / 4 = 20.
	response, err := svc.ComputeAssignmentScore(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	require.Equal(t, 20.0, response.Score)
}

func TestComputeAssignmentScoreZeroWeights(t *testing.T) {
	submissions, assignments := gradeFixture()
	for i := range submissions.submission.Assignment.Blocks {
		submissions.submission.Assignment.Blocks[i].Weight = 0
	}
	svc := newGradeServiceForTest(submissions, assignments, &stubSandbox{}, nil)

	response, err := svc.ComputeAssignmentScore(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	require.Zero(t, response.Score)
}

func TestComputeAssignmentScoreSubmissionNotFound(t *testing.T) {
	submissions, assignments := gradeFixture()
	svc := newGradeServiceForTest(submissions, assignments, &stubSandbox{}, nil)

	_, err := svc.ComputeAssignmentScore(context.Background(), 999, ownerRequester)

	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestComputeAssignmentGradeResolvesLabel(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith("pass")}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	response, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	require.Equal(t, "pass", response.Grade)
	require.Equal(t, 65.0, response.Score)
	require.Equal(t, "pass", submissions.updated.Grade)

	// The scheme runs as a single code step over {score, questions}.
	steps, ok := box.pipeline.([]grading.Step)
	require.True(t, ok)
	require.Len(t, steps, 1)
	require.Equal(t, grading.StepCode, steps[0].Action)
	require.Equal(t, `result = input.score >= 55 ? "pass" : "fail";`, steps[0].Options["code"])

	input, ok := box.data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, 65.0, input["score"])
	questions, ok := input["questions"].([]grading.BlockResult)
	require.True(t, ok)
	require.Len(t, questions, 2)
}

func TestComputeAssignmentGradeUnresolved(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith(nil)}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	_, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)

	require.ErrorIs(t, err, ErrGradeUnresolved)
}

func TestComputeAssignmentGradeNonStringResult(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith(8.5)}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	response, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	require.Equal(t, "8.5", response.Grade)
}

func TestComputeAssignmentGradeFallsBackToDefaultScheme(t *testing.T) {
	submissions, assignments := gradeFixture()
	submissions.submission.Assignment.GradingScheme = ""
	box := &stubSandbox{result: sandboxResultWith("default-grade")}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	_, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	steps := box.pipeline.([]grading.Step)
	require.Equal(t, `result = "default";`, steps[0].Options["code"])
}

func TestComputeAssignmentGradeNoSchemeConfigured(t *testing.T) {
	submissions, assignments := gradeFixture()
	submissions.submission.Assignment.GradingScheme = ""
	box := &stubSandbox{result: sandboxResultWith("pass")}
	svc := NewGradeService(submissions, assignments, box, nil, zerolog.Nop(), GradeConfig{})

	_, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)

	require.Error(t, err)
	require.Zero(t, box.calls)
}

func TestComputeAssignmentGradeUsesCachedScheme(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, mr.Set("grading:scheme:v1:7", `result = "cached";`))

	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith("pass")}
	svc := newGradeServiceForTest(submissions, assignments, box, cache)

	_, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	steps := box.pipeline.([]grading.Step)
	require.Equal(t, `result = "cached";`, steps[0].Options["code"])
}

func TestComputeAssignmentGradePopulatesSchemeCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith("pass")}
	svc := newGradeServiceForTest(submissions, assignments, box, cache)

	_, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)

	require.NoError(t, err)
	cached, err := mr.Get("grading:scheme:v1:7")
	require.NoError(t, err)
	require.Equal(t, `result = input.score >= 55 ? "pass" : "fail";`, cached)
}

func TestRecalculateAssignment(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith("pass")}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	summary, err := svc.RecalculateAssignment(context.Background(), 7, staffRequester)

	require.NoError(t, err)
	require.Equal(t, uint(7), summary.AssignmentID)
	require.Equal(t, 1, summary.Processed)
	require.Zero(t, summary.Failed)
}

func TestRecalculateAssignmentInvalidatesSchemeCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, mr.Set("grading:scheme:v1:7", `result = "stale";`))

	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith("pass")}
	svc := newGradeServiceForTest(submissions, assignments, box, cache)

	_, err := svc.RecalculateAssignment(context.Background(), 7, staffRequester)

	require.NoError(t, err)
	cached, err := mr.Get("grading:scheme:v1:7")
	require.NoError(t, err)
	require.Equal(t, `result = input.score >= 55 ? "pass" : "fail";`, cached)
}

func TestRecalculateAssignmentContinuesPastFailures(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{err: errors.New("sandbox down")}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	summary, err := svc.RecalculateAssignment(context.Background(), 7, staffRequester)

	require.NoError(t, err)
	require.Zero(t, summary.Processed)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, []uint{11}, summary.FailedIDs)
}

func TestComputeAssignmentScoreIdempotent(t *testing.T) {
	submissions, assignments := gradeFixture()
	svc := newGradeServiceForTest(submissions, assignments, &stubSandbox{}, nil)

	first, err := svc.ComputeAssignmentScore(context.Background(), 11, ownerRequester)
	require.NoError(t, err)
	second, err := svc.ComputeAssignmentScore(context.Background(), 11, ownerRequester)
	require.NoError(t, err)

	// Recomputation overwrites the stored aggregate, it never accumulates.
	require.Equal(t, first.Score, second.Score)
	require.Equal(t, 65.0, second.Score)
	require.Equal(t, 65.0, *submissions.updated.Score)
}

func TestComputeAssignmentGradeIdempotent(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{result: sandboxResultWith("pass")}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	first, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)
	require.NoError(t, err)
	second, err := svc.ComputeAssignmentGrade(context.Background(), 11, ownerRequester)
	require.NoError(t, err)

	require.Equal(t, first.Score, second.Score)
	require.Equal(t, first.Grade, second.Grade)
	require.Equal(t, 65.0, second.Score)
	require.Equal(t, "pass", second.Grade)
	require.Equal(t, 65.0, *submissions.updated.Score)
	require.Equal(t, "pass", submissions.updated.Grade)
}

func TestComputeAssignmentScoreForbiddenForOtherStudent(t *testing.T) {
	submissions, assignments := gradeFixture()
	svc := newGradeServiceForTest(submissions, assignments, &stubSandbox{}, nil)

	other := dto.Requester{ID: 42, Role: models.RoleStudent}
	_, err := svc.ComputeAssignmentScore(context.Background(), 11, other)

	require.ErrorIs(t, err, ErrForbidden)
	require.Nil(t, submissions.updated)
}

func TestRecalculateAssignmentForbiddenForStudents(t *testing.T) {
	submissions, assignments := gradeFixture()
	box := &stubSandbox{}
	svc := newGradeServiceForTest(submissions, assignments, box, nil)

	_, err := svc.RecalculateAssignment(context.Background(), 7, ownerRequester)

	require.ErrorIs(t, err, ErrForbidden)
	require.Zero(t, box.calls)
}

func TestRecalculateAssignmentNotFound(t *testing.T) {
	submissions, assignments := gradeFixture()
	svc := newGradeServiceForTest(submissions, assignments, &stubSandbox{}, nil)

	_, err := svc.RecalculateAssignment(context.Background(), 404, staffRequester)

	require.ErrorIs(t, err, ErrAssignmentNotFound)
}
