package grading

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/openedu-labs/qfeed-api/internal/models"
)

func TestBuildContextAttemptCounter(t *testing.T) {
	ctx := BuildContext(ContextInput{
		Block:         models.Block{ID: 1, Kind: models.BlockKindOpen},
		PriorAttempts: 0,
	})
	require.Equal(t, 1, ctx.Attempt)

	ctx = BuildContext(ContextInput{
		Block:         models.Block{ID: 1, Kind: models.BlockKindOpen},
		PriorAttempts: 4,
	})
	require.Equal(t, 5, ctx.Attempt)
}

func TestBuildContextUserAndQuestion(t *testing.T) {
	ctx := BuildContext(ContextInput{
		Assignment: models.Assignment{ID: 7, Title: "Databases 101"},
		Block: models.Block{
			ID:     3,
			Kind:   models.BlockKindCode,
			Title:  "Joins",
			Prompt: "Write the query.",
			Weight: 2,
		},
		Student: models.Student{ID: 9, Email: "ada@example.com", Locale: "nl"},
	})

	require.Equal(t, uint(9), ctx.User.ID)
	require.Equal(t, "ada@example.com", ctx.User.Email)
	require.Equal(t, "nl", ctx.User.Locale)
	require.Equal(t, uint(7), ctx.Assignment.ID)
	require.Equal(t, uint(3), ctx.Question.ID)
	require.Equal(t, float64(2), ctx.Question.Weight)
	require.Zero(t, ctx.Score)
	require.False(t, ctx.Stop)
	require.NotNil(t, ctx.Feedback)
	require.Empty(t, ctx.Feedback)
}

func TestBuildContextResolvesAssignmentFiles(t *testing.T) {
	ctx := BuildContext(ContextInput{
		Assignment: models.Assignment{
			ID:          7,
			StoragePath: "assignments/7",
			Files: []models.AssignmentFile{
				{ID: 5, Label: "fixture", Name: "seed.sql", Extension: ".sql"},
			},
		},
		Block:         models.Block{ID: 1, Kind: models.BlockKindDatabase},
		StorageBucket: "qfeed-files",
	})

	require.Len(t, ctx.Assignment.Files, 1)
	require.Equal(t, "fixture", ctx.Assignment.Files[0].Label)
	require.Equal(t, "https://storage.googleapis.com/qfeed-files/assignments/7/5.sql", ctx.Assignment.Files[0].URL)
}

func TestBuildContextTemplateDefault(t *testing.T) {
	block := models.Block{ID: 1, Kind: models.BlockKindCode, Template: "def solve():\n    pass"}

	ctx := BuildContext(ContextInput{Block: block})
	require.Equal(t, []any{"def solve():\n    pass"}, ctx.Answers)

	// An actual answer wins over the template.
	ctx = BuildContext(ContextInput{Block: block, Values: []string{"def solve():\n    return 42"}})
	require.Equal(t, []any{"def solve():\n    return 42"}, ctx.Answers)
}

func TestBuildContextNumericCoercion(t *testing.T) {
	block := models.Block{ID: 1, Kind: models.BlockKindOpen, Editor: models.EditorNumber}

	ctx := BuildContext(ContextInput{Block: block, Values: []string{"42", " 3.14 ", "not a number"}})

	require.Equal(t, []any{42.0, 3.14, "not a number"}, ctx.Answers)
}

func TestBuildContextKeepsStringsForTextEditors(t *testing.T) {
	block := models.Block{ID: 1, Kind: models.BlockKindOpen}

	ctx := BuildContext(ContextInput{Block: block, Values: []string{"42"}})

	require.Equal(t, []any{"42"}, ctx.Answers)
}

func TestBuildContextChoiceOutcome(t *testing.T) {
	block := models.Block{
		ID:               1,
		Kind:             models.BlockKindMultipleChoice,
		AssessmentMethod: models.AssessmentCorrectAnswer,
		Granularity:      1,
		Choices: []models.Choice{
			{ID: 10, Correct: true},
			{ID: 11, Correct: false},
		},
	}

	ctx := BuildContext(ContextInput{Block: block, Values: []string{"10", "garbage"}})

	require.NotNil(t, ctx.Choices)
	require.Equal(t, float64(100), ctx.Choices.Score)
	require.Equal(t, []uint{10}, ctx.Choices.Correct)
}

func TestBuildContextUploadAnswer(t *testing.T) {
	block := models.Block{ID: 1, Kind: models.BlockKindFileUpload}
	answer := models.Answer{
		Comment: `See attached <script>alert("x")</script> report`,
		Files: datatypes.JSONSlice[models.AnswerFile]{
			{Name: "report.pdf", URL: "https://storage.googleapis.com/b/submissions/1/report.pdf"},
		},
	}

	ctx := BuildContext(ContextInput{Block: block, Answer: &answer})

	require.NotNil(t, ctx.Upload)
	require.Len(t, ctx.Upload.Files, 1)
	require.NotContains(t, ctx.Upload.Comment, "<script>")
	require.Contains(t, ctx.Upload.Comment, "See attached")
}

func TestBuildContextNoUploadForOtherKinds(t *testing.T) {
	block := models.Block{ID: 1, Kind: models.BlockKindOpen}
	answer := models.Answer{Comment: "hello"}

	ctx := BuildContext(ContextInput{Block: block, Answer: &answer})

	require.Nil(t, ctx.Upload)
}
