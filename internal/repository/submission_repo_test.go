package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openedu-labs/qfeed-api/internal/models"
)

func setupGradingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Assignment{},
		&models.AssignmentFile{},
		&models.Block{},
		&models.Choice{},
		&models.Action{},
		&models.Submission{},
		&models.Answer{},
		&models.BlockFeedback{},
	))
	return db
}

func seedSubmission(t *testing.T, db *gorm.DB) models.Submission {
	t.Helper()

	student := models.Student{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	require.NoError(t, db.Create(&student).Error)

	assignment := models.Assignment{
		Title:       "Loops",
		StoragePath: "assignments/1",
		Files: []models.AssignmentFile{
			{Label: "fixture", Name: "seed.sql", Extension: ".sql"},
		},
		Blocks: []models.Block{
			{Kind: models.BlockKindCode, Title: "Exercise", Weight: 1, Granularity: 1, Position: 1},
		},
	}
	require.NoError(t, db.Create(&assignment).Error)

	submission := models.Submission{AssignmentID: assignment.ID, StudentID: student.ID}
	require.NoError(t, db.Create(&submission).Error)

	submission.Assignment = assignment
	submission.Student = student
	return submission
}

func TestSubmissionRepositoryGetByIDPreloads(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	seeded := seedSubmission(t, db)

	score := 70.0
	feedback := models.BlockFeedback{
		SubmissionID: seeded.ID,
		BlockID:      seeded.Assignment.Blocks[0].ID,
		Score:        &score,
		Attempts:     1,
	}
	require.NoError(t, db.Create(&feedback).Error)

	found, err := repo.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, "Loops", found.Assignment.Title)
	require.Len(t, found.Assignment.Files, 1)
	require.Len(t, found.Assignment.Blocks, 1)
	require.Equal(t, "ada@example.com", found.Student.Email)
	require.Len(t, found.Feedback, 1)
	require.Equal(t, 70.0, *found.Feedback[0].Score)
}

func TestSubmissionRepositoryGetByIDNotFound(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)

	_, err := repo.GetByID(context.Background(), 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryListByAssignment(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	seeded := seedSubmission(t, db)

	second := models.Submission{AssignmentID: seeded.AssignmentID, StudentID: seeded.StudentID}
	require.NoError(t, db.Create(&second).Error)

	listed, err := repo.ListByAssignment(context.Background(), seeded.AssignmentID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, seeded.ID, listed[0].ID)

	empty, err := repo.ListByAssignment(context.Background(), 999)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSubmissionRepositoryUpsertAnswerKeepsSingleRow(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	seeded := seedSubmission(t, db)
	blockID := seeded.Assignment.Blocks[0].ID

	first := models.Answer{
		SubmissionID: seeded.ID,
		BlockID:      blockID,
		Values:       datatypes.JSONSlice[string]{"draft"},
	}
	require.NoError(t, repo.UpsertAnswer(context.Background(), &first))

	second := models.Answer{
		SubmissionID: seeded.ID,
		BlockID:      blockID,
		Values:       datatypes.JSONSlice[string]{"final"},
	}
	require.NoError(t, repo.UpsertAnswer(context.Background(), &second))
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Answer{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var stored models.Answer
	require.NoError(t, db.First(&stored, second.ID).Error)
	require.Equal(t, datatypes.JSONSlice[string]{"final"}, stored.Values)
}

func TestSubmissionRepositorySaveFeedbackCreateThenOverwrite(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	seeded := seedSubmission(t, db)
	blockID := seeded.Assignment.Blocks[0].ID

	score := 40.0
	feedback := models.BlockFeedback{
		SubmissionID: seeded.ID,
		BlockID:      blockID,
		Text:         "Needs work",
		Score:        &score,
		Attempts:     1,
	}
	require.NoError(t, repo.SaveFeedback(context.Background(), &feedback))
	require.NotZero(t, feedback.ID)

	improved := 90.0
	feedback.Text = "Much better"
	feedback.Score = &improved
	feedback.Attempts = 2
	require.NoError(t, repo.SaveFeedback(context.Background(), &feedback))

	var count int64
	require.NoError(t, db.Model(&models.BlockFeedback{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	stored, err := repo.GetFeedback(context.Background(), seeded.ID, blockID)
	require.NoError(t, err)
	require.Equal(t, "Much better", stored.Text)
	require.Equal(t, 90.0, *stored.Score)
	require.Equal(t, 2, stored.Attempts)
}

func TestSubmissionRepositoryGetFeedbackNotFound(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	seeded := seedSubmission(t, db)

	_, err := repo.GetFeedback(context.Background(), seeded.ID, 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
