package dto

import "github.com/openedu-labs/qfeed-api/internal/models"

// FeedbackRequest carries a student's answer for one block together with the
// submission it belongs to.
type FeedbackRequest struct {
	SubmissionID uint     `json:"submission_id" validate:"required"`
	Values       []string `json:"values"`
	Comment      string   `json:"comment"`
}

// AnswerFileUpload describes one uploaded answer file after validation.
type AnswerFileUpload struct {
	Name        string `json:"name" validate:"required"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// BlockFeedbackResponse is the API shape of a computed block feedback entry.
type BlockFeedbackResponse struct {
	BlockID  uint     `json:"block_id"`
	Text     string   `json:"text"`
	Log      []string `json:"log"`
	ExitCode int      `json:"exit_code"`
	Score    *float64 `json:"score"`
	Attempts int      `json:"attempts"`
}

// NewBlockFeedbackResponse maps a feedback model to its API representation.
func NewBlockFeedbackResponse(feedback models.BlockFeedback) BlockFeedbackResponse {
	return BlockFeedbackResponse{
		BlockID:  feedback.BlockID,
		Text:     feedback.Text,
		Log:      []string(feedback.Log),
		ExitCode: feedback.ExitCode,
		Score:    feedback.Score,
		Attempts: feedback.Attempts,
	}
}
