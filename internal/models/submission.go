package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is a student's full attempt at an assignment. Score and grade
// are derived data, recomputable at any time from the feedback set.
type Submission struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	AssignmentID uint            `gorm:"not null;index" json:"assignment_id"`
	StudentID    uint            `gorm:"not null;index" json:"student_id"`
	Score        *float64        `json:"score"`
	Grade        string          `gorm:"size:64" json:"grade"`
	Submitted    bool            `json:"submitted"`
	Approved     bool            `json:"approved"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Assignment   Assignment      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student      Student         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	Answers      []Answer        `json:"answers"`
	Feedback     []BlockFeedback `json:"feedback"`
}

// AnswerFile references a student-uploaded file attached to an answer.
type AnswerFile struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Answer is a student's response to one block. At most one answer set exists
// per (submission, block) pair.
type Answer struct {
	ID           uint                            `gorm:"primaryKey" json:"id"`
	SubmissionID uint                            `gorm:"not null;uniqueIndex:idx_answer_submission_block" json:"submission_id"`
	BlockID      uint                            `gorm:"not null;uniqueIndex:idx_answer_submission_block" json:"block_id"`
	Values       datatypes.JSONSlice[string]     `json:"values"`
	Comment      string                          `gorm:"type:text" json:"comment"`
	Files        datatypes.JSONSlice[AnswerFile] `json:"files"`
	CreatedAt    time.Time                       `json:"created_at"`
	UpdatedAt    time.Time                       `json:"updated_at"`
}

// BlockFeedback is the computed result for one block of one submission.
// Score stays nil until computed at least once; the attempt counter only
// ever increments.
type BlockFeedback struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	SubmissionID uint                        `gorm:"not null;uniqueIndex:idx_feedback_submission_block" json:"submission_id"`
	BlockID      uint                        `gorm:"not null;uniqueIndex:idx_feedback_submission_block" json:"block_id"`
	Text         string                      `gorm:"type:text" json:"text"`
	Log          datatypes.JSONSlice[string] `json:"log"`
	ExitCode     int                         `json:"exit_code"`
	Score        *float64                    `json:"score"`
	Attempts     int                         `gorm:"not null;default:0" json:"attempts"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// IsScored reports whether feedback has been computed at least once.
func (f BlockFeedback) IsScored() bool {
	return f.Score != nil
}

// FeedbackFor returns the submission's feedback entry for a block, if any.
func (s Submission) FeedbackFor(blockID uint) (BlockFeedback, bool) {
	for _, feedback := range s.Feedback {
		if feedback.BlockID == blockID {
			return feedback, true
		}
	}
	return BlockFeedback{}, false
}

// AnswerFor returns the submission's answer for a block, if any.
func (s Submission) AnswerFor(blockID uint) (Answer, bool) {
	for _, answer := range s.Answers {
		if answer.BlockID == blockID {
			return answer, true
		}
	}
	return Answer{}, false
}
