package models

import (
	"time"

	"gorm.io/datatypes"
)

// Block kinds supported by the assignment editor.
const (
	BlockKindText           = "text"
	BlockKindOpen           = "open"
	BlockKindCode           = "code"
	BlockKindMultipleChoice = "multiple-choice"
	BlockKindDatabase       = "database"
	BlockKindFileUpload     = "file-upload"
)

// Assessment methods for multiple-choice blocks.
const (
	AssessmentCorrectAnswer = "correctAnswer"
	AssessmentPerAnswer     = "perAnswer"
	AssessmentScoreMapping  = "scoreMapping"
)

// Editor types that demand numeric input coercion.
const EditorNumber = "number"

// Block is a single question inside an assignment.
type Block struct {
	ID               uint                     `gorm:"primaryKey" json:"id"`
	AssignmentID     uint                     `gorm:"not null;index" json:"assignment_id"`
	Kind             string                   `gorm:"size:32;not null" json:"kind"`
	Title            string                   `gorm:"size:255" json:"title"`
	Prompt           string                   `gorm:"type:text" json:"prompt"`
	Editor           string                   `gorm:"size:32" json:"editor"`
	Template         string                   `gorm:"type:text" json:"template"`
	Weight           float64                  `gorm:"not null;default:1" json:"weight"`
	Granularity      float64                  `gorm:"not null;default:1" json:"granularity"`
	AssessmentMethod string                   `gorm:"size:32" json:"assessment_method"`
	HasRangeLimit    bool                     `json:"has_range_limit"`
	Position         int                      `json:"position"`
	ActionOrder      datatypes.JSONSlice[uint] `json:"action_order"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
	Choices          []Choice                 `json:"choices"`
	Actions          []Action                 `json:"actions"`
}

// Choice is one selectable option of a multiple-choice block.
type Choice struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	BlockID      uint    `gorm:"not null;index" json:"block_id"`
	Label        string  `gorm:"size:512" json:"label"`
	Correct      bool    `json:"correct"`
	CorrectScore float64 `json:"correct_score"`
	WrongScore   float64 `json:"wrong_score"`
}

// IsScorable reports whether the block participates in score aggregation.
func (b Block) IsScorable() bool {
	return b.Kind != BlockKindText
}

// IsChoice reports whether the block is a multiple-choice question.
func (b Block) IsChoice() bool {
	return b.Kind == BlockKindMultipleChoice
}

// WantsNumericInput reports whether submitted values must be coerced to numbers.
func (b Block) WantsNumericInput() bool {
	return b.Editor == EditorNumber
}

// OrderedActions returns the block actions in the order given by the stored
// action-id list. Actions missing from the list keep their relative load
// order and follow the listed ones.
func (b Block) OrderedActions() []Action {
	if len(b.ActionOrder) == 0 {
		return b.Actions
	}

	byID := make(map[uint]Action, len(b.Actions))
	for _, action := range b.Actions {
		byID[action.ID] = action
	}

	ordered := make([]Action, 0, len(b.Actions))
	seen := make(map[uint]bool, len(b.ActionOrder))
	for _, id := range b.ActionOrder {
		if action, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, action)
			seen[id] = true
		}
	}

	for _, action := range b.Actions {
		if !seen[action.ID] {
			ordered = append(ordered, action)
		}
	}

	return ordered
}
