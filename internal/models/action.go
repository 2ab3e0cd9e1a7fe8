package models

import (
	"time"

	"gorm.io/datatypes"
)

// Action kinds configurable on a block.
const (
	ActionKindFeedback = "feedback"
	ActionKindScoring  = "scoring"
	ActionKindUnitTest = "unit-test"
	ActionKindIOTest   = "io-test"
	ActionKindWebhook  = "webhook"
	ActionKindDatabase = "database"
	ActionKindGitCheck = "git-check"
	ActionKindFreeCode = "free-code"
)

// UnitTest is a single test definition executed by the sandbox.
type UnitTest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// IOTest feeds an input to the student program and compares its output.
type IOTest struct {
	Name   string `json:"name"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Action is one configured verification step attached to a block. Kind is
// immutable once created; execution order is owned by Block.ActionOrder.
type Action struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	BlockID uint   `gorm:"not null;index" json:"block_id"`
	Kind    string `gorm:"size:32;not null" json:"kind"`

	ScoreExpression string `gorm:"size:512" json:"score_expression"`
	Condition       string `gorm:"size:512" json:"condition"`
	HideFeedback    bool   `json:"hide_feedback"`
	EmbedAnswer     bool   `json:"embed_answer"`
	StopOnMatch     bool   `json:"stop_on_match"`
	IsExpression    bool   `json:"is_expression"`
	TextOnMatch     string `gorm:"type:text" json:"text_on_match"`
	TextOnMismatch  string `gorm:"type:text" json:"text_on_mismatch"`

	Language string                        `gorm:"size:32" json:"language"`
	Tests    datatypes.JSONSlice[UnitTest] `json:"tests"`
	IOTests  datatypes.JSONSlice[IOTest]   `json:"io_tests"`

	WebhookURL string `gorm:"size:512" json:"webhook_url"`

	Dialect   string `gorm:"size:32" json:"dialect"`
	FileLabel string `gorm:"size:255" json:"file_label"`

	RepoURL            string `gorm:"size:512" json:"repo_url"`
	RepoBranch         string `gorm:"size:255" json:"repo_branch"`
	RepoPath           string `gorm:"size:512" json:"repo_path"`
	PrivateKey         string `gorm:"type:text" json:"-"`
	ForceCacheOverride bool   `json:"force_cache_override"`

	Code string `gorm:"type:text" json:"code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
