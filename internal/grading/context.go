package grading

import (
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/openedu-labs/qfeed-api/internal/models"
)

var commentPolicy = bluemonday.UGCPolicy()

// ContextUser identifies the requesting student inside the sandbox context.
type ContextUser struct {
	ID     uint   `json:"id"`
	Email  string `json:"email"`
	Locale string `json:"locale"`
}

// ContextFile is a resolved assignment file reference.
type ContextFile struct {
	Label string `json:"label"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// AssignmentInfo carries assignment metadata into the sandbox context.
type AssignmentInfo struct {
	ID    uint          `json:"id"`
	Title string        `json:"title"`
	Files []ContextFile `json:"files"`
}

// QuestionInfo carries block metadata into the sandbox context.
type QuestionInfo struct {
	ID     uint    `json:"id"`
	Title  string  `json:"title"`
	Prompt string  `json:"prompt"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

// UploadAnswer holds the files and comment submitted for a file-upload block.
type UploadAnswer struct {
	Files   []models.AnswerFile `json:"files"`
	Comment string              `json:"comment"`
}

// Context is the data object shipped to the sandbox alongside the pipeline.
// The sandbox mutates it freely; the typed struct documents the schema this
// service guarantees on the way in. Score and Stop start zeroed and may be
// overwritten by pipeline steps.
type Context struct {
	Attempt    int            `json:"attempt"`
	User       ContextUser    `json:"user"`
	Assignment AssignmentInfo `json:"assignment"`
	Question   QuestionInfo   `json:"question"`
	Answers    []any          `json:"answers"`
	Upload     *UploadAnswer  `json:"upload,omitempty"`
	Choices    *ChoiceOutcome `json:"choices,omitempty"`
	Score      float64        `json:"score"`
	Stop       bool           `json:"stop"`
	Feedback   []string       `json:"feedback"`
}

// ContextInput bundles everything the context builder needs. No field is read
// from ambient state; the storage bucket comes from injected configuration.
type ContextInput struct {
	Assignment    models.Assignment
	Block         models.Block
	Student       models.Student
	Values        []string
	Answer        *models.Answer
	PriorAttempts int
	StorageBucket string
}

// BuildContext assembles the context object consumed by the pipeline stages.
func BuildContext(in ContextInput) Context {
	ctx := Context{
		Attempt: in.PriorAttempts + 1,
		User: ContextUser{
			ID:     in.Student.ID,
			Email:  in.Student.Email,
			Locale: in.Student.Locale,
		},
		Assignment: AssignmentInfo{
			ID:    in.Assignment.ID,
			Title: in.Assignment.Title,
			Files: resolveFiles(in.Assignment, in.StorageBucket),
		},
		Question: QuestionInfo{
			ID:     in.Block.ID,
			Title:  in.Block.Title,
			Prompt: in.Block.Prompt,
			Kind:   in.Block.Kind,
			Weight: in.Block.Weight,
		},
		Answers:  coerceAnswers(in.Block, defaultedValues(in.Block, in.Values)),
		Feedback: []string{},
	}

	if in.Block.Kind == models.BlockKindFileUpload && in.Answer != nil {
		ctx.Upload = &UploadAnswer{
			Files:   in.Answer.Files,
			Comment: strings.TrimSpace(commentPolicy.Sanitize(in.Answer.Comment)),
		}
	}

	if in.Block.IsChoice() {
		outcome := ScoreChoices(in.Block, parseChoiceIDs(in.Values))
		ctx.Choices = &outcome
	}

	return ctx
}

func resolveFiles(assignment models.Assignment, bucket string) []ContextFile {
	files := make([]ContextFile, 0, len(assignment.Files))
	for _, file := range assignment.Files {
		files = append(files, ContextFile{
			Label: file.Label,
			Name:  file.Name,
			URL:   file.URL(bucket, assignment.StoragePath),
		})
	}
	return files
}

// defaultedValues substitutes the block template when the student supplied
// no input at all.
func defaultedValues(block models.Block, values []string) []string {
	if len(values) == 0 && block.Template != "" {
		return []string{block.Template}
	}
	return values
}

// coerceAnswers converts values to numbers for numeric editors. Unparseable
// input stays a raw string so the sandbox sees what the student typed.
func coerceAnswers(block models.Block, values []string) []any {
	answers := make([]any, 0, len(values))
	for _, value := range values {
		if block.WantsNumericInput() {
			if number, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				answers = append(answers, number)
				continue
			}
		}
		answers = append(answers, value)
	}
	return answers
}

func parseChoiceIDs(values []string) []uint {
	ids := make([]uint, 0, len(values))
	for _, value := range values {
		parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(parsed))
	}
	return ids
}
