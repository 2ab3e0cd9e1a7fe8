package grading

import "github.com/openedu-labs/qfeed-api/internal/models"

// Step tags understood by the sandbox.
const (
	StepConditionalText = "conditional-text"
	StepUnitTest        = "unit-test"
	StepWebhook         = "webhook"
	StepDatabase        = "database"
	StepGitCheck        = "git-check"
	StepCode            = "code"
	StepRunCode         = "run-code"
)

// DefaultDatabaseDialect is applied when a database action leaves the
// dialect unset.
const DefaultDatabaseDialect = "postgresql"

// Step is one unit of work sent to the sandbox. Steps execute strictly in
// the order submitted.
type Step struct {
	Action  string         `json:"action"`
	Options map[string]any `json:"options"`
}

// PipelineMeta carries the assignment-level data step builders may need.
type PipelineMeta struct {
	Assignment    models.Assignment
	StorageBucket string
}

// stepBuilder produces the step tag and kind-specific options for one action.
type stepBuilder func(action models.Action, meta PipelineMeta) (string, map[string]any)

// stepBuilders enumerates every supported action kind. Unlisted kinds fall
// back to a plain run-code step.
var stepBuilders = map[string]stepBuilder{
	models.ActionKindFeedback: buildConditionalText,
	models.ActionKindScoring:  buildConditionalText,
	models.ActionKindUnitTest: buildUnitTest,
	models.ActionKindIOTest:   buildIOTest,
	models.ActionKindWebhook:  buildWebhook,
	models.ActionKindDatabase: buildDatabase,
	models.ActionKindGitCheck: buildGitCheck,
	models.ActionKindFreeCode: buildFreeCode,
}

// BuildPipeline maps each action to one pipeline step, preserving the given
// order. Stop-on-match semantics are owned by the sandbox; the builder only
// supplies the flag.
func BuildPipeline(actions []models.Action, meta PipelineMeta) []Step {
	steps := make([]Step, 0, len(actions))
	for _, action := range actions {
		builder, ok := stepBuilders[action.Kind]
		if !ok {
			builder = buildRunCode
		}

		tag, options := builder(action, meta)
		applyCommonOptions(options, action)
		steps = append(steps, Step{Action: tag, Options: options})
	}
	return steps
}

// applyCommonOptions layers the options every step inherits from its action.
func applyCommonOptions(options map[string]any, action models.Action) {
	options["scoreExpression"] = action.ScoreExpression
	options["condition"] = action.Condition
	options["embedAnswer"] = action.EmbedAnswer
	options["stopOnMatch"] = action.StopOnMatch
	if _, forced := options["hideFeedback"]; !forced {
		options["hideFeedback"] = action.HideFeedback
	}
}

func buildConditionalText(action models.Action, _ PipelineMeta) (string, map[string]any) {
	return StepConditionalText, map[string]any{
		"textOnMatch":    action.TextOnMatch,
		"textOnMismatch": action.TextOnMismatch,
		"isExpression":   action.IsExpression,
	}
}

func buildUnitTest(action models.Action, _ PipelineMeta) (string, map[string]any) {
	return StepUnitTest, map[string]any{
		"language": action.Language,
		"tests":    []models.UnitTest(action.Tests),
	}
}

// buildIOTest shares the unit-test step tag; the io-test definitions and the
// derived input list distinguish it on the sandbox side.
func buildIOTest(action models.Action, _ PipelineMeta) (string, map[string]any) {
	inputs := make([]string, 0, len(action.IOTests))
	for _, test := range action.IOTests {
		inputs = append(inputs, test.Input)
	}

	return StepUnitTest, map[string]any{
		"language": action.Language,
		"ioTests":  []models.IOTest(action.IOTests),
		"inputs":   inputs,
	}
}

func buildWebhook(action models.Action, _ PipelineMeta) (string, map[string]any) {
	return StepWebhook, map[string]any{
		"url": action.WebhookURL,
	}
}

// buildDatabase resolves the fixture file URL by label. A missing label maps
// to an empty URL; whether that is fatal is the sandbox's call.
func buildDatabase(action models.Action, meta PipelineMeta) (string, map[string]any) {
	dialect := action.Dialect
	if dialect == "" {
		dialect = DefaultDatabaseDialect
	}

	fileURL := ""
	if file, ok := meta.Assignment.FileByLabel(action.FileLabel); ok {
		fileURL = file.URL(meta.StorageBucket, meta.Assignment.StoragePath)
	}

	return StepDatabase, map[string]any{
		"dialect": dialect,
		"fileUrl": fileURL,
	}
}

func buildGitCheck(action models.Action, _ PipelineMeta) (string, map[string]any) {
	return StepGitCheck, map[string]any{
		"url":                action.RepoURL,
		"branch":             action.RepoBranch,
		"path":               action.RepoPath,
		"privateKey":         action.PrivateKey,
		"forceCacheOverride": action.ForceCacheOverride,
	}
}

// buildFreeCode always hides feedback for the free-form code kind.
func buildFreeCode(action models.Action, _ PipelineMeta) (string, map[string]any) {
	return StepCode, map[string]any{
		"code":         action.Code,
		"hideFeedback": true,
	}
}

func buildRunCode(_ models.Action, _ PipelineMeta) (string, map[string]any) {
	return StepRunCode, map[string]any{}
}
