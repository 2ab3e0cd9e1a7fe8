package grading

import "github.com/openedu-labs/qfeed-api/internal/models"

// ChoiceOutcome carries the score and answer classification produced by
// scoring a multiple-choice block.
type ChoiceOutcome struct {
	Score      float64 `json:"score"`
	Correct    []uint  `json:"correct"`
	Wrong      []uint  `json:"wrong"`
	Unselected []uint  `json:"unselected"`
}

// ScoreChoices grades the selected choice identifiers against the block's
// choice list using its configured assessment method. Selected identifiers
// with no matching choice definition are ignored. The final score is rounded
// to the block's granularity.
func ScoreChoices(block models.Block, selected []uint) ChoiceOutcome {
	byID := make(map[uint]models.Choice, len(block.Choices))
	for _, choice := range block.Choices {
		byID[choice.ID] = choice
	}

	picked := make(map[uint]bool, len(selected))
	for _, id := range selected {
		if _, known := byID[id]; known {
			picked[id] = true
		}
	}

	outcome := ChoiceOutcome{
		Correct:    []uint{},
		Wrong:      []uint{},
		Unselected: []uint{},
	}

	for _, choice := range block.Choices {
		switch {
		case picked[choice.ID] && choice.Correct:
			outcome.Correct = append(outcome.Correct, choice.ID)
		case picked[choice.ID]:
			outcome.Wrong = append(outcome.Wrong, choice.ID)
		default:
			outcome.Unselected = append(outcome.Unselected, choice.ID)
		}
	}

	var score float64
	switch block.AssessmentMethod {
	case models.AssessmentPerAnswer:
		for _, choice := range block.Choices {
			if !picked[choice.ID] {
				continue
			}
			if choice.Correct {
				score += choice.CorrectScore
			} else {
				score += choice.WrongScore
			}
		}
		if block.HasRangeLimit {
			score = clamp(score, 0, 100)
		}
	case models.AssessmentScoreMapping:
		for _, choice := range block.Choices {
			if picked[choice.ID] {
				score += choice.CorrectScore
			} else {
				score += choice.WrongScore
			}
		}
		if block.HasRangeLimit {
			score = clamp(score, 0, 100)
		}
	default: // correctAnswer
		if exactMatch(block.Choices, picked) {
			score = 100
		}
	}

	outcome.Score = RoundToGranularity(score, block.Granularity)
	return outcome
}

// exactMatch reports whether the picked set equals the correct set exactly:
// every correct choice selected and no wrong choice selected.
func exactMatch(choices []models.Choice, picked map[uint]bool) bool {
	for _, choice := range choices {
		if choice.Correct != picked[choice.ID] {
			return false
		}
	}
	return true
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
