package dto

// ScoreResponse reports a freshly aggregated assignment score.
type ScoreResponse struct {
	SubmissionID uint    `json:"submission_id"`
	Score        float64 `json:"score"`
}

// GradeResponse reports a freshly resolved grade label.
type GradeResponse struct {
	SubmissionID uint    `json:"submission_id"`
	Score        float64 `json:"score"`
	Grade        string  `json:"grade"`
}

// RecalculationSummary reports the outcome of a bulk recomputation.
type RecalculationSummary struct {
	AssignmentID uint   `json:"assignment_id"`
	Processed    int    `json:"processed"`
	Failed       int    `json:"failed"`
	FailedIDs    []uint `json:"failed_ids,omitempty"`
}
