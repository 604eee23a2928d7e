package models

import "time"

// -----------------------------------------------------------------------------
// Result
// -----------------------------------------------------------------------------

// MResult represents the graded outcome of evaluating a submission.
// A nil CompletionDate means the evaluation has not finished yet.
type MResult struct {
	ID                  int64        `json:"id"`
	CompletionDate      *time.Time   `json:"completionDate,omitempty"`
	Successful          *bool        `json:"successful,omitempty"`
	Score               *float64     `json:"score,omitempty"`
	TestCaseCount       *int         `json:"testCaseCount,omitempty"`
	PassedTestCaseCount *int         `json:"passedTestCaseCount,omitempty"`
	Submission          *MSubmission `json:"submission,omitempty"`
}

// -----------------------------------------------------------------------------

// NewerThan reports whether r is fresher than other. Completion dates win when
// both are present and differ; otherwise the higher id wins (ids are
// server-assigned and strictly increasing).
func (r *MResult) NewerThan(other *MResult) bool {
	if other == nil {
		return true
	}
	if r == nil {
		return false
	}

	if r.CompletionDate != nil && other.CompletionDate != nil {
		if r.CompletionDate.After(*other.CompletionDate) {
			return true
		}
		if other.CompletionDate.After(*r.CompletionDate) {
			return false
		}
	}

	// Equal or missing dates: fall back to id comparison
	return r.ID > other.ID
}

// -----------------------------------------------------------------------------

// IsSuccessful treats a missing flag as failure.
func (r *MResult) IsSuccessful() bool {
	return r != nil && r.Successful != nil && *r.Successful
}

// -----------------------------------------------------------------------------

// ScoreValue returns the score percentage, defaulting to 0 when absent.
func (r *MResult) ScoreValue() float64 {
	if r == nil || r.Score == nil {
		return 0
	}
	return *r.Score
}

// -----------------------------------------------------------------------------

// HasTestSummary reports whether per-testcase pass counts are present and
// nonzero. Without them, only a coarse success/failure badge can be rendered.
func (r *MResult) HasTestSummary() bool {
	return r != nil && r.TestCaseCount != nil && *r.TestCaseCount > 0 && r.PassedTestCaseCount != nil
}
