package models

// -----------------------------------------------------------------------------
// Reconciled status (derived view state, never persisted)
// -----------------------------------------------------------------------------

type StatusKind string

const (
	StatusNoParticipation StatusKind = "NO_PARTICIPATION"
	StatusEmpty           StatusKind = "EMPTY"
	StatusQueued          StatusKind = "QUEUED"
	StatusBuilding        StatusKind = "BUILDING"
	StatusCompleted       StatusKind = "COMPLETED"
)

// Nominal progress floor so queued/indeterminate builds render a non-zero bar.
const ProgressFloor = 5.0

// -----------------------------------------------------------------------------

// MReconciledStatus is the single authoritative build/submission status for one
// participation. Exactly one exists per participation at any time; it is a pure
// function of the latest known submission, the latest known result for that
// submission and the most recent processing event.
type MReconciledStatus struct {
	Kind            StatusKind `json:"kind"`
	ParticipationID int64      `json:"participationId"`
	SubmissionID    int64      `json:"submissionId,omitempty"`

	// Building/Queued fields
	Indeterminate bool    `json:"indeterminate,omitempty"`
	Progress      float64 `json:"progress,omitempty"`
	ETASeconds    float64 `json:"etaSeconds,omitempty"`

	// Completed fields
	Successful      bool    `json:"successful,omitempty"`
	Score           float64 `json:"score,omitempty"`
	HasTestSummary  bool    `json:"hasTestSummary,omitempty"`
	TestCaseCount   int     `json:"testCaseCount,omitempty"`
	PassedTestCases int     `json:"passedTestCases,omitempty"`
	BuildFailed     bool    `json:"buildFailed,omitempty"`
}

// -----------------------------------------------------------------------------

// Equal compares the render-relevant fields. Used to suppress repaints when a
// recomputation yields the same view state.
func (s MReconciledStatus) Equal(o MReconciledStatus) bool {
	return s == o
}
