package models

import "time"

// -----------------------------------------------------------------------------
// Build-processing signal
// -----------------------------------------------------------------------------

// Submission states reported by the build pipeline.
const (
	SubmissionStateBuilding            = "BUILDING"
	SubmissionStateQueued              = "QUEUED"
	SubmissionStateHasFailedSubmission = "HAS_FAILED_SUBMISSION"
	SubmissionStateIllegal             = "ILLEGAL"
)

// -----------------------------------------------------------------------------

// MSubmissionProcessing is the build pipeline's progress signal for one
// participation. It is the freshest information available and takes precedence
// over any REST-derived completed status until a newer result arrives.
type MSubmissionProcessing struct {
	ParticipationID         int64      `json:"participationId"`
	SubmissionID            int64      `json:"submissionId,omitempty"`
	SubmissionState         string     `json:"submissionState,omitempty"`
	BuildStartDate          *time.Time `json:"buildStartDate,omitempty"`
	EstimatedCompletionDate *time.Time `json:"estimatedCompletionDate,omitempty"`
}

// -----------------------------------------------------------------------------

// Timing extracts the build timing pair, or nil when the start date is absent.
func (p *MSubmissionProcessing) Timing() *MBuildTimingInfo {
	if p == nil || p.BuildStartDate == nil {
		return nil
	}
	return &MBuildTimingInfo{
		BuildStartDate:          p.BuildStartDate,
		EstimatedCompletionDate: p.EstimatedCompletionDate,
	}
}

// -----------------------------------------------------------------------------

// MBuildTimingInfo carries a (start, estimated completion) pair. Progress and
// ETA can only be computed when both are present.
type MBuildTimingInfo struct {
	BuildStartDate          *time.Time `json:"buildStartDate,omitempty"`
	EstimatedCompletionDate *time.Time `json:"estimatedCompletionDate,omitempty"`
}

// -----------------------------------------------------------------------------

// Complete reports whether both dates are available.
func (t *MBuildTimingInfo) Complete() bool {
	return t != nil && t.BuildStartDate != nil && t.EstimatedCompletionDate != nil
}
