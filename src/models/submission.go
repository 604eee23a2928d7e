package models

import "time"

// -----------------------------------------------------------------------------
// Submission
// -----------------------------------------------------------------------------

// MSubmission represents one attempt (e.g. a commit push) within a participation.
// Server-assigned ids are strictly increasing, so the id is the authoritative
// recency signal, not the submission date.
type MSubmission struct {
	ID              int64      `json:"id"`
	ParticipationID int64      `json:"participationId,omitempty"`
	SubmissionDate  *time.Time `json:"submissionDate,omitempty"`
	CommitHash      string     `json:"commitHash,omitempty"`
	BuildFailed     bool       `json:"buildFailed,omitempty"`
	Results         []MResult  `json:"results,omitempty"`
}

// -----------------------------------------------------------------------------

// LatestResult picks the freshest result of this submission: the one with the
// latest completion date, falling back to the highest id when dates are equal
// or absent.
func (s *MSubmission) LatestResult() *MResult {
	if s == nil || len(s.Results) == 0 {
		return nil
	}

	latest := &s.Results[0]
	for i := 1; i < len(s.Results); i++ {
		if s.Results[i].NewerThan(latest) {
			latest = &s.Results[i]
		}
	}
	return latest
}
