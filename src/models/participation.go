package models

// -----------------------------------------------------------------------------
// Participation
// -----------------------------------------------------------------------------

// MParticipation is a student's enrollment instance in one exercise, owning
// zero-or-more submissions. The submission list is ordered by ascending id,
// which is not necessarily chronological.
type MParticipation struct {
	ID            int64         `json:"id"`
	ExerciseName  string        `json:"exerciseName,omitempty"`
	RepositoryURL string        `json:"repositoryUrl,omitempty"`
	Submissions   []MSubmission `json:"submissions,omitempty"`
}

// -----------------------------------------------------------------------------

// LatestSubmission picks the submission with the highest id. Ids, not dates,
// decide recency: they are server-assigned, strictly increasing and immune to
// clock skew.
func (p *MParticipation) LatestSubmission() *MSubmission {
	if p == nil || len(p.Submissions) == 0 {
		return nil
	}

	latest := &p.Submissions[0]
	for i := 1; i < len(p.Submissions); i++ {
		if p.Submissions[i].ID > latest.ID {
			latest = &p.Submissions[i]
		}
	}
	return latest
}
