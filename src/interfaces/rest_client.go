package interfaces

import (
	"context"

	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// IRestClient defines the REST collaborator used to backfill state the
// realtime channel missed (cold start, reconnect).
// -----------------------------------------------------------------------------

type IRestClient interface {

	// -----------------------------------------------------------------------------

	// GetParticipations fetches the user's participations with their
	// submissions and results (course dashboard pull).
	GetParticipations(ctx context.Context) ([]models.MParticipation, error)

	// -----------------------------------------------------------------------------

	// GetResultDetails fetches one result including test-case counts.
	GetResultDetails(ctx context.Context, participationID, resultID int64) (*models.MResult, error)

	// -----------------------------------------------------------------------------

	// Health probes the server with a fixed short timeout.
	Health(ctx context.Context) error
}
