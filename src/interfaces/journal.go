package interfaces

import "submission-observer/src/models"

// -----------------------------------------------------------------------------
// IJournal defines the contract for the troubleshooting event journal.
// The journal is advisory: it is never read back as authoritative state.
// -----------------------------------------------------------------------------

type IJournal interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the journal schema.
	Initialize() error

	// -----------------------------------------------------------------------------

	// RecordEvent appends one event row. Must never block the event path for
	// long; failures are logged, not propagated.
	RecordEvent(record models.MEventRecord)

	// -----------------------------------------------------------------------------

	// RecentEvents returns the newest n rows, newest first.
	RecentEvents(n int) ([]models.MEventRecord, error)

	// -----------------------------------------------------------------------------

	// CleanupOldEvents removes rows older than the retention policy.
	CleanupOldEvents() error

	// -----------------------------------------------------------------------------

	// Close flushes and closes the journal.
	Close() error
}
