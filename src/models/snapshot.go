package models

// -----------------------------------------------------------------------------
// Status/debug surface document
// -----------------------------------------------------------------------------

// MSnapshot is the synchronous troubleshooting view: connection state,
// subscriptions, reconnect counters, credential availability and the current
// reconciled status per participation. Consumed by operational tooling, not by
// the core logic.
type MSnapshot struct {
	ConnectionState       string                      `json:"connection_state"`
	CredentialAvailable   bool                        `json:"credential_available"`
	SubscribedTopics      []string                    `json:"subscribed_topics"`
	ReconnectAttempts     int                         `json:"reconnect_attempts"`
	MaxReportedReconnects int                         `json:"max_reported_reconnects"`
	StaleEventsDiscarded  int64                       `json:"stale_events_discarded"`
	DecodeFailures        int64                       `json:"decode_failures"`
	Participations        map[int64]MReconciledStatus `json:"participations"`
	Timestamp             int64                       `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Journal / in-memory event record
// -----------------------------------------------------------------------------

// MEventRecord is one row of the troubleshooting event journal. Advisory only:
// the journal is never read back as authoritative state.
type MEventRecord struct {
	Timestamp       int64  `json:"timestamp"`
	Topic           string `json:"topic"`
	Kind            string `json:"kind"`
	ParticipationID int64  `json:"participation_id"`
	SubmissionID    int64  `json:"submission_id"`
	Detail          string `json:"detail"`
}
