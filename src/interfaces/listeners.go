package interfaces

import "submission-observer/src/models"

// -----------------------------------------------------------------------------
// Typed listener functions for the observer-registration surface. Dispatch is
// synchronous, in registration order, and exception-isolated: one listener
// panicking must not prevent the rest from running.
// -----------------------------------------------------------------------------

// ResultListener receives decoded NewResult events.
type ResultListener func(result models.MResult)

// SubmissionListener receives decoded NewSubmission events.
type SubmissionListener func(submission models.MSubmission)

// ProcessingListener receives decoded SubmissionProcessing events.
type ProcessingListener func(info models.MSubmissionProcessing)

// ErrorListener receives connection-level errors (never decode errors, which
// are dropped per-message).
type ErrorListener func(err error)

// StatusListener receives every reconciled status change for a participation.
// This is the surface the rendering layer subscribes to.
type StatusListener func(participationID int64, status models.MReconciledStatus)
