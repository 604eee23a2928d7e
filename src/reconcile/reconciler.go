package reconcile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"submission-observer/src/interfaces"
	"submission-observer/src/logger"
	"submission-observer/src/models"
	"submission-observer/src/progress"
)

// -----------------------------------------------------------------------------
// Submission Reconciliation State Machine
// -----------------------------------------------------------------------------

// track is the per-participation reconciliation state: the latest known
// submission, the latest known result for it, and the most recent processing
// signal. The displayed status is always derived from these three.
type track struct {
	participationID  int64
	latestSubmission *models.MSubmission
	latestResult     *models.MResult
	processing       *models.MSubmissionProcessing
	activeTiming     *models.MBuildTimingInfo
	status           models.MReconciledStatus
}

// -----------------------------------------------------------------------------

// Reconciler turns the asynchronous build-pipeline event stream plus on-demand
// REST pulls into one authoritative status per participation. Delivery order
// is not trusted: any event referencing a submission older than the tracked
// latest id is discarded, so the displayed state never regresses.
type Reconciler struct {
	Logger    *logger.Logger
	Rest      interfaces.IRestClient
	Journal   interfaces.IJournal // Optional, nil disables journaling
	Projector *progress.ETAProjector
	Registry  *ExerciseRegistry // Optional, refreshed on every backfill
	Now       func() time.Time  // Injectable clock

	mu              sync.Mutex
	tracks          map[int64]*track
	submissionIndex map[int64]int64 // submission id -> participation id
	listeners       []interfaces.StatusListener

	staleDiscarded int64 // Atomic
}

// -----------------------------------------------------------------------------

func NewReconciler(rest interfaces.IRestClient, projector *progress.ETAProjector, journal interfaces.IJournal, log *logger.Logger) *Reconciler {
	r := &Reconciler{
		Logger:          log,
		Rest:            rest,
		Journal:         journal,
		Projector:       projector,
		Now:             time.Now,
		tracks:          make(map[int64]*track),
		submissionIndex: make(map[int64]int64),
	}

	if projector != nil {
		projector.OnTick(r.applyTick)
		projector.OnExpiry(r.applyExpiry)
	}

	return r
}

// -----------------------------------------------------------------------------
// Listener registration
// -----------------------------------------------------------------------------

// OnStatusChanged registers a rendering-layer listener. Dispatch is
// synchronous, in registration order, and panic-isolated.
func (r *Reconciler) OnStatusChanged(l interfaces.StatusListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// StatusFor returns the authoritative status for one participation.
func (r *Reconciler) StatusFor(participationID int64) models.MReconciledStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, exists := r.tracks[participationID]; exists {
		return t.status
	}
	return models.MReconciledStatus{Kind: models.StatusNoParticipation, ParticipationID: participationID}
}

// -----------------------------------------------------------------------------

// Statuses returns a copy of every tracked status.
func (r *Reconciler) Statuses() map[int64]models.MReconciledStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64]models.MReconciledStatus, len(r.tracks))
	for id, t := range r.tracks {
		out[id] = t.status
	}
	return out
}

// -----------------------------------------------------------------------------

// StaleDiscarded returns how many out-of-order events were dropped.
func (r *Reconciler) StaleDiscarded() int64 {
	return atomic.LoadInt64(&r.staleDiscarded)
}

// -----------------------------------------------------------------------------
// REST backfill
// -----------------------------------------------------------------------------

// Backfill pulls the participations dashboard and seeds or refreshes every
// track. Used on cold start and after a reconnect: the realtime channel may
// have missed events. A REST snapshot can itself be stale by the time it
// arrives, so it is re-validated against the tracked latest ids instead of
// being applied blindly.
func (r *Reconciler) Backfill(ctx context.Context) error {
	participations, err := r.Rest.GetParticipations(ctx)
	if err != nil {
		return err
	}

	if r.Registry != nil {
		r.Registry.Populate(participations)
	}

	r.mu.Lock()
	var changed []models.MReconciledStatus

	for i := range participations {
		p := &participations[i]
		t := r.ensureTrackLocked(p.ID)

		for j := range p.Submissions {
			r.submissionIndex[p.Submissions[j].ID] = p.ID
		}

		latest := p.LatestSubmission()
		if latest == nil {
			// Participation with no submissions yet
			if t.latestSubmission == nil {
				if s, ok := r.recomputeLocked(t); ok {
					changed = append(changed, s)
				}
			}
			continue
		}

		switch {
		case t.latestSubmission == nil || latest.ID > t.latestSubmission.ID:
			t.latestSubmission = latest
			t.latestResult = latest.LatestResult()
			t.processing = nil

		case latest.ID == t.latestSubmission.ID:
			// Same submission: adopt a fresher result if the snapshot has one
			if res := latest.LatestResult(); res != nil && res.NewerThan(t.latestResult) {
				t.latestResult = res
				if res.CompletionDate != nil {
					t.processing = nil
				}
			}

		default:
			// Snapshot older than what the realtime channel already delivered
			r.discardStaleLocked("backfill", latest.ID, p.ID)
			continue
		}

		if s, ok := r.recomputeLocked(t); ok {
			changed = append(changed, s)
		}
	}
	r.mu.Unlock()

	r.notify(changed)
	r.Logger.Info("Backfill applied: %d participations", len(participations))
	return nil
}

// -----------------------------------------------------------------------------
// Event handlers (wired into the realtime fan-out)
// -----------------------------------------------------------------------------

// HandleNewSubmission starts a fresh cycle for its participation: the new
// submission invalidates the old result until told otherwise.
func (r *Reconciler) HandleNewSubmission(sub models.MSubmission) {
	pid := sub.ParticipationID
	if pid == 0 {
		r.Logger.Debug("Submission %d carries no participation id, dropped", sub.ID)
		return
	}

	r.journalEvent("submission", pid, sub.ID, "")

	r.mu.Lock()
	t := r.ensureTrackLocked(pid)
	r.submissionIndex[sub.ID] = pid

	if t.latestSubmission != nil && sub.ID < t.latestSubmission.ID {
		r.discardStaleLocked("submission", sub.ID, pid)
		r.mu.Unlock()
		return
	}

	if t.latestSubmission == nil || sub.ID > t.latestSubmission.ID {
		subCopy := sub
		t.latestSubmission = &subCopy
		t.latestResult = subCopy.LatestResult()
		t.processing = nil
	}

	s, ok := r.recomputeLocked(t)
	r.mu.Unlock()

	if ok {
		r.notify([]models.MReconciledStatus{s})
	}
}

// -----------------------------------------------------------------------------

// HandleSubmissionProcessing applies the build pipeline's freshest signal. A
// BUILDING or QUEUED state forces the transition regardless of any prior
// REST-derived Completed status.
func (r *Reconciler) HandleSubmissionProcessing(info models.MSubmissionProcessing) {
	if info.ParticipationID == 0 {
		r.Logger.Debug("Processing event without participation id, dropped")
		return
	}

	r.journalEvent("processing", info.ParticipationID, info.SubmissionID, info.SubmissionState)

	if info.SubmissionState == models.SubmissionStateIllegal {
		// Not a build signal; nothing to display for it
		r.Logger.Debug("Ignoring ILLEGAL processing event for participation %d", info.ParticipationID)
		return
	}

	r.mu.Lock()
	t := r.ensureTrackLocked(info.ParticipationID)

	if info.SubmissionID != 0 {
		if t.latestSubmission != nil && info.SubmissionID < t.latestSubmission.ID {
			r.discardStaleLocked("processing", info.SubmissionID, info.ParticipationID)
			r.mu.Unlock()
			return
		}
		r.submissionIndex[info.SubmissionID] = info.ParticipationID
		if t.latestSubmission == nil || info.SubmissionID > t.latestSubmission.ID {
			// The processing signal can outrun the submission event
			t.latestSubmission = &models.MSubmission{ID: info.SubmissionID, ParticipationID: info.ParticipationID}
			t.latestResult = nil
		}
	}

	infoCopy := info
	t.processing = &infoCopy

	s, ok := r.recomputeLocked(t)
	r.mu.Unlock()

	if ok {
		r.notify([]models.MReconciledStatus{s})
	}
}

// -----------------------------------------------------------------------------

// HandleNewResult completes the cycle for its submission, unless the displayed
// state has already moved on to a newer submission (completion order is not
// submission order).
func (r *Reconciler) HandleNewResult(result models.MResult) {
	var sid, pid int64
	if result.Submission != nil {
		sid = result.Submission.ID
		pid = result.Submission.ParticipationID
	}

	r.mu.Lock()
	if pid == 0 && sid != 0 {
		pid = r.submissionIndex[sid]
	}
	if pid == 0 {
		r.mu.Unlock()
		// A result for a submission the channel never announced: backfill
		r.Logger.Debug("Result %d references unknown submission %d, scheduling backfill", result.ID, sid)
		go func() {
			if err := r.Backfill(context.Background()); err != nil {
				r.Logger.Warning("Backfill after orphan result failed: %v", err)
			}
		}()
		return
	}

	t := r.ensureTrackLocked(pid)

	if t.latestSubmission != nil && sid != 0 && sid < t.latestSubmission.ID {
		r.discardStaleLocked("result", sid, pid)
		r.mu.Unlock()
		return
	}

	if sid != 0 && (t.latestSubmission == nil || sid > t.latestSubmission.ID) {
		subCopy := *result.Submission
		t.latestSubmission = &subCopy
		t.latestResult = nil
	}

	resCopy := result
	if resCopy.NewerThan(t.latestResult) {
		t.latestResult = &resCopy
	}

	// The result supersedes the processing signal for this submission
	if t.processing != nil && (t.processing.SubmissionID == 0 || t.processing.SubmissionID <= sid || sid == 0) {
		t.processing = nil
	}

	s, ok := r.recomputeLocked(t)
	needsDetails := t.latestResult != nil && t.latestResult.ID == result.ID && !t.latestResult.HasTestSummary()
	r.mu.Unlock()

	r.journalEvent("result", pid, sid, fmt.Sprintf("result=%d", result.ID))

	if ok {
		r.notify([]models.MReconciledStatus{s})
	}

	if needsDetails && r.Rest != nil {
		go r.fetchResultDetails(pid, result.ID)
	}
}

// -----------------------------------------------------------------------------

// fetchResultDetails pulls the test-case counts the push payload omitted. The
// response is re-validated before being applied: a newer result may have
// arrived while the pull was in flight.
func (r *Reconciler) fetchResultDetails(participationID, resultID int64) {
	details, err := r.Rest.GetResultDetails(context.Background(), participationID, resultID)
	if err != nil || details == nil {
		r.Logger.Debug("Result details pull for %d failed: %v", resultID, err)
		return
	}

	r.mu.Lock()
	t, exists := r.tracks[participationID]
	if !exists || t.latestResult == nil || t.latestResult.ID != resultID {
		// Superseded while we were fetching
		r.mu.Unlock()
		return
	}

	t.latestResult.TestCaseCount = details.TestCaseCount
	t.latestResult.PassedTestCaseCount = details.PassedTestCaseCount
	if t.latestResult.Score == nil {
		t.latestResult.Score = details.Score
	}

	s, ok := r.recomputeLocked(t)
	r.mu.Unlock()

	if ok {
		r.notify([]models.MReconciledStatus{s})
	}
}

// -----------------------------------------------------------------------------
// Projector callbacks
// -----------------------------------------------------------------------------

// applyTick refreshes the progress fields of a Building status. Ticks landing
// after the state moved on are discarded.
func (r *Reconciler) applyTick(participationID int64, pct float64, remaining float64) {
	r.mu.Lock()
	t, exists := r.tracks[participationID]
	if !exists || t.status.Kind != models.StatusBuilding || t.status.Indeterminate {
		r.mu.Unlock()
		return
	}

	t.status.Progress = pct
	t.status.ETASeconds = remaining
	s := t.status
	r.mu.Unlock()

	r.notify([]models.MReconciledStatus{s})
}

// -----------------------------------------------------------------------------

// applyExpiry handles an expired estimate: the display falls back to
// indeterminate rather than freezing at 100%.
func (r *Reconciler) applyExpiry(participationID int64) {
	r.mu.Lock()
	t, exists := r.tracks[participationID]
	if !exists || t.status.Kind != models.StatusBuilding {
		r.mu.Unlock()
		return
	}

	t.activeTiming = nil
	s, ok := r.recomputeLocked(t)
	r.mu.Unlock()

	if ok {
		r.notify([]models.MReconciledStatus{s})
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Clear drops all reconciliation state and stops every projector loop. Called
// on logout; the next login starts from a fresh REST backfill.
func (r *Reconciler) Clear() {
	if r.Projector != nil {
		r.Projector.StopAll()
	}

	r.mu.Lock()
	r.tracks = make(map[int64]*track)
	r.submissionIndex = make(map[int64]int64)
	r.mu.Unlock()

	r.Logger.Info("Reconciliation state cleared")
}

// -----------------------------------------------------------------------------
// Status derivation
// -----------------------------------------------------------------------------

// ensureTrackLocked returns the track for a participation, creating it in the
// Empty state. Caller holds r.mu.
func (r *Reconciler) ensureTrackLocked(participationID int64) *track {
	if t, exists := r.tracks[participationID]; exists {
		return t
	}
	t := &track{
		participationID: participationID,
		status:          models.MReconciledStatus{Kind: models.StatusEmpty, ParticipationID: participationID},
	}
	r.tracks[participationID] = t
	return t
}

// -----------------------------------------------------------------------------

// recomputeLocked derives the status as a pure function of the track's three
// inputs, manages the projector loop, and reports whether the render-relevant
// state changed. Caller holds r.mu.
func (r *Reconciler) recomputeLocked(t *track) (models.MReconciledStatus, bool) {
	next := r.deriveStatusLocked(t)
	prev := t.status
	t.status = next

	// Projector lifecycle: exactly one loop per Building participation with
	// usable timing, none otherwise.
	if r.Projector != nil {
		if next.Kind == models.StatusBuilding && !next.Indeterminate {
			timing := t.processing.Timing()
			if !sameTiming(t.activeTiming, timing) {
				t.activeTiming = timing
				r.Projector.Start(t.participationID, timing)
			}
		} else {
			if t.activeTiming != nil {
				t.activeTiming = nil
				r.Projector.Stop(t.participationID)
			}
		}
	}

	return next, !next.Equal(prev)
}

// -----------------------------------------------------------------------------

// deriveStatusLocked encodes the transition rules: processing signals take
// precedence while no newer result has arrived, a completed result is
// terminal for its submission, and a submission without either is queued.
func (r *Reconciler) deriveStatusLocked(t *track) models.MReconciledStatus {
	status := models.MReconciledStatus{ParticipationID: t.participationID}

	if t.latestSubmission == nil {
		status.Kind = models.StatusEmpty
		return status
	}
	status.SubmissionID = t.latestSubmission.ID

	if t.processing != nil {
		switch t.processing.SubmissionState {
		case models.SubmissionStateQueued:
			status.Kind = models.StatusQueued
			status.Indeterminate = true
			status.Progress = models.ProgressFloor
			return status

		case models.SubmissionStateBuilding:
			status.Kind = models.StatusBuilding
			timing := t.processing.Timing()
			if timing.Complete() {
				pct, indeterminate := progress.ProgressPercent(*timing.BuildStartDate, *timing.EstimatedCompletionDate, r.Now())
				if !indeterminate {
					status.Progress = pct
					status.ETASeconds = progress.RemainingSeconds(*timing.EstimatedCompletionDate, r.Now())
					return status
				}
			}
			status.Indeterminate = true
			status.Progress = models.ProgressFloor
			return status

		case models.SubmissionStateHasFailedSubmission:
			status.Kind = models.StatusCompleted
			status.BuildFailed = true
			return status
		}
	}

	if t.latestResult != nil && t.latestResult.CompletionDate != nil {
		status.Kind = models.StatusCompleted
		status.Successful = t.latestResult.IsSuccessful()
		status.Score = t.latestResult.ScoreValue()
		status.BuildFailed = t.latestSubmission.BuildFailed
		if t.latestResult.HasTestSummary() {
			status.HasTestSummary = true
			status.TestCaseCount = *t.latestResult.TestCaseCount
			status.PassedTestCases = *t.latestResult.PassedTestCaseCount
		}
		return status
	}

	// Submission known, no result and no processing signal yet
	status.Kind = models.StatusQueued
	status.Indeterminate = true
	status.Progress = models.ProgressFloor
	return status
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// discardStaleLocked counts and logs a dropped out-of-order event. Not a
// failure: a designed no-op. Caller holds r.mu.
func (r *Reconciler) discardStaleLocked(kind string, submissionID, participationID int64) {
	atomic.AddInt64(&r.staleDiscarded, 1)
	r.Logger.Debug("Discarded stale %s event for submission %d (participation %d)", kind, submissionID, participationID)
	r.journalEvent("stale_"+kind, participationID, submissionID, "discarded")
}

// -----------------------------------------------------------------------------

func (r *Reconciler) journalEvent(kind string, participationID, submissionID int64, detail string) {
	if r.Journal == nil {
		return
	}
	r.Journal.RecordEvent(models.MEventRecord{
		Timestamp:       r.Now().Unix(),
		Kind:            kind,
		ParticipationID: participationID,
		SubmissionID:    submissionID,
		Detail:          detail,
	})
}

// -----------------------------------------------------------------------------

// notify dispatches status changes to the listeners outside the lock, each
// invocation panic-isolated.
func (r *Reconciler) notify(changed []models.MReconciledStatus) {
	if len(changed) == 0 {
		return
	}

	r.mu.Lock()
	listeners := r.listeners
	r.mu.Unlock()

	for _, s := range changed {
		for _, l := range listeners {
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.Logger.Error("Recovered panic in status listener: %v", rec)
					}
				}()
				l(s.ParticipationID, s)
			}()
		}
	}
}

// -----------------------------------------------------------------------------

func sameTiming(a, b *models.MBuildTimingInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !a.Complete() || !b.Complete() {
		return false
	}
	return a.BuildStartDate.Equal(*b.BuildStartDate) && a.EstimatedCompletionDate.Equal(*b.EstimatedCompletionDate)
}
