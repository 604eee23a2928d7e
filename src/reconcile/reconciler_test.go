package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submission-observer/src/helpers"
	"submission-observer/src/logger"
	"submission-observer/src/models"
	"submission-observer/src/progress"
)

// -----------------------------------------------------------------------------

func reconcileLogger() *logger.Logger {
	return logger.NewLogger("ERROR", "ReconcilerTest")
}

// -----------------------------------------------------------------------------

type fakeRest struct {
	mu             sync.Mutex
	participations []models.MParticipation
	details        map[int64]*models.MResult
	pulls          int
}

func (f *fakeRest) GetParticipations(ctx context.Context) ([]models.MParticipation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return f.participations, nil
}

func (f *fakeRest) GetResultDetails(ctx context.Context, participationID, resultID int64) (*models.MResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.details[resultID]; ok {
		return r, nil
	}
	return nil, helpers.NewRestError("result not found", nil)
}

func (f *fakeRest) Health(ctx context.Context) error { return nil }

// -----------------------------------------------------------------------------

func newTestReconciler(rest *fakeRest) *Reconciler {
	return NewReconciler(rest, nil, nil, reconcileLogger())
}

// -----------------------------------------------------------------------------

func completedResult(id int64, completed time.Time, score float64) models.MResult {
	successful := true
	return models.MResult{
		ID:             id,
		CompletionDate: &completed,
		Successful:     &successful,
		Score:          &score,
	}
}

// -----------------------------------------------------------------------------

func TestBackfill_ColdStartRendersCompletedDirectly(t *testing.T) {
	completed := time.Now().Add(-1 * time.Hour)
	rest := &fakeRest{
		participations: []models.MParticipation{
			{
				ID: 1,
				Submissions: []models.MSubmission{
					{ID: 42, ParticipationID: 1, Results: []models.MResult{completedResult(500, completed, 87.0)}},
				},
			},
		},
	}

	r := newTestReconciler(rest)

	var kinds []models.StatusKind
	r.OnStatusChanged(func(_ int64, s models.MReconciledStatus) {
		kinds = append(kinds, s.Kind)
	})

	require.NoError(t, r.Backfill(context.Background()))

	// Straight to Completed, never flashing Queued or Building
	require.Equal(t, []models.StatusKind{models.StatusCompleted}, kinds)

	s := r.StatusFor(1)
	assert.Equal(t, models.StatusCompleted, s.Kind)
	assert.Equal(t, int64(42), s.SubmissionID)
	assert.True(t, s.Successful)
	assert.Equal(t, 87.0, s.Score)
}

// -----------------------------------------------------------------------------

func TestBackfill_ParticipationWithoutSubmissions(t *testing.T) {
	rest := &fakeRest{participations: []models.MParticipation{{ID: 3}}}
	r := newTestReconciler(rest)

	require.NoError(t, r.Backfill(context.Background()))
	assert.Equal(t, models.StatusEmpty, r.StatusFor(3).Kind)
}

// -----------------------------------------------------------------------------

func TestBackfill_PopulatesRegistry(t *testing.T) {
	rest := &fakeRest{
		participations: []models.MParticipation{
			{ID: 1, RepositoryURL: "https://lms.example.edu/git/ex1/student.git"},
		},
	}

	r := newTestReconciler(rest)
	r.Registry = NewExerciseRegistry(reconcileLogger())

	require.NoError(t, r.Backfill(context.Background()))

	p, found := r.Registry.Resolve("https://lms.example.edu/git/ex1/student.git")
	require.True(t, found)
	assert.Equal(t, int64(1), p.ID)
}

// -----------------------------------------------------------------------------

func TestBackfill_StaleSnapshotDoesNotRegress(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	// The realtime channel already announced submission 10
	r.HandleNewSubmission(models.MSubmission{ID: 10, ParticipationID: 1})
	require.Equal(t, int64(10), r.StatusFor(1).SubmissionID)

	// A REST snapshot captured before that arrives late
	r.Rest = &fakeRest{
		participations: []models.MParticipation{
			{ID: 1, Submissions: []models.MSubmission{{ID: 9, ParticipationID: 1}}},
		},
	}
	require.NoError(t, r.Backfill(context.Background()))

	assert.Equal(t, int64(10), r.StatusFor(1).SubmissionID)
	assert.Equal(t, int64(1), r.StaleDiscarded())
}

// -----------------------------------------------------------------------------

func TestNoRegression_OutOfOrderCompletions(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	now := time.Now()

	// Submission 5 completed
	res5 := completedResult(100, now.Add(-2*time.Minute), 60.0)
	res5.Submission = &models.MSubmission{ID: 5, ParticipationID: 1}
	r.HandleNewResult(res5)

	// Submission 7 queued
	r.HandleNewSubmission(models.MSubmission{ID: 7, ParticipationID: 1})
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID: 1, SubmissionID: 7, SubmissionState: models.SubmissionStateQueued,
	})

	// Submission 6 completes late: builds do not finish in submission order
	res6 := completedResult(101, now, 95.0)
	res6.Submission = &models.MSubmission{ID: 6, ParticipationID: 1}
	r.HandleNewResult(res6)

	// The display must still show submission 7 queued
	s := r.StatusFor(1)
	assert.Equal(t, models.StatusQueued, s.Kind)
	assert.Equal(t, int64(7), s.SubmissionID)
	assert.True(t, s.Indeterminate)
	assert.Equal(t, int64(1), r.StaleDiscarded())
}

// -----------------------------------------------------------------------------

func TestProcessing_TakesPrecedenceOverStaleCompleted(t *testing.T) {
	completed := time.Now().Add(-1 * time.Hour)
	rest := &fakeRest{
		participations: []models.MParticipation{
			{
				ID: 1,
				Submissions: []models.MSubmission{
					{ID: 9, ParticipationID: 1, Results: []models.MResult{completedResult(300, completed, 50.0)}},
				},
			},
		},
	}

	r := newTestReconciler(rest)
	require.NoError(t, r.Backfill(context.Background()))
	require.Equal(t, models.StatusCompleted, r.StatusFor(1).Kind)

	// The build pipeline says the same submission is building again
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID: 1, SubmissionID: 9, SubmissionState: models.SubmissionStateBuilding,
	})

	s := r.StatusFor(1)
	assert.Equal(t, models.StatusBuilding, s.Kind)
	assert.True(t, s.Indeterminate) // No timing info supplied
}

// -----------------------------------------------------------------------------

func TestResult_SupersedesProcessing(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	r.HandleNewSubmission(models.MSubmission{ID: 5, ParticipationID: 2})
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID: 2, SubmissionID: 5, SubmissionState: models.SubmissionStateBuilding,
	})
	require.Equal(t, models.StatusBuilding, r.StatusFor(2).Kind)

	res := completedResult(700, time.Now(), 80.0)
	res.Submission = &models.MSubmission{ID: 5, ParticipationID: 2}
	r.HandleNewResult(res)

	s := r.StatusFor(2)
	assert.Equal(t, models.StatusCompleted, s.Kind)
	assert.Equal(t, 80.0, s.Score)
}

// -----------------------------------------------------------------------------

func TestProcessing_BuildingWithTimingShowsProgress(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	start := time.Now().Add(-10 * time.Second)
	eta := time.Now().Add(10 * time.Second)
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID:         1,
		SubmissionID:            4,
		SubmissionState:         models.SubmissionStateBuilding,
		BuildStartDate:          &start,
		EstimatedCompletionDate: &eta,
	})

	s := r.StatusFor(1)
	assert.Equal(t, models.StatusBuilding, s.Kind)
	assert.False(t, s.Indeterminate)
	assert.InDelta(t, 50.0, s.Progress, 5.0)
	assert.Greater(t, s.ETASeconds, 0.0)
}

// -----------------------------------------------------------------------------

func TestProcessing_ExpiredEstimateIsIndeterminate(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	start := time.Now().Add(-2 * time.Minute)
	eta := time.Now().Add(-1 * time.Minute)
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID:         1,
		SubmissionID:            4,
		SubmissionState:         models.SubmissionStateBuilding,
		BuildStartDate:          &start,
		EstimatedCompletionDate: &eta,
	})

	s := r.StatusFor(1)
	assert.Equal(t, models.StatusBuilding, s.Kind)
	assert.True(t, s.Indeterminate)
	assert.Equal(t, models.ProgressFloor, s.Progress)
}

// -----------------------------------------------------------------------------

func TestProcessing_HasFailedSubmission(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID: 1, SubmissionID: 4,
		SubmissionState: models.SubmissionStateHasFailedSubmission,
	})

	s := r.StatusFor(1)
	assert.Equal(t, models.StatusCompleted, s.Kind)
	assert.True(t, s.BuildFailed)
	assert.False(t, s.Successful)
}

// -----------------------------------------------------------------------------

func TestProcessing_IllegalIsIgnored(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	r.HandleNewSubmission(models.MSubmission{ID: 4, ParticipationID: 1})
	before := r.StatusFor(1)

	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID: 1, SubmissionID: 4,
		SubmissionState: models.SubmissionStateIllegal,
	})

	assert.Equal(t, before, r.StatusFor(1))
}

// -----------------------------------------------------------------------------

func TestStaleProcessing_IsDiscarded(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	r.HandleNewSubmission(models.MSubmission{ID: 10, ParticipationID: 1})
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID: 1, SubmissionID: 8,
		SubmissionState: models.SubmissionStateBuilding,
	})

	s := r.StatusFor(1)
	assert.Equal(t, models.StatusQueued, s.Kind)
	assert.Equal(t, int64(10), s.SubmissionID)
	assert.Equal(t, int64(1), r.StaleDiscarded())
}

// -----------------------------------------------------------------------------

func TestProcessing_CanOutrunSubmissionEvent(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	// The queued signal arrives before the submission event itself
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID: 1, SubmissionID: 11,
		SubmissionState: models.SubmissionStateQueued,
	})

	s := r.StatusFor(1)
	assert.Equal(t, models.StatusQueued, s.Kind)
	assert.Equal(t, int64(11), s.SubmissionID)

	// The submission event arriving afterwards must not disturb the state
	r.HandleNewSubmission(models.MSubmission{ID: 11, ParticipationID: 1})
	assert.Equal(t, models.StatusQueued, r.StatusFor(1).Kind)
}

// -----------------------------------------------------------------------------

func TestStatusListener_PanicIsolation(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	var reached bool
	r.OnStatusChanged(func(int64, models.MReconciledStatus) { panic("listener bug") })
	r.OnStatusChanged(func(int64, models.MReconciledStatus) { reached = true })

	r.HandleNewSubmission(models.MSubmission{ID: 1, ParticipationID: 1})
	assert.True(t, reached)
}

// -----------------------------------------------------------------------------

func TestStatusFor_UnknownParticipation(t *testing.T) {
	r := newTestReconciler(&fakeRest{})

	s := r.StatusFor(999)
	assert.Equal(t, models.StatusNoParticipation, s.Kind)
	assert.Equal(t, int64(999), s.ParticipationID)
}

// -----------------------------------------------------------------------------

func TestResultDetails_BackfilledWhenSummaryMissing(t *testing.T) {
	tests := 12
	passed := 11
	completed := time.Now()

	full := completedResult(800, completed, 91.0)
	full.TestCaseCount = &tests
	full.PassedTestCaseCount = &passed

	rest := &fakeRest{details: map[int64]*models.MResult{800: &full}}
	r := newTestReconciler(rest)

	// The push payload carries no test summary
	res := completedResult(800, completed, 91.0)
	res.Submission = &models.MSubmission{ID: 5, ParticipationID: 1}
	r.HandleNewResult(res)

	require.Eventually(t, func() bool {
		return r.StatusFor(1).HasTestSummary
	}, 2*time.Second, 10*time.Millisecond)

	s := r.StatusFor(1)
	assert.Equal(t, 12, s.TestCaseCount)
	assert.Equal(t, 11, s.PassedTestCases)
}

// -----------------------------------------------------------------------------

func TestProjectorIntegration_TicksUpdateBuildingStatus(t *testing.T) {
	projector := progress.NewETAProjector(10, reconcileLogger())
	r := NewReconciler(&fakeRest{}, projector, nil, reconcileLogger())
	defer projector.StopAll()

	start := time.Now().Add(-1 * time.Second)
	eta := time.Now().Add(5 * time.Second)
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID:         1,
		SubmissionID:            3,
		SubmissionState:         models.SubmissionStateBuilding,
		BuildStartDate:          &start,
		EstimatedCompletionDate: &eta,
	})

	require.Equal(t, 1, projector.ActiveLoops())

	initial := r.StatusFor(1).Progress
	require.Eventually(t, func() bool {
		return r.StatusFor(1).Progress > initial
	}, 2*time.Second, 20*time.Millisecond)

	// A completed result stops the loop
	res := completedResult(900, time.Now(), 100.0)
	res.Submission = &models.MSubmission{ID: 3, ParticipationID: 1}
	r.HandleNewResult(res)

	assert.Equal(t, models.StatusCompleted, r.StatusFor(1).Kind)
	assert.Equal(t, 0, projector.ActiveLoops())
}

// -----------------------------------------------------------------------------

func TestProjectorIntegration_ExpiryFallsBackToIndeterminate(t *testing.T) {
	projector := progress.NewETAProjector(10, reconcileLogger())
	r := NewReconciler(&fakeRest{}, projector, nil, reconcileLogger())
	defer projector.StopAll()

	start := time.Now().Add(-1 * time.Second)
	eta := time.Now().Add(120 * time.Millisecond)
	r.HandleSubmissionProcessing(models.MSubmissionProcessing{
		ParticipationID:         1,
		SubmissionID:            3,
		SubmissionState:         models.SubmissionStateBuilding,
		BuildStartDate:          &start,
		EstimatedCompletionDate: &eta,
	})

	require.Eventually(t, func() bool {
		s := r.StatusFor(1)
		return s.Kind == models.StatusBuilding && s.Indeterminate
	}, 2*time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestClear_DropsAllState(t *testing.T) {
	r := newTestReconciler(&fakeRest{})
	r.Registry = NewExerciseRegistry(reconcileLogger())
	r.Registry.Register(models.MParticipation{ID: 1, RepositoryURL: "https://x/repo.git"})

	r.HandleNewSubmission(models.MSubmission{ID: 1, ParticipationID: 1})
	require.NotEqual(t, models.StatusNoParticipation, r.StatusFor(1).Kind)

	r.Clear()
	r.Registry.Clear()

	assert.Equal(t, models.StatusNoParticipation, r.StatusFor(1).Kind)
	assert.Equal(t, 0, r.Registry.Count())
	assert.Empty(t, r.Statuses())
}
