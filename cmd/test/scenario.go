package main

import (
	"time"

	"submission-observer/src/logger"
	"submission-observer/src/models"
	"submission-observer/src/realtime"
	"submission-observer/src/reconcile"
)

// -----------------------------------------------------------------------------
// Scripted build lifecycle against the fake LMS
// -----------------------------------------------------------------------------

const (
	scenarioParticipation = int64(101)
	scenarioSubmission    = int64(2001)
	scenarioResult        = int64(3001)
)

// -----------------------------------------------------------------------------

// seedDashboard installs one participation with an already-completed older
// submission. The observer's cold-start backfill should render it as
// Completed, not Queued.
func seedDashboard(lms *FakeLMS) {
	completed := time.Now().Add(-1 * time.Hour)
	successful := true
	score := 87.5

	lms.SetParticipations([]models.MParticipation{
		{
			ID:            scenarioParticipation,
			ExerciseName:  "sorting-algorithms",
			RepositoryURL: "https://lms.example.edu/git/sorting-algorithms/student1.git",
			Submissions: []models.MSubmission{
				{
					ID:              scenarioSubmission - 1,
					ParticipationID: scenarioParticipation,
					CommitHash:      "a1b2c3d",
					Results: []models.MResult{
						{
							ID:             scenarioResult - 1,
							CompletionDate: &completed,
							Successful:     &successful,
							Score:          &score,
						},
					},
				},
			},
		},
	})
}

// -----------------------------------------------------------------------------

// runBuildLifecycle pushes a full submission cycle over the realtime channel:
// new submission, queued, building with an estimate, then the graded result.
func runBuildLifecycle(lms *FakeLMS, reconciler *reconcile.Reconciler, appLogger *logger.Logger) {
	logStatus := func(stage string) {
		s := reconciler.StatusFor(scenarioParticipation)
		appLogger.Info("[%s] kind=%s submission=%d progress=%.1f indeterminate=%v", stage, s.Kind, s.SubmissionID, s.Progress, s.Indeterminate)
	}

	logStatus("after-backfill")

	// 1. Student pushes a commit
	now := time.Now()
	lms.Push(realtime.TopicPersonalSubmissions, models.MSubmission{
		ID:              scenarioSubmission,
		ParticipationID: scenarioParticipation,
		SubmissionDate:  &now,
		CommitHash:      "d4e5f6a",
	})
	time.Sleep(300 * time.Millisecond)
	logStatus("after-submission")

	// 2. Build queued
	lms.Push(realtime.TopicPersonalBuildProcessing, models.MSubmissionProcessing{
		ParticipationID: scenarioParticipation,
		SubmissionID:    scenarioSubmission,
		SubmissionState: models.SubmissionStateQueued,
	})
	time.Sleep(300 * time.Millisecond)
	logStatus("after-queued")

	// 3. Build starts with a 3 second estimate
	start := time.Now()
	eta := start.Add(3 * time.Second)
	lms.Push(realtime.TopicPersonalBuildProcessing, models.MSubmissionProcessing{
		ParticipationID:         scenarioParticipation,
		SubmissionID:            scenarioSubmission,
		SubmissionState:         models.SubmissionStateBuilding,
		BuildStartDate:          &start,
		EstimatedCompletionDate: &eta,
	})
	time.Sleep(1500 * time.Millisecond)
	logStatus("mid-build")

	// 4. Grading finishes
	completed := time.Now()
	successful := true
	score := 92.0
	tests := 12
	passed := 11
	lms.Push(realtime.TopicPersonalResults, models.MResult{
		ID:             scenarioResult,
		CompletionDate: &completed,
		Successful:     &successful,
		Score:          &score,
		TestCaseCount:  &tests,
		PassedTestCaseCount: &passed,
		Submission: &models.MSubmission{
			ID:              scenarioSubmission,
			ParticipationID: scenarioParticipation,
		},
	})
	time.Sleep(300 * time.Millisecond)
	logStatus("after-result")

	// 5. A stale event for the old submission must be discarded
	lms.Push(realtime.TopicPersonalBuildProcessing, models.MSubmissionProcessing{
		ParticipationID: scenarioParticipation,
		SubmissionID:    scenarioSubmission - 1,
		SubmissionState: models.SubmissionStateBuilding,
	})
	time.Sleep(300 * time.Millisecond)
	logStatus("after-stale-event")

	appLogger.Info("Stale events discarded: %d", reconciler.StaleDiscarded())
}
