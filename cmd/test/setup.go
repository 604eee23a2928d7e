package main

import (
	"os"
	"path/filepath"

	"submission-observer/src/interfaces"
	"submission-observer/src/logger"
	"submission-observer/src/models"
	"submission-observer/src/progress"
	"submission-observer/src/realtime"
	"submission-observer/src/reconcile"
	"submission-observer/src/rest"
)

// -----------------------------------------------------------------------------

// buildConfig assembles an in-memory configuration pointed at the fake LMS.
func buildConfig(baseURL, tokenFile string) *models.MConfig {
	return &models.MConfig{
		Name:     "submission-observer-test",
		LogLevel: "DEBUG",
		Server:   models.MServerConfig{BaseURL: baseURL},
		Realtime: models.MRealtimeConfig{
			WebsocketPath:         "/websocket/tracker/websocket",
			ReconnectDelaySeconds: 1,
			MaxReportedReconnects: 20,
			ETATickMillis:         200,
		},
		Rest: models.MRestConfig{
			RequestTimeout:       5,
			MaxRetries:           2,
			HealthTimeoutSeconds: 2,
		},
		Credential: models.MCredentialConfig{TokenFile: tokenFile},
	}
}

// -----------------------------------------------------------------------------

// writeTokenFile stores the session token where the observer's credential
// source will find it.
func writeTokenFile(token string) (string, error) {
	dir, err := os.MkdirTemp("", "submission-observer-test")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return "", err
	}
	return path, nil
}

// -----------------------------------------------------------------------------

// observerStack bundles the wired observer components for the harness.
type observerStack struct {
	Manager    *realtime.ConnectionManager
	Reconciler *reconcile.Reconciler
	Registry   *reconcile.ExerciseRegistry
	Projector  *progress.ETAProjector
	Fanout     *realtime.Fanout
}

// -----------------------------------------------------------------------------

// setupObserver wires the full observer pipeline against a credential source,
// mirroring the production wiring in cmd/main.
func setupObserver(conf *models.MConfig, creds interfaces.ICredentialSource, appLogger *logger.Logger) *observerStack {
	var restClient interfaces.IRestClient = rest.NewAsyncRestClient(conf, creds, appLogger)

	projector := progress.NewETAProjector(conf.Realtime.ETATickMillis, logger.NewLogger(conf.LogLevel, "Projector"))
	registry := reconcile.NewExerciseRegistry(logger.NewLogger(conf.LogLevel, "Registry"))

	reconciler := reconcile.NewReconciler(restClient, projector, nil, logger.NewLogger(conf.LogLevel, "Reconciler"))
	reconciler.Registry = registry

	fanout := realtime.NewFanout(appLogger)
	fanout.OnNewResult(reconciler.HandleNewResult)
	fanout.OnNewSubmission(reconciler.HandleNewSubmission)
	fanout.OnSubmissionProcessing(reconciler.HandleSubmissionProcessing)
	fanout.OnError(func(err error) {
		appLogger.Warning("Realtime channel error: %v", err)
	})

	manager := realtime.NewConnectionManager(conf, creds, fanout, logger.NewLogger(conf.LogLevel, "Realtime"))

	return &observerStack{
		Manager:    manager,
		Reconciler: reconciler,
		Registry:   registry,
		Projector:  projector,
		Fanout:     fanout,
	}
}
