package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"submission-observer/src/credentials"
	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// End-to-end smoke run: fake LMS + full observer stack + scripted lifecycle.
// -----------------------------------------------------------------------------

func main() {
	// 1. Parse command line flags
	port := flag.Int("port", 9190, "port for the fake LMS")
	token := flag.String("token", "test-session-token", "session token")
	flag.Parse()

	appLogger := logger.NewLogger("DEBUG", "ObserverTest")

	// 2. Fake LMS with a seeded dashboard
	lms := NewFakeLMS(logger.NewLogger("DEBUG", "FakeLMS"), *token)
	seedDashboard(lms)

	go func() {
		if err := lms.Start(fmt.Sprintf("127.0.0.1:%d", *port)); err != nil {
			appLogger.Critical("Fake LMS failed: %v", err)
			os.Exit(1)
		}
	}()
	time.Sleep(200 * time.Millisecond)

	// 3. Credential and config pointed at the fake LMS
	tokenFile, err := writeTokenFile(*token)
	if err != nil {
		appLogger.Critical("Failed to write token file: %v", err)
		os.Exit(1)
	}

	conf := buildConfig(fmt.Sprintf("http://127.0.0.1:%d", *port), tokenFile)
	creds := credentials.NewFileSource(&conf.Credential, logger.NewLogger(conf.LogLevel, "Credentials"))

	// 4. Observer stack
	stack := setupObserver(conf, creds, appLogger)

	// 5. Cold-start backfill, then connect the realtime channel
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := stack.Reconciler.Backfill(ctx); err != nil {
		appLogger.Critical("Backfill failed: %v", err)
		os.Exit(1)
	}

	if err := stack.Manager.Connect(ctx); err != nil {
		appLogger.Critical("Connect failed: %v", err)
		os.Exit(1)
	}
	time.Sleep(300 * time.Millisecond)

	appLogger.Info("Connected, %d websocket clients on fake LMS, topics: %v", lms.ClientCount(), stack.Manager.SubscribedTopics())

	// 6. Run the scripted lifecycle
	runBuildLifecycle(lms, stack.Reconciler, appLogger)

	// 7. Verify the terminal state
	final := stack.Reconciler.StatusFor(scenarioParticipation)
	if final.Kind != models.StatusCompleted || final.SubmissionID != scenarioSubmission {
		appLogger.Error("Unexpected terminal state: %+v", final)
		os.Exit(1)
	}

	appLogger.Info("Scenario complete: %+v", final)

	// 8. Shutdown
	stack.Manager.Disconnect()
	stack.Projector.StopAll()
}
