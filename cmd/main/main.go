package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"submission-observer/src/config"
	"submission-observer/src/credentials"
	"submission-observer/src/helpers"
	"submission-observer/src/interfaces"
	"submission-observer/src/logger"
	"submission-observer/src/models"
	"submission-observer/src/progress"
	"submission-observer/src/realtime"
	"submission-observer/src/reconcile"
	"submission-observer/src/rest"
	"submission-observer/src/server"
	"submission-observer/src/storage"
	"submission-observer/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.LogLevel, config.Name)

	// 2. Credential source
	var creds interfaces.ICredentialSource = credentials.NewFileSource(&config.Credential, appLogger)
	if !creds.Available() {
		appLogger.Warning("No credential available yet, realtime connect will wait for one")
	}

	// 3. Event journal (optional)
	var journal interfaces.IJournal
	if config.Journal.Enabled {
		db, err := storage.NewAsyncJournalDB(config.MConfig, appLogger)
		if err != nil {
			appLogger.Critical("Failed to init journal: %v", err)
		}
		if err := db.Initialize(); err != nil {
			appLogger.Critical("Failed to migrate journal: %v", err)
		}
		if err := db.CleanupOldEvents(); err != nil {
			appLogger.Warning("Journal cleanup failed: %v", err)
		}
		defer db.Close()
		journal = db
	}

	// 4. Core components
	var restClient interfaces.IRestClient = rest.NewAsyncRestClient(config.MConfig, creds, appLogger)
	projector := progress.NewETAProjector(config.Realtime.ETATickMillis, appLogger)
	registry := reconcile.NewExerciseRegistry(appLogger)

	reconciler := reconcile.NewReconciler(restClient, projector, journal, appLogger)
	reconciler.Registry = registry

	eventBuffer := utils.NewEventBuffer(256)

	// 5. Realtime fan-out wiring
	fanout := realtime.NewFanout(appLogger)
	fanout.OnNewResult(reconciler.HandleNewResult)
	fanout.OnNewSubmission(reconciler.HandleNewSubmission)
	fanout.OnSubmissionProcessing(reconciler.HandleSubmissionProcessing)
	fanout.OnError(func(err error) {
		appLogger.Warning("Realtime channel error: %v", err)
	})

	manager := realtime.NewConnectionManager(config.MConfig, creds, fanout, appLogger)

	// A reconnect can have missed events, backfill to catch up
	fanout.OnError(func(err error) {
		if helpers.IsTransportError(err) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				defer cancel()
				err := helpers.RetryWithBackoff(ctx, appLogger, "post-disconnect backfill", 3, 2*time.Second, func() error {
					return reconciler.Backfill(ctx)
				})
				if err != nil {
					appLogger.Warning("Post-disconnect backfill failed: %v", err)
				}
			}()
		}
	})

	reconciler.OnStatusChanged(func(participationID int64, status models.MReconciledStatus) {
		appLogger.Debug("Status for participation %d: %s (submission %d)", participationID, status.Kind, status.SubmissionID)
		eventBuffer.Append(models.MEventRecord{
			Timestamp:       time.Now().Unix(),
			Kind:            "status",
			ParticipationID: participationID,
			SubmissionID:    status.SubmissionID,
			Detail:          string(status.Kind),
		})
	})

	// 6. Cold start: seed state from REST before connecting the channel, so a
	// finished build renders Completed immediately instead of flashing Queued
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = helpers.RetryWithBackoff(startupCtx, appLogger, "initial backfill", 2, time.Second, func() error {
		return reconciler.Backfill(startupCtx)
	})
	if err != nil {
		appLogger.Warning("Initial backfill failed: %v", err)
	}
	startupCancel()

	// 7. Realtime connect, one retry on transport failure before handing over
	// to the reconnect loop
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := manager.Connect(connectCtx); err != nil {
		if helpers.IsTransportError(err) {
			appLogger.Warning("Initial connect failed, retrying once: %v", err)
			time.Sleep(time.Duration(config.Realtime.ReconnectDelaySeconds) * time.Second)
			err = manager.Connect(connectCtx)
		}
		if err != nil {
			appLogger.Error("Realtime channel unavailable: %v", err)
		}
	}
	connectCancel()

	// 8. Status server (loopback troubleshooting surface)
	if config.Status.Enabled {
		srv := server.NewStatusServer(config.MConfig, appLogger, manager, reconciler, registry, journal, creds, eventBuffer)
		go func() {
			if err := srv.Start(); err != nil {
				appLogger.Error("Status server failed: %v", err)
			}
		}()
	}

	appLogger.Info("Initialization complete.")

	// 9. Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	manager.Disconnect()
	projector.StopAll()
	reconciler.Clear()
	registry.Clear()
}
