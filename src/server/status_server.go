package server

import (
	"fmt"
	"strings"
	"time"

	"submission-observer/src/interfaces"
	"submission-observer/src/logger"
	"submission-observer/src/models"
	"submission-observer/src/realtime"
	"submission-observer/src/reconcile"
	"submission-observer/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// StatusServer
// -----------------------------------------------------------------------------

// StatusServer exposes a local troubleshooting surface over the observer's
// internal state. It binds to loopback only and is read-only: no endpoint
// mutates the reconciliation state.
type StatusServer struct {
	Config      *models.MConfig
	Logger      *logger.Logger
	Manager     *realtime.ConnectionManager
	Reconciler  *reconcile.Reconciler
	Registry    *reconcile.ExerciseRegistry
	Journal     interfaces.IJournal // Optional, nil when journaling is disabled
	Credentials interfaces.ICredentialSource
	Events      *utils.EventBuffer

	engine *gin.Engine
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewStatusServer(cfg *models.MConfig, log *logger.Logger, manager *realtime.ConnectionManager, reconciler *reconcile.Reconciler, registry *reconcile.ExerciseRegistry, journal interfaces.IJournal, credentials interfaces.ICredentialSource, events *utils.EventBuffer) *StatusServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &StatusServer{
		Config:      cfg,
		Logger:      log,
		Manager:     manager,
		Reconciler:  reconciler,
		Registry:    registry,
		Journal:     journal,
		Credentials: credentials,
		Events:      events,
		engine:      gin.Default(),
	}

	// Add CORS Middleware for local tooling
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *StatusServer) setupRoutes() {
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/status", s.getStatus)
	s.engine.GET("/api/events", s.getEvents)
	s.engine.GET("/api/participations/:id", s.getParticipation)
	s.engine.GET("/api/resolve", s.resolveRepository)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *StatusServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Status.Host, s.Config.Status.Port)
	s.Logger.Info("Starting status server on %s", addr)

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *StatusServer) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":           "ok",
		"connection_state": s.Manager.State().String(),
		"tracked":          s.Registry.Count(),
	})
}

// -----------------------------------------------------------------------------

// getStatus returns the full troubleshooting snapshot.
func (s *StatusServer) getStatus(c *gin.Context) {
	snapshot := models.MSnapshot{
		ConnectionState:       s.Manager.State().String(),
		CredentialAvailable:   s.Credentials.Available(),
		SubscribedTopics:      s.Manager.SubscribedTopics(),
		ReconnectAttempts:     s.Manager.ReconnectAttempts(),
		MaxReportedReconnects: s.Config.Realtime.MaxReportedReconnects,
		StaleEventsDiscarded:  s.Reconciler.StaleDiscarded(),
		DecodeFailures:        s.Manager.DecodeFailures(),
		Participations:        s.Reconciler.Statuses(),
		Timestamp:             time.Now().Unix(),
	}

	c.JSON(200, snapshot)
}

// -----------------------------------------------------------------------------

// getEvents returns recent event records, buffer first and journal as the
// deeper history when available.
func (s *StatusServer) getEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 {
			c.JSON(400, gin.H{"error": "invalid limit"})
			return
		}
	}

	recent := s.Events.GetLatest(limit)

	if len(recent) < limit && s.Journal != nil {
		rows, err := s.Journal.RecentEvents(limit)
		if err != nil {
			s.Logger.Warning("Journal read error: %v", err)
		} else if len(rows) > len(recent) {
			recent = rows
		}
	}

	c.JSON(200, gin.H{"events": recent})
}

// -----------------------------------------------------------------------------

func (s *StatusServer) getParticipation(c *gin.Context) {
	var id int64
	if _, err := fmt.Sscanf(c.Param("id"), "%d", &id); err != nil {
		c.JSON(400, gin.H{"error": "invalid participation id"})
		return
	}

	status := s.Reconciler.StatusFor(id)
	if status.Kind == models.StatusNoParticipation {
		c.JSON(404, status)
		return
	}

	c.JSON(200, status)
}

// -----------------------------------------------------------------------------

// resolveRepository maps a workspace repository URL to its participation and
// current status.
func (s *StatusServer) resolveRepository(c *gin.Context) {
	repo := c.Query("repo")
	if repo == "" {
		c.JSON(400, gin.H{"error": "missing repo parameter"})
		return
	}

	p, found := s.Registry.Resolve(repo)
	if !found {
		c.JSON(404, gin.H{"error": "no participation for repository"})
		return
	}

	c.JSON(200, gin.H{
		"participation": p,
		"status":        s.Reconciler.StatusFor(p.ID),
	})
}
