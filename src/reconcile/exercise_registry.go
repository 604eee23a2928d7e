package reconcile

import (
	"strings"
	"sync"

	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// Exercise registry (workspace repository -> participation resolution)
// -----------------------------------------------------------------------------

// ExerciseRegistry maps workspace repository URLs to participations. It is
// populated explicitly from the REST backfill and cleared on logout, so a
// stale mapping from a previous session can never resolve.
type ExerciseRegistry struct {
	Logger *logger.Logger

	mu      sync.RWMutex
	byRepo  map[string]models.MParticipation
	byID    map[int64]models.MParticipation
}

// -----------------------------------------------------------------------------

func NewExerciseRegistry(log *logger.Logger) *ExerciseRegistry {
	return &ExerciseRegistry{
		Logger: log,
		byRepo: make(map[string]models.MParticipation),
		byID:   make(map[int64]models.MParticipation),
	}
}

// -----------------------------------------------------------------------------

// Register records one participation under its repository URL. Re-registering
// the same URL replaces the old entry.
func (e *ExerciseRegistry) Register(p models.MParticipation) {
	key := normalizeRepoURL(p.RepositoryURL)
	if key == "" {
		e.Logger.Debug("Participation %d has no repository URL, not registered", p.ID)
		return
	}

	e.mu.Lock()
	e.byRepo[key] = p
	e.byID[p.ID] = p
	e.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Populate replaces the registry content with a fresh participation set.
func (e *ExerciseRegistry) Populate(participations []models.MParticipation) {
	e.mu.Lock()
	e.byRepo = make(map[string]models.MParticipation, len(participations))
	e.byID = make(map[int64]models.MParticipation, len(participations))
	e.mu.Unlock()

	for i := range participations {
		e.Register(participations[i])
	}
	e.Logger.Debug("Exercise registry populated with %d participations", len(participations))
}

// -----------------------------------------------------------------------------

// Resolve looks up the participation owning a workspace repository URL.
func (e *ExerciseRegistry) Resolve(repositoryURL string) (models.MParticipation, bool) {
	key := normalizeRepoURL(repositoryURL)

	e.mu.RLock()
	defer e.mu.RUnlock()
	p, found := e.byRepo[key]
	return p, found
}

// -----------------------------------------------------------------------------

// Lookup returns a participation by id.
func (e *ExerciseRegistry) Lookup(participationID int64) (models.MParticipation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, found := e.byID[participationID]
	return p, found
}

// -----------------------------------------------------------------------------

// Count returns how many participations are registered.
func (e *ExerciseRegistry) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byID)
}

// -----------------------------------------------------------------------------

// Clear empties the registry. Called on logout together with the reconciler.
func (e *ExerciseRegistry) Clear() {
	e.mu.Lock()
	e.byRepo = make(map[string]models.MParticipation)
	e.byID = make(map[int64]models.MParticipation)
	e.mu.Unlock()

	e.Logger.Info("Exercise registry cleared")
}

// -----------------------------------------------------------------------------

// normalizeRepoURL canonicalizes a repository URL for map lookup: case folded,
// trailing slash and ".git" suffix stripped.
func normalizeRepoURL(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	return s
}
