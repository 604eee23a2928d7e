package progress

import (
	"sync"
	"time"

	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// Progress arithmetic
// -----------------------------------------------------------------------------

// ProgressPercent computes the build progress percentage for the given
// timing pair, clamped to [ProgressFloor, 100]. Once now reaches the estimate
// the percentage is no longer meaningful: completion is not guaranteed at ETA,
// so the second return value flips to true (indeterminate) instead of freezing
// at 100%.
func ProgressPercent(start, eta, now time.Time) (float64, bool) {
	if !eta.After(start) {
		return 0, true
	}
	if !now.Before(eta) {
		// Estimate expired
		return 0, true
	}

	pct := float64(now.Sub(start)) / float64(eta.Sub(start)) * 100
	if pct < models.ProgressFloor {
		pct = models.ProgressFloor
	}
	if pct > 100 {
		pct = 100
	}
	return pct, false
}

// -----------------------------------------------------------------------------

// RemainingSeconds returns the seconds left until the estimate, floored at 0.
func RemainingSeconds(eta, now time.Time) float64 {
	remaining := eta.Sub(now).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// -----------------------------------------------------------------------------
// ETA Projector
// -----------------------------------------------------------------------------

// TickListener receives a recomputed (progress, remaining) pair on every tick.
type TickListener func(participationID int64, progress float64, remainingSeconds float64)

// ExpiryListener is signalled once when an estimate expires. The reconciler
// uses it to fall back to indeterminate display; the projector itself holds no
// state machine logic, only arithmetic plus a ticking clock.
type ExpiryListener func(participationID int64)

// -----------------------------------------------------------------------------

// ETAProjector runs at most one tick loop per displayed participation.
// Starting a loop for new timing info cancels any prior loop, so timers never
// duplicate or drift.
type ETAProjector struct {
	Logger       *logger.Logger
	TickInterval time.Duration
	Now          func() time.Time // Injectable clock

	mu       sync.Mutex
	loops    map[int64]chan struct{}
	onTick   TickListener
	onExpiry ExpiryListener
}

// -----------------------------------------------------------------------------

func NewETAProjector(tickMillis int, log *logger.Logger) *ETAProjector {
	return &ETAProjector{
		Logger:       log,
		TickInterval: time.Duration(tickMillis) * time.Millisecond,
		Now:          time.Now,
		loops:        make(map[int64]chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// OnTick registers the tick callback. Set once during wiring, before Start.
func (p *ETAProjector) OnTick(l TickListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTick = l
}

// -----------------------------------------------------------------------------

// OnExpiry registers the expiry callback. Set once during wiring, before Start.
func (p *ETAProjector) OnExpiry(l ExpiryListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExpiry = l
}

// -----------------------------------------------------------------------------

// Start begins projecting for one participation, cancelling any prior loop for
// it. Timing pairs missing either date are ignored: there is nothing to
// project and the caller already renders indeterminate.
func (p *ETAProjector) Start(participationID int64, timing *models.MBuildTimingInfo) {
	if !timing.Complete() {
		p.Stop(participationID)
		return
	}

	start := *timing.BuildStartDate
	eta := *timing.EstimatedCompletionDate

	p.mu.Lock()
	if prior, exists := p.loops[participationID]; exists {
		close(prior)
	}
	cancel := make(chan struct{})
	p.loops[participationID] = cancel
	p.mu.Unlock()

	go p.runLoop(participationID, start, eta, cancel)
}

// -----------------------------------------------------------------------------

// runLoop recomputes remaining time and progress on every tick until the
// estimate expires or the loop is cancelled.
func (p *ETAProjector) runLoop(participationID int64, start, eta time.Time, cancel <-chan struct{}) {
	ticker := time.NewTicker(p.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return

		case <-ticker.C:
			now := p.Now()
			pct, indeterminate := ProgressPercent(start, eta, now)

			if indeterminate {
				p.Logger.Debug("Estimate expired for participation %d", participationID)
				p.finish(participationID, cancel)
				if expiry := p.expiryListener(); expiry != nil {
					expiry(participationID)
				}
				return
			}

			if tick := p.tickListener(); tick != nil {
				tick(participationID, pct, RemainingSeconds(eta, now))
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Stop cancels the loop for one participation. It does not wait for the loop
// goroutine: a tick already in flight is discarded by the reconciler's own
// state check.
func (p *ETAProjector) Stop(participationID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, exists := p.loops[participationID]; exists {
		close(cancel)
		delete(p.loops, participationID)
	}
}

// -----------------------------------------------------------------------------

// StopAll cancels every active loop.
func (p *ETAProjector) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, cancel := range p.loops {
		close(cancel)
		delete(p.loops, id)
	}
}

// -----------------------------------------------------------------------------

// ActiveLoops returns the number of running tick loops.
func (p *ETAProjector) ActiveLoops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loops)
}

// -----------------------------------------------------------------------------

// finish removes the loop entry if it is still the current one for this
// participation (a replacement may already have started).
func (p *ETAProjector) finish(participationID int64, cancel <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, exists := p.loops[participationID]; exists && (<-chan struct{})(current) == cancel {
		delete(p.loops, participationID)
	}
}

// -----------------------------------------------------------------------------

func (p *ETAProjector) tickListener() TickListener {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onTick
}

// -----------------------------------------------------------------------------

func (p *ETAProjector) expiryListener() ExpiryListener {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onExpiry
}
