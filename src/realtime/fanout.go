package realtime

import (
	"fmt"
	"sync"

	"submission-observer/src/interfaces"
	"submission-observer/src/logger"
)

// -----------------------------------------------------------------------------
// Handler Fan-out
// -----------------------------------------------------------------------------

// Fanout delivers decoded events to the registered typed listeners:
// synchronously, in registration order, with every invocation isolated so one
// listener panicking cannot block the rest or the channel.
type Fanout struct {
	Logger *logger.Logger

	mu                  sync.RWMutex
	resultListeners     []interfaces.ResultListener
	submissionListeners []interfaces.SubmissionListener
	processingListeners []interfaces.ProcessingListener
	errorListeners      []interfaces.ErrorListener
}

// -----------------------------------------------------------------------------

func NewFanout(log *logger.Logger) *Fanout {
	return &Fanout{
		Logger: log,
	}
}

// -----------------------------------------------------------------------------
// Listener registration
// -----------------------------------------------------------------------------

func (f *Fanout) OnNewResult(l interfaces.ResultListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultListeners = append(f.resultListeners, l)
}

// -----------------------------------------------------------------------------

func (f *Fanout) OnNewSubmission(l interfaces.SubmissionListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissionListeners = append(f.submissionListeners, l)
}

// -----------------------------------------------------------------------------

func (f *Fanout) OnSubmissionProcessing(l interfaces.ProcessingListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processingListeners = append(f.processingListeners, l)
}

// -----------------------------------------------------------------------------

func (f *Fanout) OnError(l interfaces.ErrorListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorListeners = append(f.errorListeners, l)
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// Dispatch routes one decoded event to the listeners of its variant.
func (f *Fanout) Dispatch(event *InboundEvent) {
	switch event.Kind {
	case EventNewResult:
		f.mu.RLock()
		listeners := f.resultListeners
		f.mu.RUnlock()
		for _, l := range listeners {
			f.safeInvoke("result listener", func() { l(*event.Result) })
		}

	case EventNewSubmission:
		f.mu.RLock()
		listeners := f.submissionListeners
		f.mu.RUnlock()
		for _, l := range listeners {
			f.safeInvoke("submission listener", func() { l(*event.Submission) })
		}

	case EventSubmissionProcessing:
		f.mu.RLock()
		listeners := f.processingListeners
		f.mu.RUnlock()
		for _, l := range listeners {
			f.safeInvoke("processing listener", func() { l(*event.Processing) })
		}
	}
}

// -----------------------------------------------------------------------------

// DispatchError surfaces a connection-level error to the error listeners.
func (f *Fanout) DispatchError(err error) {
	f.mu.RLock()
	listeners := f.errorListeners
	f.mu.RUnlock()

	for _, l := range listeners {
		f.safeInvoke("error listener", func() { l(err) })
	}
}

// -----------------------------------------------------------------------------

// safeInvoke runs one listener with panic isolation.
func (f *Fanout) safeInvoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.Logger.Error("Recovered panic in %s: %v", name, fmt.Errorf("%v", r))
		}
	}()
	fn()
}
