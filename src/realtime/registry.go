package realtime

import (
	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// Subscription Registry
// -----------------------------------------------------------------------------

// FrameSender pushes one control command onto the current connection. It fails
// when no connection is alive.
type FrameSender func(cmd models.MSubscribeCommand) error

// -----------------------------------------------------------------------------

// SubscriptionRegistry tracks active topic subscriptions over the connection.
// Handles are invalidated on disconnect and recreated (never reused) after a
// reconnect. Not safe for concurrent use on its own: the owning connection
// manager serializes access.
type SubscriptionRegistry struct {
	Logger *logger.Logger

	order     []string // Insertion order, kept deterministic for testability
	active    map[string]struct{}
	send      FrameSender
	connected func() bool
}

// -----------------------------------------------------------------------------

func NewSubscriptionRegistry(log *logger.Logger, send FrameSender, connected func() bool) *SubscriptionRegistry {
	return &SubscriptionRegistry{
		Logger:    log,
		active:    make(map[string]struct{}),
		send:      send,
		connected: connected,
	}
}

// -----------------------------------------------------------------------------

// Subscribe registers a topic subscription. Idempotent: an already-subscribed
// topic returns immediately. Racing with connect is legitimate, so a
// not-connected state is a logged warning, not an error.
func (r *SubscriptionRegistry) Subscribe(topic string) error {
	if !r.connected() {
		r.Logger.Warning("Subscribe to '%s' skipped: not connected", topic)
		return nil
	}

	if _, exists := r.active[topic]; exists {
		return nil
	}

	if err := r.send(models.MSubscribeCommand{Command: "subscribe", Topic: topic}); err != nil {
		return err
	}

	r.active[topic] = struct{}{}
	r.order = append(r.order, topic)
	r.Logger.Debug("Subscribed to '%s'", topic)
	return nil
}

// -----------------------------------------------------------------------------

// UnsubscribeAll tears down every subscription, then clears the bookkeeping.
// Already-gone subscriptions are skipped, so the call is idempotent.
func (r *SubscriptionRegistry) UnsubscribeAll() {
	for _, topic := range r.order {
		if _, exists := r.active[topic]; !exists {
			continue
		}
		if r.connected() {
			if err := r.send(models.MSubscribeCommand{Command: "unsubscribe", Topic: topic}); err != nil {
				r.Logger.Debug("Unsubscribe frame for '%s' not sent: %v", topic, err)
			}
		}
		delete(r.active, topic)
	}
	r.order = nil
}

// -----------------------------------------------------------------------------

// InvalidateAll drops the bookkeeping without sending frames. Used when the
// connection was lost: the server-side handles are already gone.
func (r *SubscriptionRegistry) InvalidateAll() {
	r.active = make(map[string]struct{})
	r.order = nil
}

// -----------------------------------------------------------------------------

// Topics returns the active topics in subscription order.
func (r *SubscriptionRegistry) Topics() []string {
	topics := make([]string, len(r.order))
	copy(topics, r.order)
	return topics
}

// -----------------------------------------------------------------------------

// Count returns the number of active subscriptions.
func (r *SubscriptionRegistry) Count() int {
	return len(r.active)
}
