package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------

func registryLogger() *logger.Logger {
	return logger.NewLogger("ERROR", "RegistryTest")
}

// -----------------------------------------------------------------------------

func TestRegistry_SubscribeIsIdempotent(t *testing.T) {
	var sent []models.MSubscribeCommand
	r := NewSubscriptionRegistry(registryLogger(),
		func(cmd models.MSubscribeCommand) error { sent = append(sent, cmd); return nil },
		func() bool { return true })

	require.NoError(t, r.Subscribe("/user/topic/newResults"))
	require.NoError(t, r.Subscribe("/user/topic/newResults"))
	require.NoError(t, r.Subscribe("/user/topic/newResults"))

	// Exactly one frame on the wire
	assert.Len(t, sent, 1)
	assert.Equal(t, "subscribe", sent[0].Command)
	assert.Equal(t, 1, r.Count())
}

// -----------------------------------------------------------------------------

func TestRegistry_SubscribeWhileDisconnectedIsSkipped(t *testing.T) {
	var sent []models.MSubscribeCommand
	r := NewSubscriptionRegistry(registryLogger(),
		func(cmd models.MSubscribeCommand) error { sent = append(sent, cmd); return nil },
		func() bool { return false })

	// Racing with connect is legitimate: warn, do not fail
	require.NoError(t, r.Subscribe("/user/topic/newResults"))
	assert.Empty(t, sent)
	assert.Equal(t, 0, r.Count())
}

// -----------------------------------------------------------------------------

func TestRegistry_UnsubscribeAll(t *testing.T) {
	var sent []models.MSubscribeCommand
	r := NewSubscriptionRegistry(registryLogger(),
		func(cmd models.MSubscribeCommand) error { sent = append(sent, cmd); return nil },
		func() bool { return true })

	for _, topic := range PersonalTopics() {
		require.NoError(t, r.Subscribe(topic))
	}
	require.Equal(t, 3, r.Count())
	sent = nil

	r.UnsubscribeAll()
	assert.Equal(t, 0, r.Count())
	assert.Len(t, sent, 3)
	for _, cmd := range sent {
		assert.Equal(t, "unsubscribe", cmd.Command)
	}

	// Second call must be a silent no-op
	sent = nil
	r.UnsubscribeAll()
	assert.Empty(t, sent)
}

// -----------------------------------------------------------------------------

func TestRegistry_InvalidateAllSendsNoFrames(t *testing.T) {
	var sent []models.MSubscribeCommand
	r := NewSubscriptionRegistry(registryLogger(),
		func(cmd models.MSubscribeCommand) error { sent = append(sent, cmd); return nil },
		func() bool { return true })

	for _, topic := range PersonalTopics() {
		require.NoError(t, r.Subscribe(topic))
	}
	sent = nil

	// The connection is gone, the server-side handles with it
	r.InvalidateAll()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, sent)
	assert.Empty(t, r.Topics())
}

// -----------------------------------------------------------------------------

func TestRegistry_TopicsPreservesOrder(t *testing.T) {
	r := NewSubscriptionRegistry(registryLogger(),
		func(models.MSubscribeCommand) error { return nil },
		func() bool { return true })

	for _, topic := range PersonalTopics() {
		require.NoError(t, r.Subscribe(topic))
	}

	assert.Equal(t, PersonalTopics(), r.Topics())
}
