package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Wire frames for the realtime channel
// -----------------------------------------------------------------------------

// MTopicFrame is the envelope for every inbound message: the topic it was
// published on plus the raw payload, decoded in a second step so a malformed
// payload never takes the channel down.
type MTopicFrame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for channel control messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command string `json:"command"` // "subscribe" or "unsubscribe"
	Topic   string `json:"topic"`
}
