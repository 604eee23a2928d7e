package realtime

import (
	"encoding/json"
	"fmt"

	"submission-observer/src/helpers"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// Event Decoder
// -----------------------------------------------------------------------------

type EventKind string

const (
	EventNewResult            EventKind = "NEW_RESULT"
	EventNewSubmission        EventKind = "NEW_SUBMISSION"
	EventSubmissionProcessing EventKind = "SUBMISSION_PROCESSING"
)

// -----------------------------------------------------------------------------

// InboundEvent is the tagged union of the three decoded event variants.
// Exactly one of the payload pointers is set, matching Kind. Immutable once
// decoded.
type InboundEvent struct {
	Kind       EventKind
	Topic      string
	Result     *models.MResult
	Submission *models.MSubmission
	Processing *models.MSubmissionProcessing
}

// -----------------------------------------------------------------------------

// DecodeMessage parses one raw inbound message into its typed event. The
// topic→variant mapping is fixed. Any failure is returned as a DecodeError for
// the caller to log and drop; it must never terminate the channel.
func DecodeMessage(raw []byte) (*InboundEvent, error) {
	var frame models.MTopicFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, helpers.NewDecodeError("malformed message envelope", err)
	}

	switch frame.Topic {
	case TopicPersonalResults:
		var result models.MResult
		if err := json.Unmarshal(frame.Payload, &result); err != nil {
			return nil, helpers.NewDecodeError("malformed result payload", err)
		}
		return &InboundEvent{Kind: EventNewResult, Topic: frame.Topic, Result: &result}, nil

	case TopicPersonalSubmissions:
		var submission models.MSubmission
		if err := json.Unmarshal(frame.Payload, &submission); err != nil {
			return nil, helpers.NewDecodeError("malformed submission payload", err)
		}
		return &InboundEvent{Kind: EventNewSubmission, Topic: frame.Topic, Submission: &submission}, nil

	case TopicPersonalBuildProcessing:
		var processing models.MSubmissionProcessing
		if err := json.Unmarshal(frame.Payload, &processing); err != nil {
			return nil, helpers.NewDecodeError("malformed processing payload", err)
		}
		return &InboundEvent{Kind: EventSubmissionProcessing, Topic: frame.Topic, Processing: &processing}, nil

	default:
		return nil, helpers.NewDecodeError(fmt.Sprintf("message on unknown topic '%s'", frame.Topic), nil)
	}
}
