package notifications

import (
	"encoding/json"
	"time"
)

// Type discriminates daemon messages.
type Type string

const (
	TypeLocationStale     Type = "LOCATION_STALE"
	TypeSubmissionSuccess Type = "SUBMISSION_SUCCESS"
	TypeSubmissionFailed  Type = "SUBMISSION_FAILED"
	TypeQueueProcessed    Type = "QUEUE_PROCESSED"
)

// Summary counts the outcome of one background pass.
type Summary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Stale     int `json:"stale"`
}

// Message is posted by the daemon to any listening foreground client.
// Sequence and Timestamp are assigned by the Hub.
type Message struct {
	Type         Type
	SubmissionID string
	Duplicate    bool
	Error        string
	Retrying     bool
	Results      *Summary
	Tag          string
	Sequence     uint64
	Timestamp    time.Time
}

type wireMessage struct {
	Type         Type      `json:"type"`
	SubmissionID string    `json:"submissionId,omitempty"`
	Duplicate    *bool     `json:"duplicate,omitempty"`
	Error        *string   `json:"error,omitempty"`
	Retrying     bool      `json:"retrying,omitempty"`
	Results      *Summary  `json:"results,omitempty"`
	Tag          string    `json:"tag,omitempty"`
	Sequence     uint64    `json:"seq,omitempty"`
	Timestamp    time.Time `json:"ts"`
}

// MarshalJSON emits only the fields that belong to the message type.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{
		Type:      m.Type,
		Tag:       m.Tag,
		Sequence:  m.Sequence,
		Timestamp: m.Timestamp,
	}
	switch m.Type {
	case TypeLocationStale:
		wire.SubmissionID = m.SubmissionID
	case TypeSubmissionSuccess:
		wire.SubmissionID = m.SubmissionID
		dup := m.Duplicate
		wire.Duplicate = &dup
	case TypeSubmissionFailed:
		wire.SubmissionID = m.SubmissionID
		msg := m.Error
		wire.Error = &msg
		wire.Retrying = m.Retrying
	case TypeQueueProcessed:
		results := Summary{}
		if m.Results != nil {
			results = *m.Results
		}
		wire.Results = &results
	default:
		wire.SubmissionID = m.SubmissionID
	}
	return json.Marshal(wire)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Message{
		Type:         wire.Type,
		SubmissionID: wire.SubmissionID,
		Retrying:     wire.Retrying,
		Results:      wire.Results,
		Tag:          wire.Tag,
		Sequence:     wire.Sequence,
		Timestamp:    wire.Timestamp,
	}
	if wire.Duplicate != nil {
		m.Duplicate = *wire.Duplicate
	}
	if wire.Error != nil {
		m.Error = *wire.Error
	}
	return nil
}

// LocationStale builds a LOCATION_STALE message.
func LocationStale(id string) Message {
	return Message{Type: TypeLocationStale, SubmissionID: id}
}

// SubmissionSucceeded builds a SUBMISSION_SUCCESS message.
func SubmissionSucceeded(id string, duplicate bool) Message {
	return Message{Type: TypeSubmissionSuccess, SubmissionID: id, Duplicate: duplicate}
}

// SubmissionFailed builds a SUBMISSION_FAILED message.
func SubmissionFailed(id, errMsg string) Message {
	return Message{Type: TypeSubmissionFailed, SubmissionID: id, Error: errMsg}
}

// SubmissionRetrying builds a SUBMISSION_FAILED message for a record that
// stays queued for another attempt.
func SubmissionRetrying(id, errMsg string) Message {
	return Message{Type: TypeSubmissionFailed, SubmissionID: id, Error: errMsg, Retrying: true}
}

// QueueProcessed builds a QUEUE_PROCESSED message.
func QueueProcessed(summary Summary) Message {
	return Message{Type: TypeQueueProcessed, Results: &summary}
}
