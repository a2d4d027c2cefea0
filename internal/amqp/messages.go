package amqp

import (
	"encoding/json"
	"time"
)

// ApprovalMessage notifies the partner-facing notification pipeline of an
// approval lifecycle transition. It carries identifiers only; consumers
// fetch the full record from the API.
type ApprovalMessage struct {
	ApprovalID string    `json:"approval_id"`
	CoupleID   string    `json:"couple_id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// DriftMessage notifies the pipeline of a goal flagged as off-track.
type DriftMessage struct {
	CoupleID      string    `json:"couple_id"`
	GoalID        string    `json:"goal_id"`
	GoalName      string    `json:"goal_name"`
	Reason        string    `json:"reason"`
	ObservedCents int64     `json:"observed_cents"`
	RequiredCents int64     `json:"required_cents"`
	Deadline      time.Time `json:"deadline"`
	Timestamp     time.Time `json:"timestamp"`
}

// Envelope is the wire format: a kind tag plus the kind-specific payload.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

const (
	KindApproval = "approval"
	KindDrift    = "drift"
)

func wrap(kind string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Payload: body})
}

// EnvelopeFromJSON decodes a raw delivery into its envelope.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
