package amqp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/drift"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Run("drift message", func(t *testing.T) {
		flag := drift.Flag{
			CoupleID:     "couple-1",
			GoalID:       "goal-1",
			GoalName:     "house",
			Reason:       drift.ReasonLowVelocity,
			ObservedRate: core.Cents(40_000),
			RequiredRate: core.Cents(100_000),
			Deadline:     time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC),
		}
		body, err := wrap(KindDrift, DriftMessage{
			CoupleID:      flag.CoupleID,
			GoalID:        flag.GoalID,
			Reason:        string(flag.Reason),
			ObservedCents: flag.ObservedRate.Cents,
			RequiredCents: flag.RequiredRate.Cents,
			Deadline:      flag.Deadline,
		})
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}

		env, err := EnvelopeFromJSON(body)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Kind != KindDrift {
			t.Errorf("kind = %q, want %q", env.Kind, KindDrift)
		}
		var msg DriftMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if msg.GoalID != "goal-1" || msg.ObservedCents != 40_000 {
			t.Errorf("payload = %+v", msg)
		}
	})

	t.Run("undecodable body is an error", func(t *testing.T) {
		if _, err := EnvelopeFromJSON([]byte("not json")); err == nil {
			t.Error("expected a decode error")
		}
	})
}
