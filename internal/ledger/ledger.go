// Package ledger exposes the append-only event history: the single source
// of truth every derived view must be reconstructible from.
package ledger

import (
	"context"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

// Filter narrows a history read. See store.EventFilter for field meaning.
type Filter = store.EventFilter

// Page is one finite window of a couple's history. NextCursor restarts the
// read where this page ended; Done reports that the history is exhausted.
type Page struct {
	Events     []core.LedgerEvent
	NextCursor int64
	Done       bool
}

type Ledger struct {
	store  store.Store
	logger *applog.Logger
}

func New(st store.Store, logger *applog.Logger) *Ledger {
	return &Ledger{store: st, logger: logger.WithComponent("ledger")}
}

// Append validates and durably persists an event, assigning its per-couple
// sequence number. It is the only write path into history.
func (l *Ledger) Append(ctx context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	if err := event.Validate(); err != nil {
		return core.LedgerEvent{}, err
	}

	appended, err := l.store.AppendEvent(ctx, event)
	if err != nil {
		return core.LedgerEvent{}, err
	}

	l.logger.InfoContext(ctx, "ledger event appended",
		"event_id", appended.ID,
		"couple_id", appended.CoupleID,
		"seq", appended.Sequence,
		"kind", appended.Kind,
		"amount_cents", appended.Amount.Cents)

	return appended, nil
}

// Read returns events matching the filter in sequence order.
func (l *Ledger) Read(ctx context.Context, filter Filter) ([]core.LedgerEvent, error) {
	return l.store.ListEvents(ctx, filter)
}

// ReadSince returns the next page of a couple's history after the cursor.
// Cursor zero starts from the beginning; the returned cursor is the
// sequence number of the last event in the page.
func (l *Ledger) ReadSince(ctx context.Context, coupleID string, cursor int64, limit int) (Page, error) {
	if limit <= 0 {
		limit = 100
	}

	events, err := l.store.ListEvents(ctx, Filter{
		CoupleID: coupleID,
		AfterSeq: cursor,
		Limit:    limit,
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{Events: events, NextCursor: cursor, Done: len(events) < limit}
	if len(events) > 0 {
		page.NextCursor = events[len(events)-1].Sequence
	}
	return page, nil
}

// GoalContributions sums the signed ledger contributions to a goal within
// the window: allocations and reallocations in, reversals of either out.
func (l *Ledger) GoalContributions(ctx context.Context, goalID string, since, until time.Time) (core.Money, error) {
	events, err := l.store.ListEvents(ctx, Filter{
		GoalID: goalID,
		Since:  since,
		Until:  until,
	})
	if err != nil {
		return core.Money{}, err
	}

	var total core.Money
	for _, e := range events {
		switch e.Kind {
		case core.EventAllocation, core.EventReallocation, core.EventReversal:
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}
