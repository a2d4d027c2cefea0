// Package timeline renders the couple's ledger history as a human-readable
// activity feed. It is a pure projection over ledger events.
package timeline

import (
	"context"
	"fmt"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/ledger"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

// Entry is one rendered feed item.
type Entry struct {
	EventID   string     `json:"event_id"`
	Sequence  int64      `json:"sequence"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Amount    core.Money `json:"amount"`
	AccountID string     `json:"account_id,omitempty"`
	GoalID    string     `json:"goal_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Milestone bool       `json:"milestone,omitempty"`
	// MilestonePct is the funding threshold (25/50/75/100) this entry
	// pushed the goal across, when it crossed one.
	MilestonePct int    `json:"milestone_pct,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Feed is one page of the activity feed, newest entries last.
type Feed struct {
	CoupleID   string  `json:"couple_id"`
	Entries    []Entry `json:"entries"`
	NextCursor int64   `json:"next_cursor"`
	Done       bool    `json:"done"`
}

type Timeline struct {
	ledger *ledger.Ledger
	store  store.Store
}

func New(led *ledger.Ledger, st store.Store) *Timeline {
	return &Timeline{ledger: led, store: st}
}

// Read returns the next page of the couple's feed after the cursor. Goal
// and account names are resolved once per page, and entries that push a
// goal across a funding threshold (25/50/75/100 percent) are marked as
// milestones.
func (t *Timeline) Read(ctx context.Context, coupleID string, cursor int64, limit int) (Feed, error) {
	page, err := t.ledger.ReadSince(ctx, coupleID, cursor, limit)
	if err != nil {
		return Feed{}, err
	}

	goalNames, goalTargets, accountNames, err := t.names(ctx, coupleID)
	if err != nil {
		return Feed{}, err
	}
	totals, err := t.totalsBefore(ctx, coupleID, cursor)
	if err != nil {
		return Feed{}, err
	}

	feed := Feed{
		CoupleID:   coupleID,
		NextCursor: page.NextCursor,
		Done:       page.Done,
	}
	for _, event := range page.Events {
		entry := renderEntry(event, goalNames, accountNames)
		if delta := contribution(event); !delta.IsZero() && event.DestGoalID != "" {
			before := totals[event.DestGoalID]
			after := before.Add(delta)
			totals[event.DestGoalID] = after
			if pct := crossedThreshold(before, after, goalTargets[event.DestGoalID]); pct > 0 {
				entry.Milestone = true
				entry.MilestonePct = pct
				entry.Title = fmt.Sprintf("%s (%d%% funded)", entry.Title, pct)
			}
		}
		feed.Entries = append(feed.Entries, entry)
	}
	return feed, nil
}

func (t *Timeline) names(ctx context.Context, coupleID string) (map[string]string, map[string]core.Money, map[string]string, error) {
	goals, err := t.store.ListGoalsByCouple(ctx, coupleID)
	if err != nil {
		return nil, nil, nil, err
	}
	accounts, err := t.store.ListAccountsByCouple(ctx, coupleID)
	if err != nil {
		return nil, nil, nil, err
	}
	goalNames := make(map[string]string, len(goals))
	goalTargets := make(map[string]core.Money, len(goals))
	for _, g := range goals {
		goalNames[g.ID] = g.Name
		goalTargets[g.ID] = g.TargetAmount
	}
	accountNames := make(map[string]string, len(accounts))
	for _, a := range accounts {
		accountNames[a.ID] = a.Name
	}
	return goalNames, goalTargets, accountNames, nil
}

// totalsBefore folds goal contributions up to the cursor so the page can
// tell which of its entries crossed a threshold.
func (t *Timeline) totalsBefore(ctx context.Context, coupleID string, cursor int64) (map[string]core.Money, error) {
	totals := make(map[string]core.Money)
	if cursor <= 0 {
		return totals, nil
	}
	events, err := t.ledger.Read(ctx, ledger.Filter{CoupleID: coupleID})
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		if event.Sequence > cursor {
			break
		}
		if delta := contribution(event); !delta.IsZero() && event.DestGoalID != "" {
			totals[event.DestGoalID] = totals[event.DestGoalID].Add(delta)
		}
	}
	return totals, nil
}

// contribution is the signed change an event makes to its goal's total.
func contribution(event core.LedgerEvent) core.Money {
	switch event.Kind {
	case core.EventAllocation, core.EventReallocation:
		return event.Amount
	case core.EventReversal:
		switch core.EventKind(event.Metadata[core.MetaReversedKind]) {
		case core.EventAllocation, core.EventReallocation:
			return event.Amount
		}
	}
	return core.Money{}
}

// crossedThreshold returns the highest funding percentage (25/50/75/100)
// that the move from before to after crossed, or 0. Only increases count;
// falling back below a line is not a celebration.
func crossedThreshold(before, after, target core.Money) int {
	if target.Cents <= 0 || after.Cents <= before.Cents {
		return 0
	}
	for _, pct := range []int64{100, 75, 50, 25} {
		line := target.Cents * pct / 100
		if before.Cents < line && after.Cents >= line {
			return int(pct)
		}
	}
	return 0
}

func renderEntry(event core.LedgerEvent, goalNames, accountNames map[string]string) Entry {
	entry := Entry{
		EventID:   event.ID,
		Sequence:  event.Sequence,
		Kind:      string(event.Kind),
		Amount:    event.Amount,
		AccountID: event.SourceAccountID,
		GoalID:    event.DestGoalID,
		UserID:    event.UserID,
		Timestamp: event.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		Title:     title(event, goalNames, accountNames),
	}
	if event.Kind == core.EventSystem && event.Metadata[core.MetaAction] == "goal_milestone" {
		entry.Milestone = true
	}
	return entry
}

func title(event core.LedgerEvent, goalNames, accountNames map[string]string) string {
	goal := nameOr(goalNames, event.DestGoalID)
	account := nameOr(accountNames, event.SourceAccountID)
	amount := formatCents(event.Amount)

	switch event.Kind {
	case core.EventDeposit:
		return fmt.Sprintf("Deposit of %s into %s", amount, account)
	case core.EventWithdrawal:
		return fmt.Sprintf("Withdrawal of %s from %s", formatCents(event.Amount.Neg()), account)
	case core.EventAllocation:
		return fmt.Sprintf("Allocated %s from %s to %s", amount, account, goal)
	case core.EventReallocation:
		if event.Amount.IsNegative() {
			return fmt.Sprintf("Moved %s out of %s", formatCents(event.Amount.Neg()), goal)
		}
		return fmt.Sprintf("Moved %s into %s", amount, goal)
	case core.EventReversal:
		return fmt.Sprintf("Reversed a %s of %s", event.Metadata[core.MetaReversedKind], formatCents(absMoney(event.Amount)))
	case core.EventSystem:
		return systemTitle(event, goal)
	}
	return string(event.Kind)
}

func systemTitle(event core.LedgerEvent, goal string) string {
	switch event.Metadata[core.MetaAction] {
	case "goal_milestone":
		return fmt.Sprintf("Goal %q reached its target", event.Metadata["goal_name"])
	case "approval_requested":
		return fmt.Sprintf("Approval requested for a %s", event.Metadata["approval_action"])
	case "approval_approved":
		return fmt.Sprintf("Approved a pending %s", event.Metadata["approval_action"])
	case "approval_rejected":
		return fmt.Sprintf("Rejected a pending %s", event.Metadata["approval_action"])
	case "approval_expired":
		return fmt.Sprintf("A pending %s expired unanswered", event.Metadata["approval_action"])
	}
	if goal != "" {
		return fmt.Sprintf("System note on %s", goal)
	}
	return "System note"
}

func nameOr(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

func absMoney(m core.Money) core.Money {
	if m.IsNegative() {
		return m.Neg()
	}
	return m
}

func formatCents(m core.Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
