package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

type eventResponse struct {
	ID        string            `json:"id"`
	CoupleID  string            `json:"couple_id"`
	Sequence  int64             `json:"sequence"`
	Kind      string            `json:"kind"`
	Amount    int64             `json:"amount_cents"`
	AccountID string            `json:"account_id,omitempty"`
	GoalID    string            `json:"goal_id,omitempty"`
	UserID    string            `json:"user_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func toEventResponse(e core.LedgerEvent) eventResponse {
	return eventResponse{
		ID:        e.ID,
		CoupleID:  e.CoupleID,
		Sequence:  e.Sequence,
		Kind:      string(e.Kind),
		Amount:    e.Amount.Cents,
		AccountID: e.SourceAccountID,
		GoalID:    e.DestGoalID,
		UserID:    e.UserID,
		Timestamp: e.Timestamp,
		Metadata:  e.Metadata,
	}
}

// handleReadLedger serves both filtered reads and cursor pagination. With a
// cursor the response carries next_cursor/done; plain filters return the
// full matching slice in sequence order.
func (s *Server) handleReadLedger(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Has("cursor") {
		cursor, err := queryInt64(r, "cursor", 0)
		if err != nil {
			writeError(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit", 50)
		if err != nil {
			writeError(w, r, err)
			return
		}
		page, err := s.ledger.ReadSince(r.Context(), coupleID, cursor, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]eventResponse, 0, len(page.Events))
		for _, e := range page.Events {
			out = append(out, toEventResponse(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events":      out,
			"next_cursor": page.NextCursor,
			"done":        page.Done,
		})
		return
	}

	filter := store.EventFilter{
		CoupleID:  coupleID,
		AccountID: r.URL.Query().Get("account_id"),
		GoalID:    r.URL.Query().Get("goal_id"),
		UserID:    r.URL.Query().Get("user_id"),
	}
	if kinds := r.URL.Query().Get("kinds"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			kind := core.EventKind(strings.TrimSpace(k))
			if !kind.IsValid() {
				writeError(w, r, core.Errorf(core.ErrValidation, "invalid event kind %q", k))
				return
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}
	if filter.Since, err = queryTime(r, "since"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeError(w, r, err)
		return
	}

	events, err := s.ledger.Read(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	cursor, err := queryInt64(r, "cursor", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, r, err)
		return
	}

	feed, err := s.timeline.Read(r.Context(), coupleID, cursor, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.engine.Reconcile(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"couple_id":     report.CoupleID,
		"events_folded": report.EventsFolded,
		"consistent":    report.Consistent(),
		"discrepancies": report.Discrepancies,
	})
}
