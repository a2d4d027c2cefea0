package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

type createAccountRequest struct {
	UserID              string `json:"user_id"`
	CoupleID            string `json:"couple_id"`
	Name                string `json:"name"`
	IsManual            bool   `json:"is_manual"`
	OpeningBalanceCents int64  `json:"opening_balance_cents"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CoupleID  string    `json:"couple_id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance_cents"`
	IsManual  bool      `json:"is_manual"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		CoupleID:  a.CoupleID,
		Name:      a.Name,
		Balance:   a.Balance.Cents,
		IsManual:  a.IsManual,
		CreatedAt: a.CreatedAt,
	}
}

// handleCreateAccount creates the account empty and records any opening
// balance as a regular deposit, so replaying the ledger from scratch
// reproduces the balance.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OpeningBalanceCents < 0 {
		writeError(w, r, core.Errorf(core.ErrValidation, "opening balance cannot be negative"))
		return
	}

	account := core.Account{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		CoupleID:  req.CoupleID,
		Name:      req.Name,
		IsManual:  req.IsManual,
		CreatedAt: time.Now().UTC(),
	}
	if err := account.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		return tx.PutAccount(r.Context(), account)
	}); err != nil {
		writeError(w, r, err)
		return
	}

	if req.OpeningBalanceCents > 0 {
		result, err := s.engine.RecordExternalMovement(r.Context(), engine.MovementRequest{
			CoupleID:   account.CoupleID,
			AccountID:  account.ID,
			Kind:       core.EventDeposit,
			Amount:     core.Cents(req.OpeningBalanceCents),
			ActingUser: account.UserID,
			Metadata:   map[string]string{"origin": "opening_balance"},
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		account.Balance = result.AccountBalance
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.store.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts, err := s.store.ListAccountsByCouple(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}
