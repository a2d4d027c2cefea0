package planner

import (
	"context"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

// AccountSurplus is one account's free balance after earmarks.
type AccountSurplus struct {
	AccountID   string     `json:"account_id"`
	Balance     core.Money `json:"balance"`
	Allocated   core.Money `json:"allocated"`
	Unallocated core.Money `json:"unallocated"`
}

// Surplus is the couple-wide view of money not yet earmarked to any goal.
type Surplus struct {
	CoupleID string           `json:"couple_id"`
	Total    core.Money       `json:"total"`
	Accounts []AccountSurplus `json:"accounts"`
}

// ComputeSurplus reports each account's unallocated balance and the
// couple-wide total, reading all accounts in one consistent snapshot.
func ComputeSurplus(ctx context.Context, st store.Store, coupleID string) (Surplus, error) {
	surplus := Surplus{CoupleID: coupleID}

	err := st.InTx(ctx, func(tx store.Tx) error {
		accounts, err := tx.ListAccountsByCouple(ctx, coupleID)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			entries, err := tx.ListAllocationsByAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			var allocated core.Money
			for _, entry := range entries {
				allocated = allocated.Add(entry.Amount)
			}
			unallocated := account.Unallocated(allocated)
			surplus.Accounts = append(surplus.Accounts, AccountSurplus{
				AccountID:   account.ID,
				Balance:     account.Balance,
				Allocated:   allocated,
				Unallocated: unallocated,
			})
			surplus.Total = surplus.Total.Add(unallocated)
		}
		return nil
	})
	if err != nil {
		return Surplus{}, err
	}
	return surplus, nil
}
