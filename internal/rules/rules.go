// Package rules manages auto-allocation rules: standing instructions that
// route a share of each deposit on an account to a goal. Execution goes
// through the engine like any manual allocation.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

type Service struct {
	store  store.Store
	engine *engine.Engine
	logger *applog.Logger
	now    func() time.Time
}

func NewService(st store.Store, eng *engine.Engine, logger *applog.Logger) *Service {
	return &Service{
		store:  st,
		engine: eng,
		logger: logger.WithComponent("rules"),
		now:    time.Now,
	}
}

// Create validates and stores a new rule, recording the creation in the
// ledger.
func (s *Service) Create(ctx context.Context, rule core.AllocationRule) (core.AllocationRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Trigger == "" {
		rule.Trigger = core.RuleTriggerDeposit
	}
	rule.Enabled = true
	rule.CreatedAt = s.now().UTC()
	if err := rule.Validate(); err != nil {
		return core.AllocationRule{}, err
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		account, err := tx.GetAccount(ctx, rule.AccountID)
		if err != nil {
			return err
		}
		goal, err := tx.GetGoal(ctx, rule.GoalID)
		if err != nil {
			return err
		}
		if account.CoupleID != rule.CoupleID || goal.CoupleID != rule.CoupleID {
			return core.Errorf(core.ErrValidation, "account and goal must belong to couple %s", rule.CoupleID)
		}
		if err := tx.PutRule(ctx, rule); err != nil {
			return err
		}
		_, err = tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID: rule.CoupleID,
			Kind:     core.EventSystem,
			UserID:   core.SystemUser,
			Metadata: map[string]string{
				core.MetaAction: "rule_created",
				core.MetaRuleID: rule.ID,
				"account_id":    rule.AccountID,
				"rule_goal_id":  rule.GoalID,
				"percent_bps":   fmt.Sprintf("%d", rule.PercentBps),
			},
		})
		return err
	})
	if err != nil {
		return core.AllocationRule{}, err
	}
	return rule, nil
}

// Update changes a rule's percent, trigger, or enabled state.
func (s *Service) Update(ctx context.Context, id string, percentBps *int, trigger *core.RuleTrigger, enabled *bool) (core.AllocationRule, error) {
	var updated core.AllocationRule
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		rule, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if percentBps != nil {
			rule.PercentBps = *percentBps
		}
		if trigger != nil {
			rule.Trigger = *trigger
		}
		if enabled != nil {
			rule.Enabled = *enabled
		}
		if err := rule.Validate(); err != nil {
			return err
		}
		if err := tx.PutRule(ctx, rule); err != nil {
			return err
		}
		updated = rule
		return nil
	})
	if err != nil {
		return core.AllocationRule{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.InTx(ctx, func(tx store.Tx) error {
		rule, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteRule(ctx, id); err != nil {
			return err
		}
		_, err = tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID: rule.CoupleID,
			Kind:     core.EventSystem,
			UserID:   core.SystemUser,
			Metadata: map[string]string{
				core.MetaAction: "rule_deleted",
				core.MetaRuleID: rule.ID,
			},
		})
		return err
	})
}

func (s *Service) Get(ctx context.Context, id string) (core.AllocationRule, error) {
	return s.store.GetRule(ctx, id)
}

func (s *Service) ListByCouple(ctx context.Context, coupleID string) ([]core.AllocationRule, error) {
	return s.store.ListRulesByCouple(ctx, coupleID)
}

// RuleOutcome reports one rule's execution during a deposit.
type RuleOutcome struct {
	RuleID  string     `json:"rule_id"`
	GoalID  string     `json:"goal_id"`
	Amount  core.Money `json:"amount"`
	Applied bool       `json:"applied"`
	Error   string     `json:"error,omitempty"`
}

// ExecuteForDeposit runs every enabled deposit-triggered rule on the
// account against the deposited amount. Each rule is best effort: one
// rule failing (goal completed meanwhile, funds already claimed) never
// affects the deposit or the other rules.
func (s *Service) ExecuteForDeposit(ctx context.Context, coupleID, accountID, actingUser string, deposited core.Money) ([]RuleOutcome, error) {
	rules, err := s.store.ListRulesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var outcomes []RuleOutcome
	for _, rule := range rules {
		if !rule.Enabled || rule.Trigger != core.RuleTriggerDeposit {
			continue
		}

		amount := shareOf(deposited, rule.PercentBps)
		if amount.Cents <= 0 {
			continue
		}

		outcome := RuleOutcome{RuleID: rule.ID, GoalID: rule.GoalID, Amount: amount}
		_, err := s.engine.Allocate(ctx, engine.AllocateRequest{
			CoupleID:   coupleID,
			AccountID:  accountID,
			GoalID:     rule.GoalID,
			Amount:     amount,
			ActingUser: actingUser,
			Metadata:   map[string]string{core.MetaRuleID: rule.ID},
		})
		if err != nil {
			outcome.Error = err.Error()
			s.logger.WarnContext(ctx, "auto-allocation rule failed",
				"rule_id", rule.ID, "goal_id", rule.GoalID, "error", err)
		} else {
			outcome.Applied = true
			now := s.now().UTC()
			rule.LastRunAt = &now
			if err := s.store.PutRule(ctx, rule); err != nil {
				s.logger.WarnContext(ctx, "rule last-run update failed",
					"rule_id", rule.ID, "error", err)
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// shareOf computes percentBps of amount, truncating toward zero.
func shareOf(amount core.Money, percentBps int) core.Money {
	share := decimal.NewFromInt(amount.Cents).
		Mul(decimal.NewFromInt(int64(percentBps))).
		Div(decimal.NewFromInt(10000))
	return core.Cents(share.IntPart())
}
