// Package memory provides an in-process implementation of store.Store.
// It backs the default data backend and the component tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

type Memory struct {
	mu          sync.RWMutex
	accounts    map[string]core.Account
	goals       map[string]core.Goal
	allocations map[string]core.Allocation // keyed by accountID|goalID
	events      []core.LedgerEvent
	eventIndex  map[string]int // event id -> position in events
	seqs        map[string]int64
	lastStamp   map[string]time.Time
	approvals   map[string]core.PendingApproval
	rules       map[string]core.AllocationRule
	requests    map[string]store.RequestRecord
}

func New() *Memory {
	return &Memory{
		accounts:    make(map[string]core.Account),
		goals:       make(map[string]core.Goal),
		allocations: make(map[string]core.Allocation),
		eventIndex:  make(map[string]int),
		seqs:        make(map[string]int64),
		lastStamp:   make(map[string]time.Time),
		approvals:   make(map[string]core.PendingApproval),
		rules:       make(map[string]core.AllocationRule),
		requests:    make(map[string]store.RequestRecord),
	}
}

var (
	_ store.Store = (*Memory)(nil)
	_ store.Tx    = (*memTx)(nil)
)

func allocKey(accountID, goalID string) string { return accountID + "|" + goalID }

// InTx runs fn against a staged overlay under the store lock. Writes are
// buffered in the overlay and applied only when fn returns nil, so a
// failed operation leaves no partial mutation behind.
func (m *Memory) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		base:        m,
		accounts:    make(map[string]core.Account),
		goals:       make(map[string]core.Goal),
		allocations: make(map[string]core.Allocation),
		seqs:        make(map[string]int64),
		lastStamp:   make(map[string]time.Time),
		approvals:   make(map[string]core.PendingApproval),
		rules:       make(map[string]core.AllocationRule),
		rmRules:     make(map[string]bool),
		requests:    make(map[string]store.RequestRecord),
	}

	if err := fn(tx); err != nil {
		return err
	}

	tx.apply()
	return nil
}

func (m *Memory) Close() error { return nil }

// memTx is the copy-on-write overlay used inside InTx. The caller holds
// the store's exclusive lock for the whole transaction.
type memTx struct {
	base        *Memory
	accounts    map[string]core.Account
	goals       map[string]core.Goal
	allocations map[string]core.Allocation
	events      []core.LedgerEvent
	seqs        map[string]int64
	lastStamp   map[string]time.Time
	approvals   map[string]core.PendingApproval
	rules       map[string]core.AllocationRule
	rmRules     map[string]bool
	requests    map[string]store.RequestRecord
}

func (tx *memTx) apply() {
	m := tx.base
	for id, a := range tx.accounts {
		m.accounts[id] = a
	}
	for id, g := range tx.goals {
		m.goals[id] = g
	}
	for k, a := range tx.allocations {
		m.allocations[k] = a
	}
	for _, e := range tx.events {
		m.eventIndex[e.ID] = len(m.events)
		m.events = append(m.events, e)
	}
	for c, s := range tx.seqs {
		m.seqs[c] = s
	}
	for c, ts := range tx.lastStamp {
		m.lastStamp[c] = ts
	}
	for id, a := range tx.approvals {
		m.approvals[id] = a
	}
	for id, r := range tx.rules {
		m.rules[id] = r
	}
	for id := range tx.rmRules {
		delete(m.rules, id)
	}
	for t, r := range tx.requests {
		m.requests[t] = r
	}
}

// --- accounts ---

func (tx *memTx) GetAccount(_ context.Context, id string) (core.Account, error) {
	if a, ok := tx.accounts[id]; ok {
		return a, nil
	}
	return tx.base.getAccountLocked(id)
}

func (tx *memTx) PutAccount(_ context.Context, account core.Account) error {
	tx.accounts[account.ID] = account
	return nil
}

func (tx *memTx) ListAccountsByCouple(_ context.Context, coupleID string) ([]core.Account, error) {
	merged := make(map[string]core.Account)
	for id, a := range tx.base.accounts {
		merged[id] = a
	}
	for id, a := range tx.accounts {
		merged[id] = a
	}
	return accountsByCouple(merged, coupleID), nil
}

func (tx *memTx) ListCoupleIDs(_ context.Context) ([]string, error) {
	merged := make(map[string]core.Account)
	for id, a := range tx.base.accounts {
		merged[id] = a
	}
	for id, a := range tx.accounts {
		merged[id] = a
	}
	goals := make(map[string]core.Goal)
	for id, g := range tx.base.goals {
		goals[id] = g
	}
	for id, g := range tx.goals {
		goals[id] = g
	}
	return coupleIDs(merged, goals), nil
}

// --- goals ---

func (tx *memTx) GetGoal(_ context.Context, id string) (core.Goal, error) {
	if g, ok := tx.goals[id]; ok {
		return g, nil
	}
	return tx.base.getGoalLocked(id)
}

func (tx *memTx) PutGoal(_ context.Context, goal core.Goal) error {
	tx.goals[goal.ID] = goal
	return nil
}

func (tx *memTx) ListGoalsByCouple(_ context.Context, coupleID string) ([]core.Goal, error) {
	merged := make(map[string]core.Goal)
	for id, g := range tx.base.goals {
		merged[id] = g
	}
	for id, g := range tx.goals {
		merged[id] = g
	}
	return goalsByCouple(merged, coupleID), nil
}

// --- allocations ---

func (tx *memTx) GetAllocation(_ context.Context, accountID, goalID string) (core.Allocation, error) {
	if a, ok := tx.allocations[allocKey(accountID, goalID)]; ok {
		return a, nil
	}
	return tx.base.getAllocationLocked(accountID, goalID)
}

func (tx *memTx) PutAllocation(_ context.Context, alloc core.Allocation) error {
	tx.allocations[allocKey(alloc.AccountID, alloc.GoalID)] = alloc
	return nil
}

func (tx *memTx) ListAllocationsByAccount(_ context.Context, accountID string) ([]core.Allocation, error) {
	return filterAllocations(tx.mergedAllocations(), func(a core.Allocation) bool {
		return a.AccountID == accountID
	}), nil
}

func (tx *memTx) ListAllocationsByGoal(_ context.Context, goalID string) ([]core.Allocation, error) {
	return filterAllocations(tx.mergedAllocations(), func(a core.Allocation) bool {
		return a.GoalID == goalID
	}), nil
}

func (tx *memTx) mergedAllocations() map[string]core.Allocation {
	merged := make(map[string]core.Allocation)
	for k, a := range tx.base.allocations {
		merged[k] = a
	}
	for k, a := range tx.allocations {
		merged[k] = a
	}
	return merged
}

// --- ledger ---

func (tx *memTx) AppendEvent(_ context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	if err := event.Validate(); err != nil {
		return core.LedgerEvent{}, err
	}

	seq, ok := tx.seqs[event.CoupleID]
	if !ok {
		seq = tx.base.seqs[event.CoupleID]
	}
	seq++
	tx.seqs[event.CoupleID] = seq

	event = stampEvent(event, seq, tx.currentStamp(event.CoupleID))
	tx.lastStamp[event.CoupleID] = event.Timestamp
	tx.events = append(tx.events, event)
	return event, nil
}

func (tx *memTx) currentStamp(coupleID string) time.Time {
	if ts, ok := tx.lastStamp[coupleID]; ok {
		return ts
	}
	return tx.base.lastStamp[coupleID]
}

func (tx *memTx) GetEvent(_ context.Context, id string) (core.LedgerEvent, error) {
	for _, e := range tx.events {
		if e.ID == id {
			return e, nil
		}
	}
	return tx.base.getEventLocked(id)
}

func (tx *memTx) ListEvents(_ context.Context, filter store.EventFilter) ([]core.LedgerEvent, error) {
	all := append(append([]core.LedgerEvent{}, tx.base.events...), tx.events...)
	return filterEvents(all, filter), nil
}

func (tx *memTx) ReversalExists(_ context.Context, eventID string) (bool, error) {
	all := append(append([]core.LedgerEvent{}, tx.base.events...), tx.events...)
	return reversalIn(all, eventID), nil
}

// --- approvals ---

func (tx *memTx) GetApproval(_ context.Context, id string) (core.PendingApproval, error) {
	if a, ok := tx.approvals[id]; ok {
		return a, nil
	}
	return tx.base.getApprovalLocked(id)
}

func (tx *memTx) PutApproval(_ context.Context, approval core.PendingApproval) error {
	tx.approvals[approval.ID] = approval
	return nil
}

func (tx *memTx) ListApprovals(_ context.Context, filter store.ApprovalFilter) ([]core.PendingApproval, error) {
	return filterApprovals(tx.mergedApprovals(), filter), nil
}

func (tx *memTx) ListExpiredPending(_ context.Context, now time.Time) ([]core.PendingApproval, error) {
	return expiredPending(tx.mergedApprovals(), now), nil
}

func (tx *memTx) mergedApprovals() map[string]core.PendingApproval {
	merged := make(map[string]core.PendingApproval)
	for id, a := range tx.base.approvals {
		merged[id] = a
	}
	for id, a := range tx.approvals {
		merged[id] = a
	}
	return merged
}

// --- rules ---

func (tx *memTx) GetRule(_ context.Context, id string) (core.AllocationRule, error) {
	if tx.rmRules[id] {
		return core.AllocationRule{}, core.Errorf(core.ErrNotFound, "rule %s", id)
	}
	if r, ok := tx.rules[id]; ok {
		return r, nil
	}
	return tx.base.getRuleLocked(id)
}

func (tx *memTx) PutRule(_ context.Context, rule core.AllocationRule) error {
	delete(tx.rmRules, rule.ID)
	tx.rules[rule.ID] = rule
	return nil
}

func (tx *memTx) DeleteRule(_ context.Context, id string) error {
	delete(tx.rules, id)
	tx.rmRules[id] = true
	return nil
}

func (tx *memTx) ListRulesByCouple(_ context.Context, coupleID string) ([]core.AllocationRule, error) {
	return filterRules(tx.mergedRules(), func(r core.AllocationRule) bool {
		return r.CoupleID == coupleID
	}), nil
}

func (tx *memTx) ListRulesByAccount(_ context.Context, accountID string) ([]core.AllocationRule, error) {
	return filterRules(tx.mergedRules(), func(r core.AllocationRule) bool {
		return r.AccountID == accountID
	}), nil
}

func (tx *memTx) mergedRules() map[string]core.AllocationRule {
	merged := make(map[string]core.AllocationRule)
	for id, r := range tx.base.rules {
		merged[id] = r
	}
	for id, r := range tx.rules {
		merged[id] = r
	}
	for id := range tx.rmRules {
		delete(merged, id)
	}
	return merged
}

// --- idempotency ---

func (tx *memTx) GetRequest(_ context.Context, token string) (store.RequestRecord, error) {
	if r, ok := tx.requests[token]; ok {
		return r, nil
	}
	return tx.base.getRequestLocked(token)
}

func (tx *memTx) PutRequest(_ context.Context, record store.RequestRecord) error {
	tx.requests[record.Token] = record
	return nil
}

// --- direct (non-transactional) access on Memory ---

func (m *Memory) GetAccount(_ context.Context, id string) (core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id)
}

func (m *Memory) PutAccount(_ context.Context, account core.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) ListAccountsByCouple(_ context.Context, coupleID string) ([]core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return accountsByCouple(m.accounts, coupleID), nil
}

func (m *Memory) ListCoupleIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return coupleIDs(m.accounts, m.goals), nil
}

func (m *Memory) GetGoal(_ context.Context, id string) (core.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getGoalLocked(id)
}

func (m *Memory) PutGoal(_ context.Context, goal core.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[goal.ID] = goal
	return nil
}

func (m *Memory) ListGoalsByCouple(_ context.Context, coupleID string) ([]core.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return goalsByCouple(m.goals, coupleID), nil
}

func (m *Memory) GetAllocation(_ context.Context, accountID, goalID string) (core.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAllocationLocked(accountID, goalID)
}

func (m *Memory) PutAllocation(_ context.Context, alloc core.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocations[allocKey(alloc.AccountID, alloc.GoalID)] = alloc
	return nil
}

func (m *Memory) ListAllocationsByAccount(_ context.Context, accountID string) ([]core.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterAllocations(m.allocations, func(a core.Allocation) bool {
		return a.AccountID == accountID
	}), nil
}

func (m *Memory) ListAllocationsByGoal(_ context.Context, goalID string) ([]core.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterAllocations(m.allocations, func(a core.Allocation) bool {
		return a.GoalID == goalID
	}), nil
}

func (m *Memory) AppendEvent(_ context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	if err := event.Validate(); err != nil {
		return core.LedgerEvent{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seqs[event.CoupleID]++
	event = stampEvent(event, m.seqs[event.CoupleID], m.lastStamp[event.CoupleID])
	m.lastStamp[event.CoupleID] = event.Timestamp
	m.eventIndex[event.ID] = len(m.events)
	m.events = append(m.events, event)
	return event, nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (core.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEventLocked(id)
}

func (m *Memory) ListEvents(_ context.Context, filter store.EventFilter) ([]core.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterEvents(m.events, filter), nil
}

func (m *Memory) ReversalExists(_ context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return reversalIn(m.events, eventID), nil
}

func (m *Memory) GetApproval(_ context.Context, id string) (core.PendingApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getApprovalLocked(id)
}

func (m *Memory) PutApproval(_ context.Context, approval core.PendingApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[approval.ID] = approval
	return nil
}

func (m *Memory) ListApprovals(_ context.Context, filter store.ApprovalFilter) ([]core.PendingApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterApprovals(m.approvals, filter), nil
}

func (m *Memory) ListExpiredPending(_ context.Context, now time.Time) ([]core.PendingApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return expiredPending(m.approvals, now), nil
}

func (m *Memory) GetRule(_ context.Context, id string) (core.AllocationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRuleLocked(id)
}

func (m *Memory) PutRule(_ context.Context, rule core.AllocationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *Memory) ListRulesByCouple(_ context.Context, coupleID string) ([]core.AllocationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterRules(m.rules, func(r core.AllocationRule) bool {
		return r.CoupleID == coupleID
	}), nil
}

func (m *Memory) ListRulesByAccount(_ context.Context, accountID string) ([]core.AllocationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterRules(m.rules, func(r core.AllocationRule) bool {
		return r.AccountID == accountID
	}), nil
}

func (m *Memory) GetRequest(_ context.Context, token string) (store.RequestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(token)
}

func (m *Memory) PutRequest(_ context.Context, record store.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[record.Token] = record
	return nil
}

// --- lock-held reads shared between Memory and memTx ---

func (m *Memory) getAccountLocked(id string) (core.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return core.Account{}, core.Errorf(core.ErrNotFound, "account %s", id)
	}
	return a, nil
}

func (m *Memory) getGoalLocked(id string) (core.Goal, error) {
	g, ok := m.goals[id]
	if !ok {
		return core.Goal{}, core.Errorf(core.ErrNotFound, "goal %s", id)
	}
	return g, nil
}

func (m *Memory) getAllocationLocked(accountID, goalID string) (core.Allocation, error) {
	a, ok := m.allocations[allocKey(accountID, goalID)]
	if !ok {
		return core.Allocation{}, core.Errorf(core.ErrNotFound, "allocation %s -> %s", accountID, goalID)
	}
	return a, nil
}

func (m *Memory) getEventLocked(id string) (core.LedgerEvent, error) {
	idx, ok := m.eventIndex[id]
	if !ok {
		return core.LedgerEvent{}, core.Errorf(core.ErrNotFound, "ledger event %s", id)
	}
	return m.events[idx], nil
}

func (m *Memory) getApprovalLocked(id string) (core.PendingApproval, error) {
	a, ok := m.approvals[id]
	if !ok {
		return core.PendingApproval{}, core.Errorf(core.ErrNotFound, "approval %s", id)
	}
	return a, nil
}

func (m *Memory) getRuleLocked(id string) (core.AllocationRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return core.AllocationRule{}, core.Errorf(core.ErrNotFound, "rule %s", id)
	}
	return r, nil
}

func (m *Memory) getRequestLocked(token string) (store.RequestRecord, error) {
	r, ok := m.requests[token]
	if !ok {
		return store.RequestRecord{}, core.Errorf(core.ErrNotFound, "request token %s", token)
	}
	return r, nil
}

// --- helpers ---

// stampEvent assigns id, sequence, and a timestamp that never moves
// backwards within a couple's history.
func stampEvent(event core.LedgerEvent, seq int64, last time.Time) core.LedgerEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Sequence = seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Timestamp.Before(last) {
		event.Timestamp = last
	}
	return event
}

func accountsByCouple(accounts map[string]core.Account, coupleID string) []core.Account {
	var result []core.Account
	for _, a := range accounts {
		if a.CoupleID == coupleID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func goalsByCouple(goals map[string]core.Goal, coupleID string) []core.Goal {
	var result []core.Goal
	for _, g := range goals {
		if g.CoupleID == coupleID {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func coupleIDs(accounts map[string]core.Account, goals map[string]core.Goal) []string {
	seen := make(map[string]bool)
	for _, a := range accounts {
		seen[a.CoupleID] = true
	}
	for _, g := range goals {
		seen[g.CoupleID] = true
	}
	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

func filterAllocations(allocations map[string]core.Allocation, keep func(core.Allocation) bool) []core.Allocation {
	var result []core.Allocation
	for _, a := range allocations {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func filterRules(rules map[string]core.AllocationRule, keep func(core.AllocationRule) bool) []core.AllocationRule {
	var result []core.AllocationRule
	for _, r := range rules {
		if keep(r) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func filterEvents(events []core.LedgerEvent, filter store.EventFilter) []core.LedgerEvent {
	var result []core.LedgerEvent
	for _, e := range events {
		if filter.CoupleID != "" && e.CoupleID != filter.CoupleID {
			continue
		}
		if filter.AccountID != "" && e.SourceAccountID != filter.AccountID {
			continue
		}
		if filter.GoalID != "" && e.DestGoalID != filter.GoalID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if len(filter.Kinds) > 0 && !kindIn(filter.Kinds, e.Kind) {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		if filter.AfterSeq > 0 && e.Sequence <= filter.AfterSeq {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CoupleID != result[j].CoupleID {
			return result[i].CoupleID < result[j].CoupleID
		}
		return result[i].Sequence < result[j].Sequence
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

func kindIn(kinds []core.EventKind, k core.EventKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func reversalIn(events []core.LedgerEvent, eventID string) bool {
	for _, e := range events {
		if e.Kind == core.EventReversal && e.Metadata[core.MetaReverses] == eventID {
			return true
		}
	}
	return false
}

func filterApprovals(approvals map[string]core.PendingApproval, filter store.ApprovalFilter) []core.PendingApproval {
	var result []core.PendingApproval
	for _, a := range approvals {
		if filter.CoupleID != "" && a.CoupleID != filter.CoupleID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.InitiatedBy != "" && a.InitiatedBy != filter.InitiatedBy {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func expiredPending(approvals map[string]core.PendingApproval, now time.Time) []core.PendingApproval {
	var result []core.PendingApproval
	for _, a := range approvals {
		if a.Status == core.ApprovalPending && !a.ExpiresAt.After(now) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
