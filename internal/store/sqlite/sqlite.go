// Package sqlite provides the durable store.Store implementation backed by
// a SQLite database. Schema lives in embedded migrations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

type Repository struct {
	db *sql.DB
	queries
}

var (
	_ store.Store = (*Repository)(nil)
	_ store.Tx    = (*queries)(nil)
)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// under concurrent transactions.
	db.SetMaxOpenConns(1)

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, queries: queries{db: db}}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx runs fn inside a database transaction. The commit is the durability
// point for any ledger append performed in fn.
func (r *Repository) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Errorf(core.ErrStorageUnavailable, "begin transaction: %v", err)
	}

	if err := fn(&queries{db: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return core.Errorf(core.ErrStorageUnavailable, "commit transaction: %v", err)
	}
	return nil
}

// AppendEvent outside a transaction still needs atomic sequence
// assignment, so it opens its own.
func (r *Repository) AppendEvent(ctx context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	var appended core.LedgerEvent
	err := r.InTx(ctx, func(tx store.Tx) error {
		var err error
		appended, err = tx.AppendEvent(ctx, event)
		return err
	})
	return appended, err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func storageErr(op string, err error) error {
	return core.Errorf(core.ErrStorageUnavailable, "%s: %v", op, err)
}

// --- accounts ---

func (q *queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, couple_id, name, balance_cents, is_manual, created_at
		 FROM accounts WHERE id = ?`, id)
	return scanAccount(row, id)
}

func (q *queries) PutAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, couple_id, name, balance_cents, is_manual, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id = excluded.user_id, couple_id = excluded.couple_id,
		   name = excluded.name, balance_cents = excluded.balance_cents,
		   is_manual = excluded.is_manual`,
		a.ID, a.UserID, a.CoupleID, a.Name, a.Balance.Cents, a.IsManual, a.CreatedAt)
	if err != nil {
		return storageErr("put account", err)
	}
	return nil
}

func (q *queries) ListAccountsByCouple(ctx context.Context, coupleID string) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, couple_id, name, balance_cents, is_manual, created_at
		 FROM accounts WHERE couple_id = ? ORDER BY id`, coupleID)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()

	var result []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.CoupleID, &a.Name, &a.Balance.Cents, &a.IsManual, &a.CreatedAt); err != nil {
			return nil, storageErr("scan account", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (q *queries) ListCoupleIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT couple_id FROM accounts UNION SELECT couple_id FROM goals ORDER BY couple_id`)
	if err != nil {
		return nil, storageErr("list couples", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan couple id", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// --- goals ---

func (q *queries) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, couple_id, name, target_cents, allocated_cents, priority, deadline, status, notes, created_at
		 FROM goals WHERE id = ?`, id)
	return scanGoal(rowScanner{row}, id)
}

func (q *queries) PutGoal(ctx context.Context, g core.Goal) error {
	var deadline sql.NullTime
	if g.Deadline != nil {
		deadline = sql.NullTime{Time: *g.Deadline, Valid: true}
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO goals (id, couple_id, name, target_cents, allocated_cents, priority, deadline, status, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, target_cents = excluded.target_cents,
		   allocated_cents = excluded.allocated_cents, priority = excluded.priority,
		   deadline = excluded.deadline, status = excluded.status, notes = excluded.notes`,
		g.ID, g.CoupleID, g.Name, g.TargetAmount.Cents, g.CurrentAllocation.Cents,
		g.Priority, deadline, string(g.Status), g.Notes, g.CreatedAt)
	if err != nil {
		return storageErr("put goal", err)
	}
	return nil
}

func (q *queries) ListGoalsByCouple(ctx context.Context, coupleID string) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, couple_id, name, target_cents, allocated_cents, priority, deadline, status, notes, created_at
		 FROM goals WHERE couple_id = ? ORDER BY id`, coupleID)
	if err != nil {
		return nil, storageErr("list goals", err)
	}
	defer rows.Close()

	var result []core.Goal
	for rows.Next() {
		g, err := scanGoal(rowScanner{rows}, "")
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// --- allocations ---

func (q *queries) GetAllocation(ctx context.Context, accountID, goalID string) (core.Allocation, error) {
	var a core.Allocation
	err := q.db.QueryRowContext(ctx,
		`SELECT id, account_id, goal_id, amount_cents, updated_at
		 FROM allocations WHERE account_id = ? AND goal_id = ?`, accountID, goalID).
		Scan(&a.ID, &a.AccountID, &a.GoalID, &a.Amount.Cents, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Allocation{}, core.Errorf(core.ErrNotFound, "allocation %s -> %s", accountID, goalID)
	}
	if err != nil {
		return core.Allocation{}, storageErr("get allocation", err)
	}
	return a, nil
}

func (q *queries) PutAllocation(ctx context.Context, a core.Allocation) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO allocations (id, account_id, goal_id, amount_cents, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(account_id, goal_id) DO UPDATE SET
		   amount_cents = excluded.amount_cents, updated_at = excluded.updated_at`,
		a.ID, a.AccountID, a.GoalID, a.Amount.Cents, a.UpdatedAt)
	if err != nil {
		return storageErr("put allocation", err)
	}
	return nil
}

func (q *queries) ListAllocationsByAccount(ctx context.Context, accountID string) ([]core.Allocation, error) {
	return q.listAllocations(ctx, "account_id", accountID)
}

func (q *queries) ListAllocationsByGoal(ctx context.Context, goalID string) ([]core.Allocation, error) {
	return q.listAllocations(ctx, "goal_id", goalID)
}

func (q *queries) listAllocations(ctx context.Context, column, value string) ([]core.Allocation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, account_id, goal_id, amount_cents, updated_at
		 FROM allocations WHERE `+column+` = ? ORDER BY id`, value)
	if err != nil {
		return nil, storageErr("list allocations", err)
	}
	defer rows.Close()

	var result []core.Allocation
	for rows.Next() {
		var a core.Allocation
		if err := rows.Scan(&a.ID, &a.AccountID, &a.GoalID, &a.Amount.Cents, &a.UpdatedAt); err != nil {
			return nil, storageErr("scan allocation", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- ledger ---

func (q *queries) AppendEvent(ctx context.Context, event core.LedgerEvent) (core.LedgerEvent, error) {
	if err := event.Validate(); err != nil {
		return core.LedgerEvent{}, err
	}

	var seq int64
	var lastTS sql.NullTime
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0), MAX(ts) FROM ledger_events WHERE couple_id = ?`,
		event.CoupleID).Scan(&seq, &lastTS)
	if err != nil {
		return core.LedgerEvent{}, storageErr("next sequence", err)
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Sequence = seq + 1
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if lastTS.Valid && event.Timestamp.Before(lastTS.Time) {
		event.Timestamp = lastTS.Time
	}

	meta := event.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return core.LedgerEvent{}, core.Errorf(core.ErrValidation, "encode metadata: %v", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO ledger_events (id, couple_id, seq, kind, amount_cents, account_id, goal_id, user_id, ts, metadata, reverses)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.CoupleID, event.Sequence, string(event.Kind), event.Amount.Cents,
		event.SourceAccountID, event.DestGoalID, event.UserID, event.Timestamp,
		string(metaJSON), meta[core.MetaReverses])
	if err != nil {
		return core.LedgerEvent{}, storageErr("append event", err)
	}
	return event, nil
}

func (q *queries) GetEvent(ctx context.Context, id string) (core.LedgerEvent, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, couple_id, seq, kind, amount_cents, account_id, goal_id, user_id, ts, metadata
		 FROM ledger_events WHERE id = ?`, id)
	e, err := scanEvent(rowScanner{row})
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEvent{}, core.Errorf(core.ErrNotFound, "ledger event %s", id)
	}
	return e, err
}

func (q *queries) ListEvents(ctx context.Context, filter store.EventFilter) ([]core.LedgerEvent, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if filter.CoupleID != "" {
		add("couple_id = ?", filter.CoupleID)
	}
	if filter.AccountID != "" {
		add("account_id = ?", filter.AccountID)
	}
	if filter.GoalID != "" {
		add("goal_id = ?", filter.GoalID)
	}
	if filter.UserID != "" {
		add("user_id = ?", filter.UserID)
	}
	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		conds = append(conds, "kind IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.Since.IsZero() {
		add("ts >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("ts <= ?", filter.Until)
	}
	if filter.AfterSeq > 0 {
		add("seq > ?", filter.AfterSeq)
	}

	query := `SELECT id, couple_id, seq, kind, amount_cents, account_id, goal_id, user_id, ts, metadata FROM ledger_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY couple_id, seq"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()

	var result []core.LedgerEvent
	for rows.Next() {
		e, err := scanEvent(rowScanner{rows})
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (q *queries) ReversalExists(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledger_events WHERE kind = ? AND reverses = ?`,
		string(core.EventReversal), eventID).Scan(&count)
	if err != nil {
		return false, storageErr("reversal lookup", err)
	}
	return count > 0, nil
}

// --- approvals ---

func (q *queries) GetApproval(ctx context.Context, id string) (core.PendingApproval, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, couple_id, initiated_by, action, payload, status, created_at, expires_at, resolved_at, resolved_by, resolution_note
		 FROM approvals WHERE id = ?`, id)
	a, err := scanApproval(rowScanner{row})
	if errors.Is(err, sql.ErrNoRows) {
		return core.PendingApproval{}, core.Errorf(core.ErrNotFound, "approval %s", id)
	}
	return a, err
}

func (q *queries) PutApproval(ctx context.Context, a core.PendingApproval) error {
	var resolvedAt sql.NullTime
	if a.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *a.ResolvedAt, Valid: true}
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO approvals (id, couple_id, initiated_by, action, payload, status, created_at, expires_at, resolved_at, resolved_by, resolution_note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status, resolved_at = excluded.resolved_at,
		   resolved_by = excluded.resolved_by, resolution_note = excluded.resolution_note`,
		a.ID, a.CoupleID, a.InitiatedBy, string(a.Action), a.Payload, string(a.Status),
		a.CreatedAt, a.ExpiresAt, resolvedAt, a.ResolvedBy, a.ResolutionNote)
	if err != nil {
		return storageErr("put approval", err)
	}
	return nil
}

func (q *queries) ListApprovals(ctx context.Context, filter store.ApprovalFilter) ([]core.PendingApproval, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CoupleID != "" {
		conds = append(conds, "couple_id = ?")
		args = append(args, filter.CoupleID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.InitiatedBy != "" {
		conds = append(conds, "initiated_by = ?")
		args = append(args, filter.InitiatedBy)
	}

	query := `SELECT id, couple_id, initiated_by, action, payload, status, created_at, expires_at, resolved_at, resolved_by, resolution_note FROM approvals`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	return q.queryApprovals(ctx, query, args...)
}

func (q *queries) ListExpiredPending(ctx context.Context, now time.Time) ([]core.PendingApproval, error) {
	return q.queryApprovals(ctx,
		`SELECT id, couple_id, initiated_by, action, payload, status, created_at, expires_at, resolved_at, resolved_by, resolution_note
		 FROM approvals WHERE status = ? AND expires_at <= ? ORDER BY id`,
		string(core.ApprovalPending), now)
}

func (q *queries) queryApprovals(ctx context.Context, query string, args ...any) ([]core.PendingApproval, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list approvals", err)
	}
	defer rows.Close()

	var result []core.PendingApproval
	for rows.Next() {
		a, err := scanApproval(rowScanner{rows})
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- rules ---

func (q *queries) GetRule(ctx context.Context, id string) (core.AllocationRule, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, couple_id, account_id, goal_id, percent_bps, trigger, enabled, created_at, last_run_at
		 FROM allocation_rules WHERE id = ?`, id)
	r, err := scanRule(rowScanner{row})
	if errors.Is(err, sql.ErrNoRows) {
		return core.AllocationRule{}, core.Errorf(core.ErrNotFound, "rule %s", id)
	}
	return r, err
}

func (q *queries) PutRule(ctx context.Context, r core.AllocationRule) error {
	var lastRun sql.NullTime
	if r.LastRunAt != nil {
		lastRun = sql.NullTime{Time: *r.LastRunAt, Valid: true}
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO allocation_rules (id, couple_id, account_id, goal_id, percent_bps, trigger, enabled, created_at, last_run_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   percent_bps = excluded.percent_bps, trigger = excluded.trigger,
		   enabled = excluded.enabled, last_run_at = excluded.last_run_at`,
		r.ID, r.CoupleID, r.AccountID, r.GoalID, r.PercentBps, string(r.Trigger),
		r.Enabled, r.CreatedAt, lastRun)
	if err != nil {
		return storageErr("put rule", err)
	}
	return nil
}

func (q *queries) DeleteRule(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM allocation_rules WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete rule", err)
	}
	return nil
}

func (q *queries) ListRulesByCouple(ctx context.Context, coupleID string) ([]core.AllocationRule, error) {
	return q.listRules(ctx, "couple_id", coupleID)
}

func (q *queries) ListRulesByAccount(ctx context.Context, accountID string) ([]core.AllocationRule, error) {
	return q.listRules(ctx, "account_id", accountID)
}

func (q *queries) listRules(ctx context.Context, column, value string) ([]core.AllocationRule, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, couple_id, account_id, goal_id, percent_bps, trigger, enabled, created_at, last_run_at
		 FROM allocation_rules WHERE `+column+` = ? ORDER BY id`, value)
	if err != nil {
		return nil, storageErr("list rules", err)
	}
	defer rows.Close()

	var result []core.AllocationRule
	for rows.Next() {
		r, err := scanRule(rowScanner{rows})
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// --- idempotency ---

func (q *queries) GetRequest(ctx context.Context, token string) (store.RequestRecord, error) {
	var r store.RequestRecord
	err := q.db.QueryRowContext(ctx,
		`SELECT token, result, created_at FROM request_log WHERE token = ?`, token).
		Scan(&r.Token, &r.Result, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.RequestRecord{}, core.Errorf(core.ErrNotFound, "request token %s", token)
	}
	if err != nil {
		return store.RequestRecord{}, storageErr("get request", err)
	}
	return r, nil
}

func (q *queries) PutRequest(ctx context.Context, r store.RequestRecord) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO request_log (token, result, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(token) DO NOTHING`,
		r.Token, r.Result, r.CreatedAt)
	if err != nil {
		return storageErr("put request", err)
	}
	return nil
}

// --- scanning helpers ---

type scanner interface {
	Scan(dest ...any) error
}

// rowScanner lets *sql.Row and *sql.Rows share scan helpers.
type rowScanner struct {
	scanner
}

func scanAccount(row *sql.Row, id string) (core.Account, error) {
	var a core.Account
	err := row.Scan(&a.ID, &a.UserID, &a.CoupleID, &a.Name, &a.Balance.Cents, &a.IsManual, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.Errorf(core.ErrNotFound, "account %s", id)
	}
	if err != nil {
		return core.Account{}, storageErr("scan account", err)
	}
	return a, nil
}

func scanGoal(s rowScanner, id string) (core.Goal, error) {
	var (
		g        core.Goal
		deadline sql.NullTime
		status   string
	)
	err := s.Scan(&g.ID, &g.CoupleID, &g.Name, &g.TargetAmount.Cents, &g.CurrentAllocation.Cents,
		&g.Priority, &deadline, &status, &g.Notes, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, core.Errorf(core.ErrNotFound, "goal %s", id)
	}
	if err != nil {
		return core.Goal{}, storageErr("scan goal", err)
	}
	if deadline.Valid {
		t := deadline.Time
		g.Deadline = &t
	}
	g.Status = core.GoalStatus(status)
	return g, nil
}

func scanEvent(s rowScanner) (core.LedgerEvent, error) {
	var (
		e        core.LedgerEvent
		kind     string
		metaJSON string
	)
	err := s.Scan(&e.ID, &e.CoupleID, &e.Sequence, &kind, &e.Amount.Cents,
		&e.SourceAccountID, &e.DestGoalID, &e.UserID, &e.Timestamp, &metaJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.LedgerEvent{}, err
		}
		return core.LedgerEvent{}, storageErr("scan event", err)
	}
	e.Kind = core.EventKind(kind)
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return core.LedgerEvent{}, storageErr("decode event metadata", err)
		}
	}
	return e, nil
}

func scanRule(s rowScanner) (core.AllocationRule, error) {
	var (
		r       core.AllocationRule
		trigger string
		lastRun sql.NullTime
	)
	err := s.Scan(&r.ID, &r.CoupleID, &r.AccountID, &r.GoalID, &r.PercentBps,
		&trigger, &r.Enabled, &r.CreatedAt, &lastRun)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AllocationRule{}, err
		}
		return core.AllocationRule{}, storageErr("scan rule", err)
	}
	r.Trigger = core.RuleTrigger(trigger)
	if lastRun.Valid {
		t := lastRun.Time
		r.LastRunAt = &t
	}
	return r, nil
}

func scanApproval(s rowScanner) (core.PendingApproval, error) {
	var (
		a          core.PendingApproval
		action     string
		status     string
		resolvedAt sql.NullTime
	)
	err := s.Scan(&a.ID, &a.CoupleID, &a.InitiatedBy, &action, &a.Payload, &status,
		&a.CreatedAt, &a.ExpiresAt, &resolvedAt, &a.ResolvedBy, &a.ResolutionNote)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.PendingApproval{}, err
		}
		return core.PendingApproval{}, storageErr("scan approval", err)
	}
	a.Action = core.ApprovalAction(action)
	a.Status = core.ApprovalStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}
