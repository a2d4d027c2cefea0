// Package http serves the JSON API: accounts, goals, ledger mutations
// routed through the approval gate, planning reads, and rule management.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/approval"
	"github.com/Ruzakiff/WealthTogether/internal/drift"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	"github.com/Ruzakiff/WealthTogether/internal/ledger"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/planner"
	"github.com/Ruzakiff/WealthTogether/internal/rules"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/internal/timeline"
	"github.com/Ruzakiff/WealthTogether/pkg/metrics"
)

// Deps carries everything the API layer needs. The server owns no business
// logic; every handler delegates to one of these.
type Deps struct {
	Store      store.Store
	Engine     *engine.Engine
	Gate       *approval.Gate
	Ledger     *ledger.Ledger
	Forecaster *planner.Forecaster
	Rebalancer *planner.Rebalancer
	Monitor    *drift.Monitor
	Timeline   *timeline.Timeline
	Rules      *rules.Service
	Logger     *applog.Logger
	Metrics    *metrics.Collector
}

type Server struct {
	http.Server

	store      store.Store
	engine     *engine.Engine
	gate       *approval.Gate
	ledger     *ledger.Ledger
	forecaster *planner.Forecaster
	rebalancer *planner.Rebalancer
	monitor    *drift.Monitor
	timeline   *timeline.Timeline
	rules      *rules.Service
	logger     *applog.Logger
	metrics    *metrics.Collector
}

// NewServer configures all routes and returns a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:      deps.Store,
		engine:     deps.Engine,
		gate:       deps.Gate,
		ledger:     deps.Ledger,
		forecaster: deps.Forecaster,
		rebalancer: deps.Rebalancer,
		monitor:    deps.Monitor,
		timeline:   deps.Timeline,
		rules:      deps.Rules,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /v1/accounts", s.trace("accounts", s.handleCreateAccount))
	mux.HandleFunc("GET /v1/accounts", s.trace("accounts", s.handleListAccounts))
	mux.HandleFunc("GET /v1/accounts/{id}", s.trace("accounts", s.handleGetAccount))

	mux.HandleFunc("POST /v1/goals", s.trace("goals", s.handleCreateGoal))
	mux.HandleFunc("GET /v1/goals", s.trace("goals", s.handleListGoals))
	mux.HandleFunc("GET /v1/goals/{id}", s.trace("goals", s.handleGetGoal))
	mux.HandleFunc("PATCH /v1/goals/{id}", s.trace("goals", s.handleUpdateGoal))
	mux.HandleFunc("POST /v1/goals/{id}/archive", s.trace("goals", s.handleArchiveGoal))
	mux.HandleFunc("GET /v1/goals/{id}/forecast", s.trace("forecast", s.handleForecast))

	mux.HandleFunc("POST /v1/allocations", s.trace("allocations", s.handleAllocate))
	mux.HandleFunc("POST /v1/reallocations", s.trace("reallocations", s.handleReallocate))
	mux.HandleFunc("POST /v1/movements", s.trace("movements", s.handleMovement))
	mux.HandleFunc("POST /v1/events/{id}/reverse", s.trace("reversals", s.handleReverse))

	mux.HandleFunc("GET /v1/ledger", s.trace("ledger", s.handleReadLedger))
	mux.HandleFunc("GET /v1/timeline", s.trace("timeline", s.handleTimeline))
	mux.HandleFunc("GET /v1/reconcile", s.trace("reconcile", s.handleReconcile))

	mux.HandleFunc("GET /v1/approvals", s.trace("approvals", s.handleListApprovals))
	mux.HandleFunc("GET /v1/approvals/{id}", s.trace("approvals", s.handleGetApproval))
	mux.HandleFunc("POST /v1/approvals/{id}/resolve", s.trace("approvals", s.handleResolveApproval))

	mux.HandleFunc("GET /v1/rebalance/suggest", s.trace("rebalance", s.handleRebalanceSuggest))
	mux.HandleFunc("POST /v1/rebalance/commit", s.trace("rebalance", s.handleRebalanceCommit))
	mux.HandleFunc("GET /v1/surplus", s.trace("surplus", s.handleSurplus))
	mux.HandleFunc("POST /v1/drift/scan", s.trace("drift", s.handleDriftScan))

	mux.HandleFunc("POST /v1/rules", s.trace("rules", s.handleCreateRule))
	mux.HandleFunc("GET /v1/rules", s.trace("rules", s.handleListRules))
	mux.HandleFunc("GET /v1/rules/{id}", s.trace("rules", s.handleGetRule))
	mux.HandleFunc("PATCH /v1/rules/{id}", s.trace("rules", s.handleUpdateRule))
	mux.HandleFunc("DELETE /v1/rules/{id}", s.trace("rules", s.handleDeleteRule))

	return s
}

// trace tags the request with an id, records duration and status, and
// feeds the per-route request counter.
func (s *Server) trace(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.metrics.HTTPRequest(route, strconv.Itoa(rec.status))
		s.logger.InfoContext(r.Context(), "request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := s.store.ListCoupleIDs(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"store":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
