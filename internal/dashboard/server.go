// Package dashboard serves the portfolio page, its JSON API and live updates.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"citadel/internal/config"
	"citadel/internal/daily"
	"citadel/internal/insight"
	"citadel/internal/portfolio"
	"citadel/internal/store"
)

// HistoryReader loads a strategy's stored snapshots.
type HistoryReader interface {
	Load(ctx context.Context, strategy string) ([]portfolio.Snapshot, error)
}

// ReportSource returns the most recent in-process report of a strategy.
type ReportSource interface {
	Latest(strategy string) (portfolio.Report, bool)
}

// DailySource returns today's equity range of a strategy.
type DailySource interface {
	Latest(ctx context.Context, strategy string) (daily.Status, bool, error)
}

// InsightSource returns the latest commentary of a strategy.
type InsightSource interface {
	Latest(strategy string) (insight.Insight, bool)
}

// Deps are the data sources of the dashboard. Reports, Daily, Insights, Metrics and Events are
// optional.
type Deps struct {
	Strategies []string
	History    HistoryReader
	Reports    ReportSource
	Daily      DailySource
	Insights   InsightSource
	Metrics    http.Handler
	Events     http.Handler
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg        config.DashboardConfig
	deps       Deps
	hub        *Hub
	summarizer *portfolio.Summarizer
	router     *mux.Router
	logger     *zap.Logger
}

// NewServer creates the server and its routes.
func NewServer(cfg config.DashboardConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Title == "" {
		cfg.Title = "Citadel"
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}

	s := &Server{
		cfg:        cfg,
		deps:       deps,
		hub:        NewHub(logger),
		summarizer: portfolio.NewSummarizer(),
		router:     mux.NewRouter(),
		logger:     logger,
	}
	s.routes()
	return s
}

// Hub returns the websocket hub snapshots are published to.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/ws", s.hub)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentType)
	api.HandleFunc("/strategies", s.handleStrategies).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{strategy}", s.handleSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/summary/{strategy}", s.handleSummary).Methods(http.MethodGet)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics)
	}
	if s.deps.Events != nil {
		s.router.Handle("/events", s.deps.Events)
	}
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dashboard: listen %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("dashboard shutdown failed", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard listening", zap.String("addr", listener.Addr().String()))
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

type strategyView struct {
	Name   string              `json:"name"`
	Latest *portfolio.Snapshot `json:"latest,omitempty"`
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	out := make([]strategyView, 0, len(s.deps.Strategies))
	for _, name := range s.deps.Strategies {
		view := strategyView{Name: name}
		history, err := s.deps.History.Load(r.Context(), name)
		if err != nil {
			s.fail(w, err)
			return
		}
		if len(history) > 0 {
			latest := history[len(history)-1]
			view.Latest = &latest
		}
		out = append(out, view)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	strategy, ok := s.strategy(w, mux.Vars(r)["strategy"])
	if !ok {
		return
	}

	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			http.Error(w, `{"error":"limit must be a non-negative integer"}`, http.StatusBadRequest)
			return
		}
		limit = v
	}

	history, err := s.deps.History.Load(r.Context(), strategy)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, store.Tail(history, limit))
}

type summaryView struct {
	portfolio.Summary
	Today   *daily.Status    `json:"today,omitempty"`
	Insight *insight.Insight `json:"insight,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	strategy, ok := s.strategy(w, mux.Vars(r)["strategy"])
	if !ok {
		return
	}

	history, err := s.deps.History.Load(r.Context(), strategy)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, summaryView{
		Summary: s.summarizer.Summarize(strategy, history),
		Today:   s.today(r.Context(), strategy),
		Insight: s.insight(strategy),
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if len(s.deps.Strategies) == 0 {
		http.Error(w, "no strategies configured", http.StatusServiceUnavailable)
		return
	}
	name := r.URL.Query().Get("strategy")
	if name == "" {
		name = s.deps.Strategies[0]
	}
	strategy, ok := s.strategy(w, name)
	if !ok {
		return
	}

	history, err := s.deps.History.Load(r.Context(), strategy)
	if err != nil {
		s.fail(w, err)
		return
	}

	data := pageData{
		Title:          s.cfg.Title,
		Strategy:       strategy,
		Strategies:     s.deps.Strategies,
		RefreshSeconds: int(s.cfg.RefreshInterval / time.Second),
		Stored:         strconv.Itoa(len(history)),
		Empty:          len(history) == 0,
	}

	if len(history) > 0 {
		latest := history[len(history)-1]
		var report *portfolio.Report
		if s.deps.Reports != nil {
			if rep, ok := s.deps.Reports.Latest(strategy); ok && rep.Snapshot.Time.Equal(latest.Time) {
				report = &rep
			}
		}

		summary := s.summarizer.Summarize(strategy, history)
		data.Cards = buildCards(latest, report, summary, s.today(r.Context(), strategy))
		data.Chart = buildChart(store.Tail(history, s.cfg.HistoryLimit))
		data.Updated = updatedLabel(latest.Time)
		data.Insight, data.InsightAt = insightBlock(s.insight(strategy))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Warn("render dashboard failed", zap.Error(err))
	}
}

func (s *Server) strategy(w http.ResponseWriter, name string) (string, bool) {
	if !slices.Contains(s.deps.Strategies, name) {
		http.Error(w, fmt.Sprintf("unknown strategy %q", name), http.StatusNotFound)
		return "", false
	}
	return name, true
}

func (s *Server) today(ctx context.Context, strategy string) *daily.Status {
	if s.deps.Daily == nil {
		return nil
	}
	status, ok, err := s.deps.Daily.Latest(ctx, strategy)
	if err != nil {
		s.logger.Warn("load daily status failed", zap.String("strategy", strategy), zap.Error(err))
		return nil
	}
	if !ok || status.Day != daily.Day(time.Now()) {
		return nil
	}
	return &status
}

func (s *Server) insight(strategy string) *insight.Insight {
	if s.deps.Insights == nil {
		return nil
	}
	in, ok := s.deps.Insights.Latest(strategy)
	if !ok {
		return nil
	}
	return &in
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write dashboard response failed", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error("dashboard request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
