// Package api exposes the HTTP interface for the newswatch service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"newswatch/internal/config"
	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/scoring"
)

// Trigger starts crawl runs and re-reads the stored schedule. The scheduler
// implements it; tests substitute fakes.
type Trigger interface {
	RunAsync(trigger string) error
	CollectAsync(trigger string) error
	Rearm(ctx context.Context) error
}

// Server wires HTTP handlers to the stores and the scheduler.
type Server struct {
	router   chi.Router
	articles news.ArticleStore
	subs     news.SubscriptionStore
	schedule news.ScheduleStore
	reports  news.ReportStore
	trigger  Trigger
	scorer   *scoring.Scorer
	clock    news.Clock
	logger   *zap.Logger
}

// Options carries the Server dependencies.
type Options struct {
	Articles news.ArticleStore
	Subs     news.SubscriptionStore
	Schedule news.ScheduleStore
	Reports  news.ReportStore
	Trigger  Trigger
	Scorer   *scoring.Scorer
	Clock    news.Clock
	Logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	s := &Server{
		articles: opts.Articles,
		subs:     opts.Subs,
		schedule: opts.Schedule,
		reports:  opts.Reports,
		trigger:  opts.Trigger,
		scorer:   opts.Scorer,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/articles", s.listArticles)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.listSubscriptions)
			r.Post("/", s.createSubscription)
			r.Patch("/{id}", s.updateSubscription)
			r.Delete("/{id}", s.deleteSubscription)
		})

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", s.getSchedule)
			r.Put("/", s.updateSchedule)
		})

		r.Route("/crawl", func(r chi.Router) {
			r.Post("/run", s.triggerRun)
			r.Post("/collect", s.triggerCollect)
		})

		r.Get("/reports", s.listReports)
		r.Get("/reports/{keyword}/{date}", s.getReport)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// articleView is an Article with its scores computed at request time.
type articleView struct {
	news.Article
	Quality   float64 `json:"quality_score"`
	Freshness float64 `json:"freshness_score"`
	Final     float64 `json:"final_score"`
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := news.ArticleFilter{
		Keyword: q.Get("keyword"),
		Source:  news.Source(q.Get("source")),
		Limit:   50,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 500 {
			writeError(w, http.StatusBadRequest, "limit must be in 1..500")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("since_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "since_hours must be a positive integer")
			return
		}
		filter.Since = s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	}

	articles, err := s.articles.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list articles failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}

	now := s.clock.Now()
	views := make([]articleView, len(articles))
	for i, a := range articles {
		score := s.scorer.Score(a, now)
		views[i] = articleView{
			Article:   a,
			Quality:   score.Quality,
			Freshness: score.Freshness,
			Final:     score.Final,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": views})
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subs.ListSubscriptions(r.Context())
	if err != nil {
		s.logger.Error("list subscriptions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

type subscriptionRequest struct {
	Keyword string `json:"keyword"`
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword required")
		return
	}
	id, created, err := s.subs.Create(r.Context(), req.Keyword)
	if err != nil {
		s.logger.Error("create subscription failed",
			zap.String("keyword", req.Keyword), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"id": id, "keyword": req.Keyword, "created": created})
}

type subscriptionUpdateRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) updateSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}
	var req subscriptionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled required")
		return
	}
	if err := s.subs.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": *req.Enabled})
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}
	if err := s.subs.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.schedule.GetSchedule(r.Context())
	if err != nil {
		s.logger.Error("get schedule failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type scheduleRequest struct {
	Time    string `json:"time"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if _, err := config.ParseClockTime(req.Time); err != nil {
		writeError(w, http.StatusBadRequest, "time must be HH:MM")
		return
	}
	cfg := news.ScheduleConfig{Time: req.Time, Enabled: req.Enabled, UpdatedAt: s.clock.Now()}
	if err := s.schedule.UpdateSchedule(r.Context(), cfg); err != nil {
		s.logger.Error("update schedule failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}
	if err := s.trigger.Rearm(r.Context()); err != nil {
		s.logger.Error("rearm after schedule update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "schedule saved but not armed")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) triggerRun(w http.ResponseWriter, _ *http.Request) {
	s.startRun(w, "api", s.trigger.RunAsync)
}

func (s *Server) triggerCollect(w http.ResponseWriter, _ *http.Request) {
	s.startRun(w, "api", s.trigger.CollectAsync)
}

func (s *Server) startRun(w http.ResponseWriter, trigger string, start func(string) error) {
	if err := start(trigger); err != nil {
		if errors.Is(err, news.ErrSchedulerBusy) {
			writeError(w, http.StatusConflict, "a crawl run is already in progress")
			return
		}
		s.logger.Error("trigger run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be in 1..200")
			return
		}
		limit = n
	}
	reports, err := s.reports.ListReports(r.Context(), limit)
	if err != nil {
		s.logger.Error("list reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	keyword := chi.URLParam(r, "keyword")
	date := chi.URLParam(r, "date")
	report, err := s.reports.GetReportByKeywordDate(r.Context(), keyword, date)
	if err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
