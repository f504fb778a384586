// Package ui serves a completed analysis run over HTTP: the fitted
// models, their prediction tables, the descriptive aggregates and an
// HTML report, plus an endpoint for ad-hoc counterfactual queries.
package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gamelearn/app"
	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
	"gamelearn/internal"
	"gamelearn/internal/predict"
	"gamelearn/internal/report"
)

// Server exposes one analysis run. The run is immutable once served.
type Server struct {
	report     *app.AnalysisReport
	aggregates []model.AggregateTable
	logger     *internal.Logger
}

// NewServer creates a server over a completed run
func NewServer(rep *app.AnalysisReport, aggregates []model.AggregateTable, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Server{report: rep, aggregates: aggregates, logger: logger}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/outcomes", s.handleOutcomes)
		r.Route("/outcomes/{key}", func(r chi.Router) {
			r.Get("/coefficients", s.handleCoefficients)
			r.Get("/predictions", s.handlePredictions)
			r.Post("/predict", s.handlePredict)
		})
		r.Get("/aggregates", s.handleAggregates)
	})
	r.Get("/report", s.handleReport)
	return r
}

// ListenAndServe runs the server until the listener fails
func (s *Server) ListenAndServe(port string) error {
	addr := ":" + port
	s.logger.Info("serving analysis run %s on %s", s.report.RunID, addr)
	return http.ListenAndServe(addr, s.Router())
}

type outcomeSummary struct {
	Key        core.OutcomeKey     `json:"key"`
	Status     string              `json:"status"`
	Error      string              `json:"error,omitempty"`
	Family     model.Family        `json:"family,omitempty"`
	Reduced    bool                `json:"reduced,omitempty"`
	Warnings   []model.WarningCode `json:"warnings,omitempty"`
	SampleSize int                 `json:"sample_size,omitempty"`
	RuntimeMs  int64               `json:"runtime_ms"`
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	out := struct {
		RunID    core.RunID       `json:"run_id"`
		Outcomes []outcomeSummary `json:"outcomes"`
	}{RunID: s.report.RunID}
	for _, res := range s.report.Results {
		sum := outcomeSummary{Key: res.Key, RuntimeMs: res.RuntimeMs}
		if res.Failed() {
			sum.Status = "failed"
			sum.Error = res.ErrMessage
		} else {
			sum.Status = "fit"
			sum.Family = res.Model.Family
			sum.Reduced = res.Model.Formula.Reduced
			sum.Warnings = res.Model.Warnings
			sum.SampleSize = res.Model.SampleSize
		}
		out.Outcomes = append(out.Outcomes, sum)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCoefficients(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resultParam(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Outcome      core.OutcomeKey           `json:"outcome"`
		Coefficients []model.Coefficient       `json:"coefficients"`
		VarComps     []model.VarianceComponent `json:"variance_components"`
		Warnings     []model.WarningCode       `json:"warnings,omitempty"`
	}{res.Key, res.Model.Coefficients, res.Model.VarComps, res.Model.Warnings})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resultParam(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, res.Predictions)
}

type predictRequest struct {
	Name  string                          `json:"name"`
	Fixed map[experiment.Factor]float64   `json:"fixed"`
	Sweep map[experiment.Factor][]float64 `json:"sweep"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resultParam(w, r)
	if !ok {
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	q := predict.Query{Name: req.Name, Fixed: req.Fixed, Sweep: req.Sweep}
	if q.Name == "" {
		q.Name = "ad_hoc"
	}
	table, err := predict.Predict(res.Model, q)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrUnknownCovariate) || errors.Is(err, core.ErrIncompleteGrid) || errors.Is(err, core.ErrConflictingAssign) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, table)
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.aggregates)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	md := report.BuildMarkdown(s.report, s.aggregates)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(report.RenderHTML(md))
}

func (s *Server) resultParam(w http.ResponseWriter, r *http.Request) (*app.OutcomeResult, bool) {
	key, err := core.ParseOutcomeKey(chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	res, ok := s.report.Result(key)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown outcome %q", key))
		return nil, false
	}
	if res.Failed() {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("outcome %q was not fit: %s", key, res.ErrMessage))
		return nil, false
	}
	return res, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
