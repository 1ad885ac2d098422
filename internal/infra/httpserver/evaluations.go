package httpserver

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/uxtrap/internal/middleware"
)

// POST /v1/sessions/{sid}/evaluations
// 202 with the running state; 400 when validation fails, 409 when a run is active.
func (r *Router) handleStartEvaluation(w http.ResponseWriter, req *http.Request) error {
	if _, err := r.session(req); err != nil {
		return err
	}
	run, err := r.svc.Start(chi.URLParam(req, "sid"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, run)
	return nil
}

// GET /v1/sessions/{sid}/evaluations/current
func (r *Router) handleCurrentEvaluation(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s.Run())
	return nil
}

// POST /v1/sessions/{sid}/evaluations/current/cancel
func (r *Router) handleCancelEvaluation(w http.ResponseWriter, req *http.Request) error {
	if _, err := r.session(req); err != nil {
		return err
	}
	run, err := r.svc.Cancel(chi.URLParam(req, "sid"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, run)
	return nil
}

// GET /v1/sessions/{sid}/export
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	if _, err := r.session(req); err != nil {
		return err
	}
	exp, err := r.svc.Export(req.Context(), chi.URLParam(req, "sid"))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": exp.Filename}))
	if exp.Location != "" {
		w.Header().Set("X-Export-Location", exp.Location)
	}
	_, err = w.Write(exp.Data)
	return err
}

// GET /v1/runs?limit=
func (r *Router) handleRuns(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	runs, err := r.svc.RecentRuns(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	return nil
}

// GET /v1/runs/summary?days=
func (r *Router) handleRunSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	days = middleware.ValidateDays(days)
	sum, err := r.svc.RunSummary(req.Context(), days)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "summary": sum})
	return nil
}
