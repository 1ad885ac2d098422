package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/uxtrap/internal/application/evaluations"
	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/session"
	"github.com/bryanwahyu/uxtrap/internal/domain/viewport"
	"github.com/bryanwahyu/uxtrap/internal/middleware"
)

type Options struct {
	Service        *evaluations.Service
	Logger         *zap.Logger
	Metrics        *middleware.Metrics
	RateLimiter    *middleware.RateLimiter
	APIKeys        map[string]string
	AllowedOrigins []string
	MaxUploadBytes int64
	MaxImagePixels int // 0 means imaging.DefaultMaxPixels
	HealthChecks   map[string]middleware.HealthChecker
}

type Router struct {
	svc       *evaluations.Service
	log       *zap.Logger
	maxUpload int64
	maxPixels int
}

func NewRouter(opt Options) http.Handler {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Metrics == nil {
		opt.Metrics = middleware.NewMetrics()
	}
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = 20 << 20
	}
	if len(opt.AllowedOrigins) == 0 {
		opt.AllowedOrigins = []string{"*"}
	}
	r := &Router{svc: opt.Service, log: opt.Logger, maxUpload: opt.MaxUploadBytes, maxPixels: opt.MaxImagePixels}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.RequestLogger(opt.Logger))
	mux.Use(opt.Metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opt.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"Content-Disposition", "X-Export-Location"},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(opt.APIKeys))
	if opt.RateLimiter != nil {
		mux.Use(opt.RateLimiter.Middleware)
	}

	mux.Get("/health", middleware.HealthHandler(opt.HealthChecks))
	mux.Get("/ready", middleware.ReadinessHandler(opt.HealthChecks))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", opt.Metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/taxonomy", r.wrap(r.handleTaxonomy))
		rt.Get("/runs", r.wrap(r.handleRuns))
		rt.Get("/runs/summary", r.wrap(r.handleRunSummary))

		rt.Post("/sessions", r.wrap(r.handleCreateSession))
		rt.Route("/sessions/{sid}", func(s chi.Router) {
			s.Get("/", r.wrap(r.handleGetSession))
			s.Delete("/", r.wrap(r.handleDeleteSession))
			s.Put("/context", r.wrap(r.handleSetContext))

			s.Post("/images", r.wrap(r.handleUploadImages))
			s.Put("/images/active", r.wrap(r.handleSetActive))
			s.Get("/images/{imageID}", r.wrap(r.handleGetImage))
			s.Delete("/images/{imageID}", r.wrap(r.handleDeleteImage))

			s.Get("/viewport", r.wrap(r.handleGetViewport))
			s.Post("/viewport", r.wrap(r.handleViewportAction))

			s.Post("/evaluations", r.wrap(r.handleStartEvaluation))
			s.Get("/evaluations/current", r.wrap(r.handleCurrentEvaluation))
			s.Post("/evaluations/current/cancel", r.wrap(r.handleCancelEvaluation))

			s.Get("/export", r.wrap(r.handleExport))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusOf maps an error to its HTTP status and public kind.
func statusOf(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrImageNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, evaluation.ErrRunInProgress):
		return http.StatusConflict, "busy"
	case errors.Is(err, session.ErrNotRunning), errors.Is(err, session.ErrNoResult):
		return http.StatusConflict, "conflict"
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, evaluation.ErrValidation), errors.Is(err, errBadRequest), errors.Is(err, viewport.ErrNotPreset):
		return http.StatusBadRequest, string(evaluation.KindValidation)
	case errors.Is(err, evaluation.ErrImageDecode):
		return http.StatusBadRequest, string(evaluation.KindImage)
	case errors.Is(err, evaluation.ErrRateLimited):
		return http.StatusTooManyRequests, string(evaluation.KindRateLimit)
	}
	return http.StatusInternalServerError, string(evaluation.KindInternal)
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		code, kind := statusOf(err)
		var body errorBody
		body.Error.Kind = kind
		body.Error.Message = err.Error()
		switch {
		case code >= 500:
			r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			body.Error.Message = "internal error"
		case kind == string(evaluation.KindValidation) && errors.Is(err, evaluation.ErrValidation):
			body.Error.Message = evaluation.UserMessage(err)
			if body.Error.Message == "Please check your input." {
				body.Error.Message = err.Error()
			}
		}
		writeJSON(w, code, body)
	}
}

// encodeFailure is sent when a payload cannot be marshalled; the status is not committed yet.
const encodeFailure = `{"error":{"kind":"internal","message":"response could not be encoded"}}`

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(encodeFailure + "\n"))
		return
	}
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}

func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json body: %v", err)
	}
	return nil
}

// GET /v1/taxonomy
func (r *Router) handleTaxonomy(w http.ResponseWriter, req *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"tenets":     evaluation.Tenets,
		"traps":      evaluation.Traps,
		"severities": evaluation.Severities,
	})
	return nil
}
