// Package chi is the HTTP surface of lexdrill.
package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	logpkg "github.com/kailas-cloud/lexdrill/internal/logger"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
	healthuc "github.com/kailas-cloud/lexdrill/internal/usecase/health"
	sessionuc "github.com/kailas-cloud/lexdrill/internal/usecase/session"
)

const (
	maxImportItems = 1000
	maxBodyBytes   = 4 << 20
)

// Server holds the HTTP handlers.
type Server struct {
	selector  Selector
	drills    DrillServer
	sessions  Sessions
	inventory Inventory
	catalog   Catalog
	health    HealthChecker
	logger    *zap.Logger
}

// Deps groups the services behind the handlers.
type Deps struct {
	Selector  Selector
	Drills    DrillServer
	Sessions  Sessions
	Inventory Inventory
	Catalog   Catalog
	Health    HealthChecker
}

// NewServer creates an HTTP API server.
func NewServer(d Deps, logger *zap.Logger) *Server {
	return &Server{
		selector:  d.Selector,
		drills:    d.Drills,
		sessions:  d.Sessions,
		inventory: d.Inventory,
		catalog:   d.Catalog,
		health:    d.Health,
		logger:    logger,
	}
}

// Router builds the chi router. Admin routes require one of apiKeys.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.HTTPMiddleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/items/{item}", s.GetItem)
		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/selection", s.GetSelection)
			r.Get("/drills", s.GetDrills)
			r.Post("/ratings", s.PostRating)
			r.Post("/flush", s.PostFlush)
			r.Get("/inventory", s.GetInventory)
			r.With(BearerAuthMiddleware(apiKeys)).Delete("/inventory", s.DeleteInventory)
		})
		r.With(BearerAuthMiddleware(apiKeys)).Put("/items", s.PutItems)
	})
	return r
}

// HealthCheck handles GET /health. Degraded still answers 200; only Unhealthy yields 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type selectionResponse struct {
	Items []domain.Candidate `json:"items"`
}

// GetSelection handles GET /v1/users/{user}/selection?slots=N&track=T&buckets=a,b.
func (s *Server) GetSelection(w http.ResponseWriter, r *http.Request) {
	slots, err := intParam(r, "slots")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	track := domain.TrackVisual
	if t := r.URL.Query().Get("track"); t != "" {
		track = domain.Track(t)
		if !track.Valid() {
			writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("unknown track %q", t))
			return
		}
	}
	buckets, err := bucketsParam(r.URL.Query().Get("buckets"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	out, err := s.selector.SelectBuckets(r.Context(), chi.URLParam(r, "user"), track, slots, buckets)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Candidate{}
	}
	writeJSON(w, http.StatusOK, selectionResponse{Items: out})
}

type drillsResponse struct {
	Items []domain.ServedDrill `json:"items"`
}

// GetDrills handles GET /v1/users/{user}/drills?mode=M&limit=N.
func (s *Server) GetDrills(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	mode := domain.Mode(r.URL.Query().Get("mode"))

	out, err := s.drills.NextBatch(r.Context(), chi.URLParam(r, "user"), mode, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.ServedDrill{}
	}
	writeJSON(w, http.StatusOK, drillsResponse{Items: out})
}

type ratingRequest struct {
	ItemID    int64             `json:"item_id"`
	Grade     domain.InputGrade `json:"grade"`
	ElapsedMs int64             `json:"elapsed_ms"`
	IsRetry   bool              `json:"is_retry"`
	Mode      domain.Mode       `json:"mode"`
	DrillType domain.DrillType  `json:"drill_type"`
}

// PostRating handles POST /v1/users/{user}/ratings.
func (s *Server) PostRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ElapsedMs < 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "elapsed_ms must not be negative")
		return
	}

	res, err := s.sessions.Submit(r.Context(), sessionuc.Answer{
		UserID:    chi.URLParam(r, "user"),
		ItemID:    req.ItemID,
		Grade:     req.Grade,
		Elapsed:   time.Duration(req.ElapsedMs) * time.Millisecond,
		IsRetry:   req.IsRetry,
		Mode:      req.Mode,
		DrillType: req.DrillType,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PostFlush handles POST /v1/users/{user}/flush.
func (s *Server) PostFlush(w http.ResponseWriter, r *http.Request) {
	res, err := s.sessions.Flush(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type inventoryStatsResponse struct {
	Modes map[domain.Mode]int `json:"modes"`
	Total int                 `json:"total"`
}

// GetInventory handles GET /v1/users/{user}/inventory.
func (s *Server) GetInventory(w http.ResponseWriter, r *http.Request) {
	stats, err := s.inventory.Stats(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	resp := inventoryStatsResponse{Modes: stats}
	for _, n := range stats {
		resp.Total += n
	}
	writeJSON(w, http.StatusOK, resp)
}

type clearResponse struct {
	Deleted int `json:"deleted"`
}

// DeleteInventory handles DELETE /v1/users/{user}/inventory[?mode=M].
func (s *Server) DeleteInventory(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	var (
		n   int
		err error
	)
	if m := r.URL.Query().Get("mode"); m != "" {
		mode := domain.Mode(m)
		if !mode.IsScenario() {
			writeError(w, http.StatusBadRequest, CodeInvalidMode, fmt.Sprintf("unknown mode %q", m))
			return
		}
		n, err = s.inventory.ClearMode(r.Context(), user, mode)
	} else {
		n, err = s.inventory.ClearAll(r.Context(), user)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	logpkg.ForUser(r.Context(), user).Info("inventory cleared", zap.Int("deleted", n))
	writeJSON(w, http.StatusOK, clearResponse{Deleted: n})
}

// GetItem handles GET /v1/items/{item}.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "item"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "item id must be a positive integer")
		return
	}
	item, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type importRequest struct {
	Items []domain.LearningItem `json:"items"`
}

type importResponse struct {
	Upserted int `json:"upserted"`
}

// PutItems handles PUT /v1/items.
func (s *Server) PutItems(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Items) == 0 || len(req.Items) > maxImportItems {
		writeError(w, http.StatusBadRequest, CodeBadRequest,
			fmt.Sprintf("items must hold 1..%d entries", maxImportItems))
		return
	}
	n, err := s.catalog.Upsert(r.Context(), req.Items)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Upserted: n})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.ForUser(r.Context(), chi.URLParam(r, "user"))
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func bucketsParam(raw string) ([]domain.Bucket, error) {
	if raw == "" {
		return []domain.Bucket{domain.BucketRescue, domain.BucketReview, domain.BucketNew}, nil
	}
	var out []domain.Bucket
	for _, p := range strings.Split(raw, ",") {
		b := domain.Bucket(strings.TrimSpace(p))
		switch b {
		case domain.BucketRescue, domain.BucketReview, domain.BucketNew:
			out = append(out, b)
		default:
			return nil, fmt.Errorf("unknown bucket %q", p)
		}
	}
	return out, nil
}
