package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/user/isbn-service/internal/delivery/http/response"
	"github.com/user/isbn-service/internal/repository"
	"github.com/user/isbn-service/internal/usecase"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

type Handler struct {
	lookup usecase.BookLookup
	store  repository.RecordCacheRepository
	logger *zap.Logger
}

func NewHandler(lookup usecase.BookLookup, store repository.RecordCacheRepository, logger *zap.Logger) *Handler {
	return &Handler{
		lookup: lookup,
		store:  store,
		logger: logger,
	}
}

func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, response.IndexResponse{OK: true})
}

// HandleSearchISBN serves GET /search/isbn?q=<isbn>. Lookup failures are
// reported in the body with a 200 status; only a missing q is a 400.
func (h *Handler) HandleSearchISBN(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("q") {
		h.writeJSON(w, http.StatusBadRequest, response.NewFailureResponse("missing query parameter q"))
		return
	}

	// The raw value is the cache key.
	result, err := h.lookup.Lookup(r.Context(), query.Get("q"))
	if err != nil {
		h.writeJSON(w, http.StatusOK, response.NewFailureResponse(err.Error()))
		return
	}

	h.writeJSON(w, http.StatusOK, response.NewLookupResponse(result.Cached, result.Record))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("health check failed for store", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, response.HealthResponse{Status: "unavailable", Store: "unhealthy"})
		return
	}
	h.writeJSON(w, http.StatusOK, response.HealthResponse{Status: "ok", Store: "healthy"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	if err := response.JSON(w, code, payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
