// Package handlers serves the engine operations over HTTP.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperterse/fanout/core/application/schema"
	"github.com/hyperterse/fanout/core/application/services"
	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/infrastructure/transport/http/dto"
	"github.com/hyperterse/fanout/core/infrastructure/transport/http/middleware"
)

// Engine is the subset of services.Engine the handlers use.
type Engine interface {
	AddConnection(ctx context.Context, req services.AddConnectionRequest) (domain.ProfileSummary, error)
	ValidateConnection(ctx context.Context, name string) (domain.ProfileSummary, error)
	RemoveConnection(ctx context.Context, name string) error
	ListConnections() []domain.ProfileSummary
	RunQuery(ctx context.Context, req services.RunQueryRequest) (*services.RunQueryResponse, error)
	CompareSchemas(ctx context.Context, names []string) (*schema.Report, error)
}

// Handler serves every API route.
type Handler struct {
	*BaseHandler
	engine Engine
}

// New creates a Handler.
func New(engine Engine) *Handler {
	return &Handler{BaseHandler: NewBaseHandler("handler"), engine: engine}
}

// Heartbeat reports liveness.
func (h *Handler) Heartbeat(w http.ResponseWriter, _ *http.Request) {
	h.WriteSuccess(w, dto.HealthResponse{Success: true})
}

// ListConnections handles GET /connections.
func (h *Handler) ListConnections(w http.ResponseWriter, _ *http.Request) {
	h.WriteSuccess(w, dto.ConnectionListResponse{Connections: h.engine.ListConnections()})
}

// AddConnection handles POST /connections. The body has already been
// decoded and validated by middleware.
func (h *Handler) AddConnection(w http.ResponseWriter, r *http.Request) {
	req := middleware.Body[services.AddConnectionRequest](r)
	summary, err := h.engine.AddConnection(r.Context(), *req)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, dto.ConnectionResponse{Success: true, Connection: summary})
}

// RemoveConnection handles DELETE /connections/{name}.
func (h *Handler) RemoveConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.engine.RemoveConnection(r.Context(), name); err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteSuccess(w, dto.RemoveResponse{Success: true, Removed: name})
}

// ValidateConnection handles POST /connections/{name}/validate.
func (h *Handler) ValidateConnection(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.ValidateConnection(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteSuccess(w, dto.ConnectionResponse{Success: true, Connection: summary})
}

// RunQuery handles POST /query.
func (h *Handler) RunQuery(w http.ResponseWriter, r *http.Request) {
	req := middleware.Body[services.RunQueryRequest](r)
	h.logger.Debugf("Query on %v (merge=%q)", req.Connections, req.Merge)

	resp, err := h.engine.RunQuery(r.Context(), *req)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteSuccess(w, resp)
}

// CompareSchemas handles POST /schemas/compare.
func (h *Handler) CompareSchemas(w http.ResponseWriter, r *http.Request) {
	req := middleware.Body[dto.CompareSchemasRequest](r)
	report, err := h.engine.CompareSchemas(r.Context(), req.Connections)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.WriteSuccess(w, report)
}
