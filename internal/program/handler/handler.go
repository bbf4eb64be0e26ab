package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"loyaltycore/internal/program/models"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/httputil"
	"loyaltycore/pkg/requestcontext"
)

const maxProgramNameLen = 200

// Service defines the interface for program registry operations.
type Service interface {
	Create(ctx context.Context, businessID id.BusinessID, name string) (*models.Program, error)
	Get(ctx context.Context, programID id.ProgramID) (*models.Program, error)
	ListByBusiness(ctx context.Context, businessID id.BusinessID) ([]*models.Program, error)
}

// Handler wires program endpoints to the registry service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a program handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts program endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/programs", h.HandleCreate)
	r.Get("/programs", h.HandleList)
	r.Get("/programs/{id}", h.HandleGet)
}

// CreateRequest is the HTTP request body for POST /programs.
type CreateRequest struct {
	Name string `json:"name"`
}

// Validate validates the request.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if len(r.Name) > maxProgramNameLen {
		return dErrors.New(dErrors.CodeInvalidInput, "name is too long")
	}
	return nil
}

// ProgramResponse is the wire form of a program.
type ProgramResponse struct {
	ProgramID  string    `json:"programId"`
	BusinessID string    `json:"businessId"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FromProgram converts a program to its wire form.
func FromProgram(program *models.Program) ProgramResponse {
	return ProgramResponse{
		ProgramID:  program.ID.String(),
		BusinessID: program.BusinessID.String(),
		Name:       program.Name,
		CreatedAt:  program.CreatedAt,
	}
}

// HandleCreate handles POST /programs requests. The owning business comes
// from the authenticated identity.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	businessID := requestcontext.BusinessID(ctx)
	if businessID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "business identity required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	program, err := h.service.Create(ctx, businessID, req.Name)
	if err != nil {
		h.logger.ErrorContext(ctx, "create program failed",
			"request_id", requestID,
			"business_id", businessID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "program created",
		"request_id", requestID,
		"program_id", program.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromProgram(program))
}

// HandleGet handles GET /programs/{id} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	programID, err := id.ParseProgramID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	program, err := h.service.Get(ctx, programID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProgram(program))
}

// HandleList handles GET /programs requests for the authenticated business.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	businessID := requestcontext.BusinessID(ctx)
	if businessID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "business identity required"))
		return
	}

	programs, err := h.service.ListByBusiness(ctx, businessID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]ProgramResponse, 0, len(programs))
	for _, program := range programs {
		out = append(out, FromProgram(program))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"programs": out})
}
