package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	enrollmodels "loyaltycore/internal/enrollment/models"
	"loyaltycore/internal/enrollment/service"
	"loyaltycore/internal/qr"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/httputil"
	"loyaltycore/pkg/requestcontext"
)

// Service defines the interface for enrollment workflow operations.
type Service interface {
	Invite(ctx context.Context, customerID id.CustomerID, programID id.ProgramID) (*service.InviteResult, error)
	Respond(ctx context.Context, approvalID id.ApprovalRequestID, accept bool) (*service.RespondResult, error)
	Revoke(ctx context.Context, enrollmentID id.EnrollmentID) (*enrollmodels.Enrollment, error)
	GetEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*enrollmodels.Enrollment, error)
	PendingApproval(ctx context.Context, enrollmentID id.EnrollmentID) (*enrollmodels.ApprovalRequest, error)
}

// QRValidator verifies scanned customer payloads and consumes their nonces.
type QRValidator interface {
	Validate(ctx context.Context, payload string, expected qr.Kind, now time.Time) (*qr.Payload, error)
}

// QRSigner mints signed payloads of a given kind.
type QRSigner interface {
	Sign(kind qr.Kind, subject string, now time.Time) (string, error)
}

// Handler wires enrollment endpoints to the workflow service.
type Handler struct {
	service   Service
	validator QRValidator
	signer    QRSigner
	logger    *slog.Logger
}

// New constructs an enrollment handler with its dependencies.
func New(service Service, validator QRValidator, signer QRSigner, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: validator,
		signer:    signer,
		logger:    logger,
	}
}

// Register mounts enrollment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/enrollments", h.HandleInvite)
	r.Get("/enrollments/{id}", h.HandleGet)
	r.Post("/enrollments/{id}/respond", h.HandleRespond)
	r.Post("/enrollments/{id}/revoke", h.HandleRevoke)
	r.Post("/qr", h.HandleMintQR)
}

// HandleInvite handles POST /enrollments requests. The customer comes either
// from the body or from a scanned customer payload.
func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[InviteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	customerID := req.ParsedCustomerID()
	if req.QRPayload != "" {
		payload, err := h.validator.Validate(ctx, req.QRPayload, qr.KindCustomer, requestcontext.Now(ctx))
		if err != nil {
			h.logger.WarnContext(ctx, "invite payload rejected",
				"request_id", requestID,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		customerID, err = id.ParseCustomerID(payload.Subject)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeSecurity, "invalid qr payload"))
			return
		}
	}

	result, err := h.service.Invite(ctx, customerID, req.ParsedProgramID())
	if err != nil {
		h.logger.ErrorContext(ctx, "invite failed",
			"request_id", requestID,
			"customer_id", customerID.String(),
			"program_id", req.ProgramID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "enrollment invited",
		"request_id", requestID,
		"enrollment_id", result.Enrollment.ID.String(),
		"program_id", req.ProgramID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromInvite(result))
}

// HandleGet handles GET /enrollments/{id} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enrollmentID, err := id.ParseEnrollmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	enrollment, err := h.service.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEnrollment(enrollment))
}

// HandleRespond handles POST /enrollments/{id}/respond requests. The path
// names the enrollment; the handler resolves its open approval request so a
// duplicate submission lands on the same request and fails the same way.
func (h *Handler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	enrollmentID, err := id.ParseEnrollmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[RespondRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	approval, err := h.service.PendingApproval(ctx, enrollmentID)
	if err != nil {
		// An already-answered enrollment has no pending request; report
		// that as the conflict it is rather than a 404.
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			if _, getErr := h.service.GetEnrollment(ctx, enrollmentID); getErr == nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "approval request already answered"))
				return
			}
		}
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Respond(ctx, approval.ID, *req.Accept)
	if err != nil {
		h.logger.ErrorContext(ctx, "respond failed",
			"request_id", requestID,
			"enrollment_id", enrollmentID.String(),
			"accept", *req.Accept,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "enrollment responded",
		"request_id", requestID,
		"enrollment_id", enrollmentID.String(),
		"status", string(result.Enrollment.Status),
	)
	httputil.WriteJSON(w, http.StatusOK, FromRespond(result))
}

// HandleRevoke handles POST /enrollments/{id}/revoke requests.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	enrollmentID, err := id.ParseEnrollmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	enrollment, err := h.service.Revoke(ctx, enrollmentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "revoke failed",
			"request_id", requestID,
			"enrollment_id", enrollmentID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "enrollment revoked",
		"request_id", requestID,
		"enrollment_id", enrollmentID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromEnrollment(enrollment))
}

// MintQRResponse is the HTTP response body for POST /qr.
type MintQRResponse struct {
	Payload string `json:"payload"`
}

// HandleMintQR handles POST /qr: issue a short-lived signed payload
// identifying the authenticated customer, suitable for rendering as a QR
// code at enrollment time.
func (h *Handler) HandleMintQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customerID := requestcontext.CustomerID(ctx)
	if customerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "customer identity required"))
		return
	}

	payload, err := h.signer.Sign(qr.KindCustomer, customerID.String(), requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "mint payload"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MintQRResponse{Payload: payload})
}
