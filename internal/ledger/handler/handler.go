package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"loyaltycore/internal/ledger/models"
	"loyaltycore/internal/qr"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/httputil"
	"loyaltycore/pkg/requestcontext"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Service defines the interface for ledger operations.
type Service interface {
	ApplyDelta(ctx context.Context, cardID id.CardID, delta int64, source, idempotencyKey string) (*models.ApplyResult, error)
	ListTransactions(ctx context.Context, cardID id.CardID, limit int) ([]*models.PointTransaction, error)
}

// QRValidator verifies scanned payloads and consumes their nonces.
type QRValidator interface {
	Validate(ctx context.Context, payload string, expected qr.Kind, now time.Time) (*qr.Payload, error)
}

// Handler wires ledger endpoints to the ledger service.
type Handler struct {
	service   Service
	validator QRValidator
	logger    *slog.Logger
}

// New constructs a ledger handler with its dependencies.
func New(service Service, validator QRValidator, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: validator,
		logger:    logger,
	}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transactions", h.HandleApply)
	r.Post("/scan", h.HandleScan)
	r.Get("/cards/{id}/transactions", h.HandleListTransactions)
}

// HandleApply handles POST /transactions requests.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ApplyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.ApplyDelta(ctx, req.ParsedCardID(), req.Delta, req.Source, req.IdempotencyKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "apply delta failed",
			"request_id", requestID,
			"card_id", req.CardID,
			"delta", req.Delta,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "delta applied",
		"request_id", requestID,
		"card_id", req.CardID,
		"delta", req.Delta,
		"replayed", result.Replayed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleScan handles POST /scan requests: validate the signed card payload,
// then apply the delta through the same ledger path as POST /transactions.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ScanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	payload, err := h.validator.Validate(ctx, req.Payload, qr.KindCard, requestcontext.Now(ctx))
	if err != nil {
		// Security rejections are logged for audit before surfacing.
		h.logger.WarnContext(ctx, "scan payload rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	cardID, err := id.ParseCardID(payload.Subject)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeSecurity, "invalid qr payload"))
		return
	}

	result, err := h.service.ApplyDelta(ctx, cardID, req.Delta, req.Source, req.IdempotencyKey)
	if err != nil {
		h.logger.ErrorContext(ctx, "scan apply failed",
			"request_id", requestID,
			"card_id", cardID.String(),
			"delta", req.Delta,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "scan applied",
		"request_id", requestID,
		"card_id", cardID.String(),
		"delta", req.Delta,
		"replayed", result.Replayed,
	)

	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleListTransactions handles GET /cards/{id}/transactions requests.
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cardID, err := id.ParseCardID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	txns, err := h.service.ListTransactions(ctx, cardID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTransactions(txns))
}
