package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"loyaltycore/internal/card/models"
	"loyaltycore/internal/qr"
	id "loyaltycore/pkg/domain"
	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/httputil"
	"loyaltycore/pkg/requestcontext"
)

// Service defines the interface for card read operations.
type Service interface {
	GetCard(ctx context.Context, cardID id.CardID) (*models.LoyaltyCard, error)
}

// QRSigner mints signed payloads of a given kind.
type QRSigner interface {
	Sign(kind qr.Kind, subject string, now time.Time) (string, error)
}

// Handler wires card endpoints to the card service.
type Handler struct {
	service Service
	signer  QRSigner
	logger  *slog.Logger
}

// New constructs a card handler with its dependencies.
func New(service Service, signer QRSigner, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		signer:  signer,
		logger:  logger,
	}
}

// Register mounts card endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/cards/{id}", h.HandleGet)
	r.Post("/cards/{id}/qr", h.HandleMintQR)
}

// CardResponse is the HTTP response body for GET /cards/{id}.
type CardResponse struct {
	CardID       string    `json:"cardId"`
	EnrollmentID string    `json:"enrollmentId"`
	Balance      int64     `json:"balance"`
	Tier         string    `json:"tier"`
	Version      int64     `json:"version"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromCard converts a card to its wire form.
func FromCard(card *models.LoyaltyCard) CardResponse {
	return CardResponse{
		CardID:       card.ID.String(),
		EnrollmentID: card.EnrollmentID.String(),
		Balance:      card.Balance,
		Tier:         string(card.Tier),
		Version:      card.Version,
		Active:       card.Active,
		CreatedAt:    card.CreatedAt,
	}
}

// HandleGet handles GET /cards/{id} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cardID, err := id.ParseCardID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	card, err := h.service.GetCard(ctx, cardID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCard(card))
}

// MintQRResponse is the HTTP response body for POST /cards/{id}/qr.
type MintQRResponse struct {
	Payload string `json:"payload"`
}

// HandleMintQR handles POST /cards/{id}/qr: issue a short-lived signed
// payload identifying the card, suitable for rendering as a QR code. Only
// active cards get payloads.
func (h *Handler) HandleMintQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	cardID, err := id.ParseCardID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	card, err := h.service.GetCard(ctx, cardID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !card.Active {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "card is deactivated"))
		return
	}

	payload, err := h.signer.Sign(qr.KindCard, cardID.String(), requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "mint card payload failed",
			"request_id", requestID,
			"card_id", cardID.String(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "mint payload"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MintQRResponse{Payload: payload})
}
