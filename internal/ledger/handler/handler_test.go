package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	cardstore "loyaltycore/internal/card/store"
	"loyaltycore/internal/idempotency"
	"loyaltycore/internal/ledger/service"
	ledgerstore "loyaltycore/internal/ledger/store"
	"loyaltycore/internal/notify"
	"loyaltycore/internal/platform/logger"
	"loyaltycore/internal/qr"
	id "loyaltycore/pkg/domain"
	"loyaltycore/pkg/testutil"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, notify.Event) error { return nil }

type LedgerHandlerSuite struct {
	suite.Suite
	router http.Handler
	signer *qr.Signer
	cardID id.CardID
}

func TestLedgerHandlerSuite(t *testing.T) {
	suite.Run(t, new(LedgerHandlerSuite))
}

func (s *LedgerHandlerSuite) SetupTest() {
	cards := cardstore.NewMemory()
	card, _, err := cards.CreateIfAbsent(context.Background(), id.NewEnrollmentID(), time.Now())
	s.Require().NoError(err)
	s.cardID = card.ID

	svc := service.New(ledgerstore.NewMemory(cards), nopPublisher{}, nil)

	s.signer = qr.NewSigner("test-key", "ledger", qr.DefaultMaxAge)
	validator := qr.NewValidator("test-key", "ledger", qr.DefaultMaxAge, idempotency.NewMemoryGuard())

	r := chi.NewRouter()
	New(svc, validator, logger.New()).Register(r)
	s.router = r
}

func (s *LedgerHandlerSuite) TestApply() {
	s.Run("applies a delta and returns the new balance", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", map[string]any{
			"cardId":         s.cardID.String(),
			"delta":          25,
			"source":         "scan",
			"idempotencyKey": "apply-1",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Require().Equal(http.StatusOK, rr.Code)

		var resp ApplyResponse
		testutil.DecodeJSON(s.T(), rr, &resp)
		s.Equal(int64(25), resp.NewBalance)
		s.NotEmpty(resp.TransactionID)
		s.False(resp.Replayed)
	})

	s.Run("replaying the same key returns the original result", func() {
		body := map[string]any{
			"cardId":         s.cardID.String(),
			"delta":          25,
			"source":         "scan",
			"idempotencyKey": "apply-2",
		}
		first := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", body))
		s.Require().Equal(http.StatusOK, first.Code)
		var firstResp ApplyResponse
		testutil.DecodeJSON(s.T(), first, &firstResp)

		second := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", body))
		s.Require().Equal(http.StatusOK, second.Code)
		var secondResp ApplyResponse
		testutil.DecodeJSON(s.T(), second, &secondResp)

		s.True(secondResp.Replayed)
		s.Equal(firstResp.TransactionID, secondResp.TransactionID)
		s.Equal(firstResp.NewBalance, secondResp.NewBalance)
	})

	s.Run("redeem beyond balance returns 422", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", map[string]any{
			"cardId":         s.cardID.String(),
			"delta":          -1000,
			"source":         "redeem",
			"idempotencyKey": "redeem-over",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusUnprocessableEntity, rr.Code)
	})

	s.Run("unknown card returns 404", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", map[string]any{
			"cardId":         id.NewCardID().String(),
			"delta":          5,
			"source":         "scan",
			"idempotencyKey": "ghost",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusNotFound, rr.Code)
	})

	s.Run("zero delta is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", map[string]any{
			"cardId":         s.cardID.String(),
			"delta":          0,
			"source":         "scan",
			"idempotencyKey": "zero",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("missing idempotency key is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", map[string]any{
			"cardId": s.cardID.String(),
			"delta":  5,
			"source": "scan",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *LedgerHandlerSuite) TestScan() {
	s.Run("valid payload applies the delta", func() {
		payload, err := s.signer.Sign(qr.KindCard, s.cardID.String(), time.Now())
		s.Require().NoError(err)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/scan", map[string]any{
			"payload":        payload,
			"delta":          10,
			"source":         "pos-1",
			"idempotencyKey": "scan-1",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Require().Equal(http.StatusOK, rr.Code)

		var resp ApplyResponse
		testutil.DecodeJSON(s.T(), rr, &resp)
		s.Equal(int64(10), resp.NewBalance)
	})

	s.Run("replayed payload is rejected with 403", func() {
		payload, err := s.signer.Sign(qr.KindCard, s.cardID.String(), time.Now())
		s.Require().NoError(err)

		body := map[string]any{
			"payload":        payload,
			"delta":          10,
			"source":         "pos-1",
			"idempotencyKey": "scan-2",
		}
		first := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/scan", body))
		s.Require().Equal(http.StatusOK, first.Code)

		body["idempotencyKey"] = "scan-3"
		second := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/scan", body))
		s.Equal(http.StatusForbidden, second.Code)
	})

	s.Run("customer payload is rejected on the scan path", func() {
		payload, err := s.signer.Sign(qr.KindCustomer, id.NewCustomerID().String(), time.Now())
		s.Require().NoError(err)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/scan", map[string]any{
			"payload":        payload,
			"delta":          10,
			"source":         "pos-1",
			"idempotencyKey": "scan-4",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("tampered payload is rejected", func() {
		payload, err := s.signer.Sign(qr.KindCard, s.cardID.String(), time.Now())
		s.Require().NoError(err)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/scan", map[string]any{
			"payload":        payload + "x",
			"delta":          10,
			"source":         "pos-1",
			"idempotencyKey": "scan-5",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusForbidden, rr.Code)
	})
}

func (s *LedgerHandlerSuite) TestListTransactions() {
	for i := 0; i < 3; i++ {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/transactions", map[string]any{
			"cardId":         s.cardID.String(),
			"delta":          (i + 1) * 10,
			"source":         "scan",
			"idempotencyKey": "hist-" + string(rune('a'+i)),
		})
		rr := testutil.DoRequest(s.router, req)
		s.Require().Equal(http.StatusOK, rr.Code)
	}

	s.Run("lists transactions in application order", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/cards/"+s.cardID.String()+"/transactions")
		rr := testutil.DoRequest(s.router, req)
		s.Require().Equal(http.StatusOK, rr.Code)

		var resp TransactionListResponse
		testutil.DecodeJSON(s.T(), rr, &resp)
		s.Require().Len(resp.Transactions, 3)
		s.Equal(int64(10), resp.Transactions[0].Delta)
		s.Equal(int64(30), resp.Transactions[2].Delta)
	})

	s.Run("rejects an out-of-range limit", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/cards/"+s.cardID.String()+"/transactions?limit=0")
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("rejects a malformed card id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/cards/not-a-uuid/transactions")
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}
