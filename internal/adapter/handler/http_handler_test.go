package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tantovale/marketplace/internal/core/domain"
	"github.com/tantovale/marketplace/internal/core/service"
	"github.com/tantovale/marketplace/internal/port"
	"github.com/tantovale/marketplace/internal/port/porttest"
)

const (
	testSecret = "test-secret-0123456789"
	testCookie = "tantovale_session"
)

type testServer struct {
	handler http.Handler
	store   *porttest.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := porttest.NewStore()
	return &testServer{
		handler: newTestHandler(t, store),
		store:   store,
	}
}

func newTestHandler(t *testing.T, db port.DatabaseRepository) http.Handler {
	t.Helper()
	svc := service.NewOrderService(db, porttest.NewCache(), 100, zap.NewNop())
	go func() {
		for range svc.Events() {
		}
	}()
	t.Cleanup(svc.Close)

	h := NewHTTPHandler(svc, zap.NewNop())
	return h.Routes(SessionAuth([]byte(testSecret), testCookie, zap.NewNop()))
}

func signToken(t *testing.T, subject string, secret string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.AddCookie(&http.Cookie{Name: testCookie, Value: signToken(t, user, testSecret, time.Hour)})
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func seed(s *testServer, phase domain.Phase) {
	s.store.PutOrder(domain.Order{
		ID: "order-1", ItemID: "item-1", BuyerID: "buyer", SellerID: "seller",
		AmountCents: 1000, Currency: "EUR", Phase: phase,
	})
}

func TestHealthCheck_NoAuth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuth_MissingCookie(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_BadTokens(t *testing.T) {
	s := newTestServer(t)

	tokens := map[string]string{
		"wrong secret": signToken(t, "buyer", "another-secret-987654321", time.Hour),
		"expired":      signToken(t, "buyer", testSecret, -time.Hour),
		"no subject":   signToken(t, "", testSecret, time.Hour),
		"garbage":      "not-a-jwt",
	}
	for name, tok := range tokens {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			req.AddCookie(&http.Cookie{Name: testCookie, Value: tok})
			rr := httptest.NewRecorder()
			s.handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/orders", "buyer", CreateOrderHTTPRequest{
		ItemID: "item-9", SellerID: "seller", AmountCents: 4200,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp OrderHTTPResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "payment_pending", resp.Phase)
	assert.Equal(t, "buyer", resp.BuyerID)
	assert.ElementsMatch(t, []string{"payment_confirmed", "payment_failed"}, resp.NextPhases)
}

func TestCreateOrder_Validation(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/orders", "buyer", CreateOrderHTTPRequest{ItemID: "item-9", SellerID: "buyer", AmountCents: 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/orders", "buyer", map[string]any{"unexpected": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/orders", "buyer", CreateOrderHTTPRequest{
		ItemID: "item-9", SellerID: "seller", AmountCents: 1, Currency: "EUROS",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/api/orders", "buyer", CreateOrderHTTPRequest{
		ItemID: strings.Repeat("i", 200), SellerID: "seller", AmountCents: 1,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/api/proposals", "buyer", CreateProposalHTTPRequest{
		ItemID: "item-9", SellerID: "seller", PriceCents: 1, Currency: "E1R",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}

// corruptStore returns rows whose stored phase the domain does not know.
type corruptStore struct {
	*porttest.Store
}

func (c corruptStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	return nil, fmt.Errorf("%w: order %s: phase %q", port.ErrCorruptRow, id, "legacy_phase")
}

func TestGetOrder_CorruptRow(t *testing.T) {
	h := newTestHandler(t, corruptStore{porttest.NewStore()})

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/orders/order-1", nil},
		{http.MethodPost, "/api/orders/order-1/transition", TransitionHTTPRequest{RequestID: "req-1", Phase: "payment_confirmed"}},
	} {
		s := &testServer{handler: h}
		rr := s.do(t, tc.method, tc.path, "buyer", tc.body)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, tc.path)
		assert.NotContains(t, rr.Body.String(), "legacy_phase")
	}
}

func TestTransitionOrder(t *testing.T) {
	tests := []struct {
		name   string
		from   domain.Phase
		user   string
		phase  string
		status int
	}{
		{"confirm payment", domain.PhasePaymentPending, "buyer", "payment_confirmed", http.StatusOK},
		{"skip confirmation", domain.PhasePaymentPending, "buyer", "shipping_pending", http.StatusConflict},
		{"terminal phase", domain.PhaseCompleted, "seller", "cancelled", http.StatusConflict},
		{"complaint", domain.PhaseShippingDelivered, "buyer", "complained", http.StatusOK},
		{"unknown phase", domain.PhasePaymentPending, "buyer", "bogus_phase", http.StatusBadRequest},
		{"stranger", domain.PhasePaymentPending, "stranger", "payment_failed", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			seed(s, tt.from)

			rr := s.do(t, http.MethodPost, "/api/orders/order-1/transition", tt.user, TransitionHTTPRequest{
				RequestID: "req-" + tt.name, Phase: tt.phase,
			})
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestTransitionOrder_Duplicate(t *testing.T) {
	s := newTestServer(t)
	seed(s, domain.PhasePaymentPending)

	body := TransitionHTTPRequest{RequestID: "req-1", Phase: "payment_failed"}
	rr := s.do(t, http.MethodPost, "/api/orders/order-1/transition", "buyer", body)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/orders/order-1/transition", "buyer", body)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/api/orders/missing", "buyer", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateAmount_Locked(t *testing.T) {
	s := newTestServer(t)
	seed(s, domain.PhaseShippingPending)

	rr := s.do(t, http.MethodPut, "/api/orders/order-1/amount", "seller", AmountHTTPRequest{AmountCents: 500})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestProposalFlow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/proposals", "buyer", CreateProposalHTTPRequest{
		ItemID: "item-1", SellerID: "seller", PriceCents: 1800, Message: "18?",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created ProposalHTTPResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, "pending", created.Status)

	path := "/api/proposals/" + created.ID + "/decision"

	rr = s.do(t, http.MethodPost, path, "buyer", DecisionHTTPRequest{Status: "accepted"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, path, "seller", DecisionHTTPRequest{Status: "accepted"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var decided DecisionHTTPResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&decided))
	assert.Equal(t, "accepted", decided.Proposal.Status)
	require.NotNil(t, decided.Order)
	assert.Equal(t, int64(1800), decided.Order.AmountCents)
	assert.Equal(t, "payment_pending", decided.Order.Phase)

	rr = s.do(t, http.MethodPost, path, "seller", DecisionHTTPRequest{Status: "rejected"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/orders/"+decided.Order.ID, "buyer", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
