package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/auth"
	"tradepost/internal/config"
	"tradepost/internal/negotiation"
	"tradepost/internal/store/memstore"
)

func devServer(t *testing.T) *echo.Echo {
	t.Helper()
	auth.Init("test-secret", time.Hour)

	cfg := &config.Config{
		StoreDriver:         "memory",
		JWTSecret:           "test-secret",
		RedisAddr:           "127.0.0.1:1", // unreachable, limiter fails open
		BuyerCommissionPct:  5.90,
		SellerCommissionPct: 9.90,
		PollInterval:        7 * time.Second,
		VerifyCodeLimit:     10,
		VerifyCodeWindow:    time.Minute,
	}

	ms := memstore.New()
	seedDevData(ms)
	return newServer(cfg, ms, negotiation.NopNotifier{})
}

func doJSON(t *testing.T, e *echo.Echo, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "body: %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

// The in-memory driver never opens the Postgres pool, so every route
// that would read it must not be mounted at all.
func TestMemoryModeMountsOnlyProtocolRoutes(t *testing.T) {
	e := devServer(t)
	buyerTok, err := auth.TokenFor(devBuyerID)
	require.NoError(t, err)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/signup"},
		{http.MethodPost, "/login"},
		{http.MethodGet, "/listings"},
		{http.MethodGet, "/me"},
		{http.MethodPost, "/payments/callback"},
		{http.MethodGet, "/c2c/intents/some-id/messages"},
		{http.MethodGet, "/notifications"},
		{http.MethodPost, "/c2c/orders/some-id/review"},
	} {
		rec := doJSON(t, e, tc.method, tc.path, buyerTok, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := doJSON(t, e, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// A full negotiation driven over HTTP against the seeded store: intent,
// counter-offer, acceptance, order creation and the instant payment.
func TestMemoryModeNegotiationEndToEnd(t *testing.T) {
	e := devServer(t)
	buyerTok, err := auth.TokenFor(devBuyerID)
	require.NoError(t, err)
	sellerTok, err := auth.TokenFor(devSellerID)
	require.NoError(t, err)

	rec := doJSON(t, e, http.MethodPost, "/c2c/products/"+devListingID+"/intent", buyerTok, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var intent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, rec, &intent)
	assert.Equal(t, "pending", intent.Status)

	rec = doJSON(t, e, http.MethodPost, "/c2c/intents/"+intent.ID+"/offers", sellerTok,
		echo.Map{"proposed_price": 1200, "message": "deal at 1200?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var offer struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &offer)

	rec = doJSON(t, e, http.MethodPost, "/c2c/offers/"+offer.ID+"/accept", buyerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, e, http.MethodPost, "/c2c/intents/"+intent.ID+"/accept-final-price", buyerTok,
		echo.Map{"final_price": 1200})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ord struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, rec, &ord)
	assert.Equal(t, "pending_payment", ord.Status)

	rec = doJSON(t, e, http.MethodPost, "/c2c/orders/"+ord.ID+"/payment/init", buyerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pay struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pay))
	assert.Equal(t, "settled", pay.Status)

	rec = doJSON(t, e, http.MethodGet, "/c2c/purchase-intent?intent_id="+intent.ID, buyerTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snap struct {
		OrderStatus *string `json:"order_status"`
	}
	decodeData(t, rec, &snap)
	require.NotNil(t, snap.OrderStatus)
	assert.Equal(t, "paid", *snap.OrderStatus)

	// Paying again is rejected, the order already left pending_payment.
	rec = doJSON(t, e, http.MethodPost, "/c2c/orders/"+ord.ID+"/payment/init", buyerTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
