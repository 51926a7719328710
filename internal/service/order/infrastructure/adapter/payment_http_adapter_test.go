package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/order/domain/port"
)

func newPaymentServer(t *testing.T) (*httptest.Server, *http.Header) {
	t.Helper()
	var lastHeaders http.Header
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		var card port.Card
		require.NoError(t, json.NewDecoder(r.Body).Decode(&card))
		if card.Number == "4000000000000002" {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":"card_declined"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok_" + card.Number[len(card.Number)-4:]})
	})
	mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		lastHeaders = r.Header.Clone()
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ch_1", "status": "succeeded", "amount": req["amount"]})
	})
	mux.HandleFunc("/v1/refunds", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["charge"] == "ch_broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "re_1", "status": "succeeded"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastHeaders
}

func TestPaymentHTTPAdapter_ChargeFlow(t *testing.T) {
	srv, headers := newPaymentServer(t)
	a := NewPaymentHTTPAdapter(httpclient.NewClient(otel.Tracer("test")), srv.URL+"/", "sk_test")
	ctx := context.Background()

	token, err := a.Tokenize(ctx, port.Card{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123"})
	require.NoError(t, err)
	assert.Equal(t, "tok_4242", token)

	res, err := a.Charge(ctx, token, decimal.RequireFromString("21.5"), "cust-1")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "ch_1", res.TransactionID)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("21.50")))
	assert.Equal(t, "charge-tok_4242", headers.Get("Idempotency-Key"))
	assert.Equal(t, "Bearer sk_test", headers.Get("Authorization"))

	refund, err := a.Refund(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.True(t, refund.Succeeded())
	assert.Equal(t, "re_1", refund.RefundID)
}

func TestPaymentHTTPAdapter_Errors(t *testing.T) {
	srv, _ := newPaymentServer(t)
	a := NewPaymentHTTPAdapter(httpclient.NewClient(otel.Tracer("test")), srv.URL, "")
	ctx := context.Background()

	_, err := a.Tokenize(ctx, port.Card{Number: "4000000000000002"})
	assert.ErrorContains(t, err, "card rejected")

	_, err = a.Refund(ctx, "ch_broken")
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}
