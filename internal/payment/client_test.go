package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStripeClient_CreateCheckoutSession_SendsFormEncodedRequest(t *testing.T) {
	var form url.Values
	var auth, contentType, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		path = r.URL.Path
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cs_test_1","url":"https://checkout.example/cs_test_1","payment_status":"unpaid","amount_total":700}`)
	}))
	defer server.Close()

	client := NewStripeClient(ClientConfig{SecretKey: "sk_test", APIBase: server.URL}, discardLogger())

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		AmountCents: 700,
		Currency:    "usd",
		ProductName: "Library Fees - Go",
		SuccessURL:  "http://localhost:5173/ok",
		CancelURL:   "http://localhost:5173/ng",
		Metadata:    map[string]string{"transactionId": "loan-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.example/cs_test_1", session.URL)
	assert.False(t, session.IsPaid())

	assert.Equal(t, "Bearer sk_test", auth)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "/v1/checkout/sessions", path)
	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "700", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "Library Fees - Go", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "loan-1", form.Get("metadata[transactionId]"))
}

func TestStripeClient_RetrieveCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_2", r.URL.Path)
		io.WriteString(w, `{"id":"cs_test_2","payment_status":"paid","metadata":{"transactionId":"loan-2"}}`)
	}))
	defer server.Close()

	client := NewStripeClient(ClientConfig{SecretKey: "sk_test", APIBase: server.URL}, discardLogger())

	session, err := client.RetrieveCheckoutSession(context.Background(), "cs_test_2")
	require.NoError(t, err)
	assert.True(t, session.IsPaid())
	assert.Equal(t, "loan-2", session.Metadata["transactionId"])
}

func TestStripeClient_ErrorStatus_ReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"No such checkout session"}}`)
	}))
	defer server.Close()

	client := NewStripeClient(ClientConfig{SecretKey: "sk_test", APIBase: server.URL}, discardLogger())

	_, err := client.RetrieveCheckoutSession(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "No such checkout session", apiErr.Message)
}

func TestStripeClient_ClientErrorsDoNotOpenCircuit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewStripeClient(ClientConfig{SecretKey: "sk_test", APIBase: server.URL}, discardLogger())

	for i := 0; i < 10; i++ {
		_, err := client.RetrieveCheckoutSession(context.Background(), "missing")
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}
	assert.Equal(t, int32(10), hits.Load())
}

func TestStripeClient_ServerErrorsOpenCircuit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewStripeClient(ClientConfig{SecretKey: "sk_test", APIBase: server.URL}, discardLogger())

	// 5回連続の失敗でサーキットが開く
	for i := 0; i < 5; i++ {
		_, err := client.RetrieveCheckoutSession(context.Background(), "cs")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}

	_, err := client.RetrieveCheckoutSession(context.Background(), "cs")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(5), hits.Load(), "サーキットが開いている間はプロバイダを呼び出さない")
}
