package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"petcare/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStripeClient(t *testing.T, serverURL string) *StripeClient {
	t.Helper()
	base := newTestClient(t, fastPolicy(0))
	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   serverURL + "/",
	})
}

func TestGetSubscription_ItemPeriodEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_123", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "sub_123",
			"status": "trialing",
			"current_period_end": 1700000000,
			"items": {"data": [{"current_period_end": 1800000000}]}
		}`))
	}))
	defer server.Close()

	sub, err := newTestStripeClient(t, server.URL).GetSubscription(context.Background(), "sub_123")
	require.NoError(t, err)
	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, types.ProviderStatusTrialing, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1800000000, 0).UTC(), *sub.CurrentPeriodEnd)
}

func TestGetSubscription_TopLevelPeriodEndFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sub_9","status":"canceled","current_period_end":1700000000,"items":{"data":[]}}`))
	}))
	defer server.Close()

	sub, err := newTestStripeClient(t, server.URL).GetSubscription(context.Background(), "sub_9")
	require.NoError(t, err)
	assert.True(t, sub.Status.IsCanceled())
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, int64(1700000000), sub.CurrentPeriodEnd.Unix())
}

func TestGetSubscription_NoPeriodEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sub_1","status":"active"}`))
	}))
	defer server.Close()

	sub, err := newTestStripeClient(t, server.URL).GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Nil(t, sub.CurrentPeriodEnd)
}

func TestGetSubscription_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"not found", http.StatusNotFound, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`, "not found"},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, "Stripe error (400)"},
		{"non json", http.StatusUnauthorized, `nope`, "Stripe error (401)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestStripeClient(t, server.URL).GetSubscription(context.Background(), "sub_x")
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
			assert.Contains(t, appErr.Message, tt.wantMsg)
			assert.Equal(t, tt.status, appErr.Details["status"])
		})
	}
}

func TestGetSubscription_DecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	_, err := newTestStripeClient(t, server.URL).GetSubscription(context.Background(), "sub_x")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
}

func TestGetSubscription_EmptyID(t *testing.T) {
	client := NewStripeClient(StripeClientConfig{SecretKey: "sk"})
	_, err := client.GetSubscription(context.Background(), "")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestGetSubscription_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestStripeClient(t, url).GetSubscription(context.Background(), "sub_x")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}
