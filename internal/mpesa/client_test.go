package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPassword(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)
	password, timestamp := Password("174379", "passkey", at)

	require.Equal(t, "20260828143000", timestamp)
	decoded, err := base64.StdEncoding.DecodeString(password)
	require.NoError(t, err)
	require.Equal(t, "174379passkey20260828143000", string(decoded))
}

func newDarajaStub(t *testing.T, tokenCalls *int32, pushHandler http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok-123",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", pushHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server, t *testing.T) *Client {
	client := NewClient(Config{
		BaseURL:        server.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/api/v1/payments/callback",
	}, NewMemoryCache(), zaptest.NewLogger(t))
	client.now = func() time.Time {
		return time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)
	}
	return client
}

func TestAccessTokenIsCached(t *testing.T) {
	var tokenCalls int32
	server := newDarajaStub(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected stk push call")
	})
	client := newTestClient(server, t)

	for i := 0; i < 3; i++ {
		token, err := client.AccessToken(context.Background())
		require.NoError(t, err)
		require.Equal(t, "tok-123", token)
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestSTKPushSuccess(t *testing.T) {
	var tokenCalls int32
	var captured stkPushRequest
	server := newDarajaStub(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CheckoutRequestID":   "ws_CO_270820261430001",
		})
	})
	client := newTestClient(server, t)

	checkoutID, err := client.STKPush(context.Background(), "254712345678", 50, "abc123def456")
	require.NoError(t, err)
	require.Equal(t, "ws_CO_270820261430001", checkoutID)

	require.Equal(t, "174379", captured.BusinessShortCode)
	require.Equal(t, "20260828143000", captured.Timestamp)
	require.Equal(t, int64(50), captured.Amount)
	require.Equal(t, "254712345678", captured.PhoneNumber)
	require.Equal(t, "254712345678", captured.PartyA)
	require.Equal(t, "174379", captured.PartyB)
	require.Equal(t, "CustomerPayBillOnline", captured.TransactionType)
	require.Equal(t, "abc123def456", captured.AccountReference)
	require.Equal(t, "https://example.com/api/v1/payments/callback", captured.CallBackURL)

	wantPassword, _ := Password("174379", "passkey", time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC))
	require.Equal(t, wantPassword, captured.Password)
}

func TestSTKPushRejected(t *testing.T) {
	var tokenCalls int32
	server := newDarajaStub(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"errorMessage": "Invalid PhoneNumber",
		})
	})
	client := newTestClient(server, t)

	_, err := client.STKPush(context.Background(), "123", 50, "ref")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid PhoneNumber")
}

func TestSTKPushNonZeroResponseCode(t *testing.T) {
	var tokenCalls int32
	server := newDarajaStub(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "1",
			"ResponseDescription": "Merchant does not exist",
		})
	})
	client := newTestClient(server, t)

	_, err := client.STKPush(context.Background(), "254712345678", 50, "ref")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Merchant does not exist")
}
