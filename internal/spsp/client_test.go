package spsp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tippay/tip_bot/internal/credentials"
)

func testCreds(endpoint string) credentials.Credentials {
	return credentials.Credentials{
		Endpoint:   endpoint,
		Identifier: "alice",
		Secret:     "hunter2",
	}
}

func newTestClient() *Client {
	return NewClient(WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
}

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

func TestAccount_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/alice", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "alice", user)
		require.Equal(t, "hunter2", pass)

		_, _ = w.Write([]byte(`{
			"username": "alice",
			"balance": "12.50",
			"currencyCode": "USD",
			"currencySymbol": "$"
		}`))
	}))
	defer srv.Close()

	c := newTestClient()
	account, err := c.Account(context.Background(), testCreds(srv.URL))
	require.NoError(t, err)
	require.Equal(t, "alice", account.Username)
	require.True(t, account.Balance.Equal(decimal.RequireFromString("12.50")))
	require.Equal(t, "USD", account.CurrencyCode)
}

func TestAccount_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"id":"UnauthorizedError"}`))
	}))
	defer srv.Close()

	c := newTestClient()
	_, err := c.Account(context.Background(), testCreds(srv.URL))
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

// ---------------------------------------------------------------------------
// Quote
// ---------------------------------------------------------------------------

func TestQuote_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/quote", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Destination       string          `json:"destination"`
			DestinationAmount decimal.Decimal `json:"destinationAmount"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "bob@wallet.example", body.Destination)
		require.True(t, body.DestinationAmount.Equal(decimal.RequireFromString("5")))

		_, _ = w.Write([]byte(`{
			"sourceAmount": "5.25",
			"destinationAmount": "5",
			"destinationAccount": "https://wallet.example/ledger/accounts/bob"
		}`))
	}))
	defer srv.Close()

	c := newTestClient()
	quote, err := c.Quote(context.Background(), testCreds(srv.URL), "bob@wallet.example", decimal.NewFromInt(5))
	require.NoError(t, err)
	require.True(t, quote.SourceAmount.Equal(decimal.RequireFromString("5.25")))
	require.True(t, quote.DestinationAmount.Equal(decimal.NewFromInt(5)))
}

func TestQuote_RejectsNonPositiveAmount(t *testing.T) {
	c := NewClient()
	_, err := c.Quote(context.Background(), testCreds("https://wallet.example/api"), "bob@wallet.example", decimal.Zero)
	require.Error(t, err)
	require.Contains(t, err.Error(), "positive")
}

func TestQuote_RejectsEmptyDestination(t *testing.T) {
	c := NewClient()
	_, err := c.Quote(context.Background(), testCreds("https://wallet.example/api"), "  ", decimal.NewFromInt(5))
	require.Error(t, err)
	require.Contains(t, err.Error(), "destination")
}

// ---------------------------------------------------------------------------
// ParseDestination
// ---------------------------------------------------------------------------

func TestParseDestination_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/parse/destination", r.URL.Path)
		require.Equal(t, "bob@wallet.example", r.URL.Query().Get("destination"))

		_, _ = w.Write([]byte(`{
			"ilpAddress": "us.wallet.bob",
			"name": "Bob",
			"currencyCode": "USD",
			"currencySymbol": "$"
		}`))
	}))
	defer srv.Close()

	c := newTestClient()
	dest, err := c.ParseDestination(context.Background(), testCreds(srv.URL), "bob@wallet.example")
	require.NoError(t, err)
	require.Equal(t, "us.wallet.bob", dest.ILPAddress)
	require.Equal(t, "bob@wallet.example", dest.Address)
}

// ---------------------------------------------------------------------------
// Pay
// ---------------------------------------------------------------------------

func TestPay_SendsQuoteAmounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/payments/5b8e6286-0c14-4b0a-8a5c-0a3a1f1fd8c6", r.URL.Path)

		var body struct {
			Destination       string          `json:"destination"`
			DestinationAmount decimal.Decimal `json:"destinationAmount"`
			SourceAmount      decimal.Decimal `json:"sourceAmount"`
			Message           string          `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "bob@wallet.example", body.Destination)
		require.True(t, body.SourceAmount.Equal(decimal.RequireFromString("5.25")))
		require.Equal(t, "thanks!", body.Message)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	quote := Quote{
		SourceAmount:      decimal.RequireFromString("5.25"),
		DestinationAmount: decimal.NewFromInt(5),
	}
	dest := Destination{Address: "bob@wallet.example", ILPAddress: "us.wallet.bob"}

	c := newTestClient()
	err := c.Pay(context.Background(), testCreds(srv.URL), "5b8e6286-0c14-4b0a-8a5c-0a3a1f1fd8c6", quote, dest, "thanks!")
	require.NoError(t, err)
}

func TestPay_RequiresPaymentID(t *testing.T) {
	c := NewClient()
	err := c.Pay(context.Background(), testCreds("https://wallet.example/api"), " ", Quote{}, Destination{}, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "payment id")
}

func TestPay_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"id":"NoPathsError","message":"no paths found"}`))
	}))
	defer srv.Close()

	c := newTestClient()
	err := c.Pay(context.Background(), testCreds(srv.URL), "abc", Quote{}, Destination{Address: "bob@wallet.example"}, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
	require.Contains(t, err.Error(), "NoPathsError")
}

// ---------------------------------------------------------------------------
// Provision
// ---------------------------------------------------------------------------

func TestProvision_HappyPath(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/users/carol", r.URL.Path)

		var body struct {
			Password   string `json:"password"`
			InviteCode string `json:"inviteCode"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "generated-pass", body.Password)
		require.Equal(t, "invite-123", body.InviteCode)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"username":"carol"}`))
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	c := NewClient(WithHTTPClient(srv.Client()))

	creds, err := c.Provision(context.Background(), host, "carol", "generated-pass", "invite-123")
	require.NoError(t, err)
	require.Equal(t, "https://"+host+"/api", creds.Endpoint)
	require.Equal(t, "carol", creds.Identifier)
	require.Equal(t, "generated-pass", creds.Secret)
}

func TestProvision_FailureReturnsNothing(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"id":"InvalidBodyError","message":"invalid invite code"}`))
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	c := NewClient(WithHTTPClient(srv.Client()))

	creds, err := c.Provision(context.Background(), host, "carol", "generated-pass", "bad-code")
	require.Error(t, err)
	require.Empty(t, creds.Endpoint)
	require.Contains(t, err.Error(), "403")
}
