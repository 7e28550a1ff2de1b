package spsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tippay/tip_bot/internal/credentials"
)

// Account is the subset of the hosted account record the bot reads.
type Account struct {
	Username       string          `json:"username"`
	Balance        decimal.Decimal `json:"balance"`
	CurrencyCode   string          `json:"currencyCode"`
	CurrencySymbol string          `json:"currencySymbol"`
}

// Quote prices a destination amount in the sender's source currency.
type Quote struct {
	ID                   string          `json:"id"`
	SourceAmount         decimal.Decimal `json:"sourceAmount"`
	DestinationAmount    decimal.Decimal `json:"destinationAmount"`
	DestinationAccount   string          `json:"destinationAccount"`
	SourceExpiryDuration json.Number     `json:"sourceExpiryDuration"`
}

// Destination describes a resolved payment destination. Address is the
// queried payment address, echoed back by the client rather than the wire.
type Destination struct {
	Address        string `json:"-"`
	ILPAddress     string `json:"ilpAddress"`
	Name           string `json:"name"`
	CurrencyCode   string `json:"currencyCode"`
	CurrencySymbol string `json:"currencySymbol"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to ILP-kit style account hosts. There is no fixed base URL;
// every call authenticates against the endpoint carried by the credentials.
type Client struct {
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account authenticates with the stored credentials and fetches the account
// record including its balance.
func (c *Client) Account(ctx context.Context, creds credentials.Credentials) (Account, error) {
	u := endpointURL(creds) + "/users/" + url.PathEscape(creds.Identifier)

	raw, err := c.get(ctx, creds, u)
	if err != nil {
		return Account{}, fmt.Errorf("spsp: fetch account: %w", err)
	}

	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return Account{}, fmt.Errorf("spsp: decode account: %w", err)
	}
	return account, nil
}

// Quote asks the sender's host to price destinationAmount at the destination
// address.
func (c *Client) Quote(ctx context.Context, creds credentials.Credentials, destination string, destinationAmount decimal.Decimal) (Quote, error) {
	if strings.TrimSpace(destination) == "" {
		return Quote{}, errors.New("spsp: destination must not be empty")
	}
	if !destinationAmount.IsPositive() {
		return Quote{}, fmt.Errorf("spsp: destination amount must be positive, got %s", destinationAmount)
	}

	payload := struct {
		Destination       string          `json:"destination"`
		DestinationAmount decimal.Decimal `json:"destinationAmount"`
	}{Destination: destination, DestinationAmount: destinationAmount}

	u := endpointURL(creds) + "/payments/quote"
	raw, err := c.send(ctx, creds, http.MethodPost, u, payload)
	if err != nil {
		return Quote{}, fmt.Errorf("spsp: quote: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return Quote{}, fmt.Errorf("spsp: decode quote: %w", err)
	}
	return quote, nil
}

// ParseDestination resolves a payment address to its destination details.
func (c *Client) ParseDestination(ctx context.Context, creds credentials.Credentials, destination string) (Destination, error) {
	if strings.TrimSpace(destination) == "" {
		return Destination{}, errors.New("spsp: destination must not be empty")
	}

	u := endpointURL(creds) + "/parse/destination?" + url.Values{"destination": {destination}}.Encode()
	raw, err := c.get(ctx, creds, u)
	if err != nil {
		return Destination{}, fmt.Errorf("spsp: parse destination: %w", err)
	}

	var dest Destination
	if err := json.Unmarshal(raw, &dest); err != nil {
		return Destination{}, fmt.Errorf("spsp: decode destination: %w", err)
	}
	dest.Address = destination
	return dest, nil
}

// Pay executes a quoted payment under a caller-chosen payment id. The host
// treats the id as the payment's identity, so a retry with a fresh id is a
// new payment.
func (c *Client) Pay(ctx context.Context, creds credentials.Credentials, paymentID string, quote Quote, dest Destination, note string) error {
	if strings.TrimSpace(paymentID) == "" {
		return errors.New("spsp: payment id must not be empty")
	}

	payload := struct {
		Destination       string          `json:"destination"`
		DestinationAmount decimal.Decimal `json:"destinationAmount"`
		SourceAmount      decimal.Decimal `json:"sourceAmount"`
		Message           string          `json:"message,omitempty"`
	}{
		Destination:       dest.Address,
		DestinationAmount: quote.DestinationAmount,
		SourceAmount:      quote.SourceAmount,
		Message:           note,
	}

	u := endpointURL(creds) + "/payments/" + url.PathEscape(paymentID)
	if _, err := c.send(ctx, creds, http.MethodPut, u, payload); err != nil {
		return fmt.Errorf("spsp: pay: %w", err)
	}
	return nil
}

// Provision creates a brand-new hosted account via an invite code and returns
// the credentials for it. Nothing is persisted here; storage is the caller's
// decision.
func (c *Client) Provision(ctx context.Context, host, username, password, inviteCode string) (credentials.Credentials, error) {
	if strings.TrimSpace(host) == "" {
		return credentials.Credentials{}, errors.New("spsp: host must not be empty")
	}
	if strings.TrimSpace(username) == "" {
		return credentials.Credentials{}, errors.New("spsp: username must not be empty")
	}

	creds := credentials.Credentials{
		Endpoint:   "https://" + host + "/api",
		Identifier: username,
		Secret:     password,
	}

	payload := struct {
		Password   string `json:"password"`
		InviteCode string `json:"inviteCode,omitempty"`
	}{Password: password, InviteCode: inviteCode}

	u := creds.Endpoint + "/users/" + url.PathEscape(username)
	if _, err := c.send(ctx, creds, http.MethodPost, u, payload); err != nil {
		return credentials.Credentials{}, fmt.Errorf("spsp: provision account: %w", err)
	}
	return creds, nil
}

func endpointURL(creds credentials.Credentials) string {
	return strings.TrimRight(creds.Endpoint, "/")
}

func (c *Client) get(ctx context.Context, creds credentials.Credentials, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(creds.Identifier, creds.Secret)

	return c.do(req, u)
}

func (c *Client) send(ctx context.Context, creds credentials.Credentials, method, u string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(creds.Identifier, creds.Secret)

	return c.do(req, u)
}

func (c *Client) do(req *http.Request, u string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        u,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
