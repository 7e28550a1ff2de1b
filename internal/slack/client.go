package slack

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
)

const defaultBaseURL = "https://slack.com/api"

// Response types accepted by slash command response URLs.
const (
	ResponseEphemeral = "ephemeral"
	ResponseInChannel = "in_channel"
)

// ResponseMessage is the payload posted back to a slash command response URL.
type ResponseMessage struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// ProfileField is one custom field value on a user profile.
type ProfileField struct {
	Value string `json:"value"`
	Alt   string `json:"alt"`
}

// FieldMap tolerates the platform returning an empty array instead of an
// object when a profile has no custom fields set.
type FieldMap map[string]ProfileField

func (m *FieldMap) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}
	var plain map[string]ProfileField
	if err := json.Unmarshal(trimmed, &plain); err != nil {
		return err
	}
	*m = plain
	return nil
}

// Profile is the subset of a user profile the bot reads.
type Profile struct {
	RealName    string   `json:"real_name"`
	DisplayName string   `json:"display_name"`
	Fields      FieldMap `json:"fields"`
}

// Name returns the display name, falling back to the real name.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.RealName
}

// FieldDef describes one custom profile field configured for the workspace.
type FieldDef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

// Team identifies the workspace.
type Team struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// APIError is a platform-level failure: HTTP 200 with ok=false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack: %s failed: %s", e.Method, e.Code)
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

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Client is a focused Web API client covering the calls the bot makes.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client authenticating with the given bot token.
func NewClient(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("slack: bot token must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PostMessage posts text to a channel. Passing a user id as the channel
// delivers a direct message.
func (c *Client) PostMessage(ctx context.Context, channel, text string) error {
	payload := struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}{Channel: channel, Text: text}

	raw, err := c.post(ctx, "chat.postMessage", payload)
	if err != nil {
		return fmt.Errorf("slack: chat.postMessage: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("slack: decode chat.postMessage: %w", err)
	}
	if !resp.OK {
		return &APIError{Method: "chat.postMessage", Code: resp.Error}
	}
	return nil
}

// UserProfile fetches a user's profile including custom field values.
func (c *Client) UserProfile(ctx context.Context, userID string) (Profile, error) {
	raw, err := c.get(ctx, "users.profile.get", url.Values{"user": {userID}})
	if err != nil {
		return Profile{}, fmt.Errorf("slack: users.profile.get: %w", err)
	}

	var resp struct {
		apiResponse
		Profile Profile `json:"profile"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Profile{}, fmt.Errorf("slack: decode users.profile.get: %w", err)
	}
	if !resp.OK {
		return Profile{}, &APIError{Method: "users.profile.get", Code: resp.Error}
	}
	return resp.Profile, nil
}

// TeamProfile fetches the workspace's custom profile field definitions.
func (c *Client) TeamProfile(ctx context.Context) ([]FieldDef, error) {
	raw, err := c.get(ctx, "team.profile.get", nil)
	if err != nil {
		return nil, fmt.Errorf("slack: team.profile.get: %w", err)
	}

	var resp struct {
		apiResponse
		Profile struct {
			Fields []FieldDef `json:"fields"`
		} `json:"profile"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("slack: decode team.profile.get: %w", err)
	}
	if !resp.OK {
		return nil, &APIError{Method: "team.profile.get", Code: resp.Error}
	}
	return resp.Profile.Fields, nil
}

// SetProfileField writes a single custom field value on a user's profile.
func (c *Client) SetProfileField(ctx context.Context, userID, fieldID, value string) error {
	payload := struct {
		User    string `json:"user"`
		Profile struct {
			Fields map[string]ProfileField `json:"fields"`
		} `json:"profile"`
	}{User: userID}
	payload.Profile.Fields = map[string]ProfileField{
		fieldID: {Value: value, Alt: ""},
	}

	raw, err := c.post(ctx, "users.profile.set", payload)
	if err != nil {
		return fmt.Errorf("slack: users.profile.set: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("slack: decode users.profile.set: %w", err)
	}
	if !resp.OK {
		return &APIError{Method: "users.profile.set", Code: resp.Error}
	}
	return nil
}

// TeamInfo fetches the workspace identity, including its domain.
func (c *Client) TeamInfo(ctx context.Context) (Team, error) {
	raw, err := c.get(ctx, "team.info", nil)
	if err != nil {
		return Team{}, fmt.Errorf("slack: team.info: %w", err)
	}

	var resp struct {
		apiResponse
		Team Team `json:"team"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Team{}, fmt.Errorf("slack: decode team.info: %w", err)
	}
	if !resp.OK {
		return Team{}, &APIError{Method: "team.info", Code: resp.Error}
	}
	return resp.Team, nil
}

// PostResponse delivers a message to a slash command response URL. Response
// URLs carry their own authorization, so no token header is sent.
func (c *Client) PostResponse(ctx context.Context, responseURL string, msg ResponseMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal response message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create response request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req, responseURL); err != nil {
		return fmt.Errorf("slack: post response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, method string, query url.Values) ([]byte, error) {
	u := c.baseURL + "/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, u)
}

func (c *Client) post(ctx context.Context, method string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	u := c.baseURL + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, u)
}

func (c *Client) do(req *http.Request, requestURL string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        requestURL,
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
	return &http.Client{Timeout: 10 * time.Second}
}
