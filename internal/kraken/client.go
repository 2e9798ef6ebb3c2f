// Package kraken is the client for the energy provider's GraphQL API. It
// holds the session token pair in memory only and transparently retries a
// request once after a single-flight token refresh.
package kraken

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"energyforecast/pkg/models"
)

// DefaultEndpoint is the production GraphQL endpoint.
const DefaultEndpoint = "https://api.oejp-kraken.energy/v1/graphql/"

const httpTimeout = 30 * time.Second

// Kraken error codes signalling an expired or invalid token.
const (
	errCodeJWTExpired  = "KT-CT-1139"
	errCodeInvalidAuth = "KT-CT-1143"
)

const loginMutation = `
mutation login($input: ObtainJSONWebTokenInput!) {
  obtainKrakenToken(input: $input) {
    token
    refreshToken
  }
}`

const usageQuery = `
query halfHourlyReadings($accountNumber: String!, $fromDatetime: DateTime, $toDatetime: DateTime) {
  account(accountNumber: $accountNumber) {
    properties {
      electricitySupplyPoints {
        halfHourlyReadings(fromDatetime: $fromDatetime, toDatetime: $toDatetime) {
          consumptionRateBand
          consumptionStep
          costEstimate
          startAt
          value
        }
      }
    }
  }
}`

// Client talks to the provider API on behalf of one account login.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger

	email    string
	password string

	onAuthError func()

	mu           sync.Mutex
	token        string
	refreshToken string
	refreshing   chan struct{} // non-nil while a refresh is in flight
	refreshErr   error
}

// New creates a client for the default endpoint. Credentials are used by
// Login; tokens are never persisted.
func New(email, password string, logger *log.Logger) *Client {
	return NewWithEndpoint(DefaultEndpoint, email, password, logger)
}

// NewWithEndpoint creates a client against a specific endpoint (tests point
// this at a local server).
func NewWithEndpoint(endpoint, email, password string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     logger.With("component", "kraken"),
		email:      email,
		password:   password,
	}
}

// SetAuthErrorHandler registers the callback fired exactly once per failed
// token refresh. The session is invalid afterwards and the caller must force
// a re-login.
func (c *Client) SetAuthErrorHandler(fn func()) {
	c.onAuthError = fn
}

// HasToken reports whether a login has succeeded.
func (c *Client) HasToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Login obtains a fresh token pair with the configured credentials.
func (c *Client) Login(ctx context.Context) error {
	token, refresh, err := c.obtainToken(ctx, map[string]any{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	c.mu.Lock()
	c.token = token
	c.refreshToken = refresh
	c.mu.Unlock()
	c.logger.Debug("login succeeded", "token", maskToken(token))
	return nil
}

// HalfHourlyReadings fetches the readings for [from, to). A 401-class
// response triggers at most one refresh-and-retry; a response missing the
// expected fields is logged and returned as an empty series.
func (c *Client) HalfHourlyReadings(ctx context.Context, accountNumber string, from, to time.Time) ([]models.Reading, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return nil, &AuthError{Message: "not logged in"}
	}

	variables := map[string]any{
		"accountNumber": accountNumber,
		"fromDatetime":  from.UTC().Format(time.RFC3339),
		"toDatetime":    to.UTC().Format(time.RFC3339),
	}

	body, err := c.post(ctx, "halfHourlyReadings", usageQuery, variables, token)
	if isAuthFailure(err) {
		if refreshErr := c.refreshAndWait(ctx, token); refreshErr != nil {
			return nil, refreshErr
		}
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
		body, err = c.post(ctx, "halfHourlyReadings", usageQuery, variables, token)
	}
	if err != nil {
		return nil, err
	}
	return c.parseReadings(body)
}

func (c *Client) parseReadings(body []byte) ([]models.Reading, error) {
	var resp struct {
		Data struct {
			Account *struct {
				Properties []struct {
					ElectricitySupplyPoints []struct {
						HalfHourlyReadings []wireReading `json:"halfHourlyReadings"`
					} `json:"electricitySupplyPoints"`
				} `json:"properties"`
			} `json:"account"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("unparsable usage response, treating as empty",
			"error", &MalformedResponseError{Operation: "halfHourlyReadings", Missing: "data"})
		return nil, nil
	}
	if resp.Data.Account == nil ||
		len(resp.Data.Account.Properties) == 0 ||
		len(resp.Data.Account.Properties[0].ElectricitySupplyPoints) == 0 {
		c.logger.Warn("usage response missing supply points, treating as empty",
			"error", &MalformedResponseError{Operation: "halfHourlyReadings", Missing: "electricitySupplyPoints"})
		return nil, nil
	}

	wire := resp.Data.Account.Properties[0].ElectricitySupplyPoints[0].HalfHourlyReadings
	readings := make([]models.Reading, 0, len(wire))
	for _, r := range wire {
		readings = append(readings, models.Reading{
			StartAt:             r.StartAt,
			Value:               float64(r.Value),
			ConsumptionRateBand: r.ConsumptionRateBand,
			ConsumptionStep:     int(r.ConsumptionStep),
			CostEstimate:        float64(r.CostEstimate),
		})
	}
	return readings, nil
}

// refreshAndWait performs the single refresh for a stale token. Concurrent
// callers queue behind the one in-flight refresh and share its outcome; a
// failed refresh fires the auth-error handler exactly once.
func (c *Client) refreshAndWait(ctx context.Context, stale string) error {
	c.mu.Lock()
	if c.token != "" && c.token != stale {
		// Someone already refreshed; retry with the new token.
		c.mu.Unlock()
		return nil
	}
	if ch := c.refreshing; ch != nil {
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		err := c.refreshErr
		c.mu.Unlock()
		return err
	}
	refreshToken := c.refreshToken
	ch := make(chan struct{})
	c.refreshing = ch
	c.mu.Unlock()

	err := c.doRefresh(ctx, refreshToken)

	c.mu.Lock()
	c.refreshErr = err
	c.refreshing = nil
	c.mu.Unlock()
	close(ch)

	if err != nil {
		c.logger.Warn("token refresh failed, session invalidated", "error", err)
		if c.onAuthError != nil {
			c.onAuthError()
		}
	}
	return err
}

func (c *Client) doRefresh(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return &AuthError{Message: "no refresh token"}
	}
	c.logger.Debug("refreshing token")
	token, refresh, err := c.obtainToken(ctx, map[string]any{"refreshToken": refreshToken})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.refreshToken = refresh
	c.mu.Unlock()
	return nil
}

func (c *Client) obtainToken(ctx context.Context, input map[string]any) (token, refresh string, err error) {
	body, err := c.post(ctx, "obtainKrakenToken", loginMutation, map[string]any{"input": input}, "")
	if err != nil {
		if IsAuthError(err) {
			return "", "", err
		}
		return "", "", &AuthError{Message: "obtaining token", Err: err}
	}

	var resp struct {
		Data struct {
			ObtainKrakenToken *struct {
				Token        string `json:"token"`
				RefreshToken string `json:"refreshToken"`
			} `json:"obtainKrakenToken"`
		} `json:"data"`
		Errors []graphQLError `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", &AuthError{Message: "unparsable token response", Err: err}
	}
	if resp.Data.ObtainKrakenToken == nil || resp.Data.ObtainKrakenToken.Token == "" {
		if len(resp.Errors) > 0 {
			return "", "", &AuthError{Code: resp.Errors[0].Extensions.ErrorCode, Message: resp.Errors[0].Message}
		}
		return "", "", &AuthError{Message: "response contains no token"}
	}
	return resp.Data.ObtainKrakenToken.Token, resp.Data.ObtainKrakenToken.RefreshToken, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		ErrorCode string `json:"errorCode"`
	} `json:"extensions"`
}

// post issues one GraphQL request. It returns an AuthError for 401-class
// responses and for GraphQL-level token errors, an APIError for every other
// failure, and the raw body on success.
func (c *Client) post(ctx context.Context, operation, query string, variables map[string]any, token string) ([]byte, error) {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, &APIError{Operation: operation, Message: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &APIError{Operation: operation, Message: "creating request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		// The API expects the raw token, no Bearer prefix.
		req.Header.Set("Authorization", token)
	}

	c.logger.Debug("api request", "operation", operation, "token", maskToken(token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Operation: operation, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Operation: operation, Message: "reading response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Operation: operation, Message: strings.TrimSpace(string(body))}
	}

	// GraphQL reports expired tokens in the body with a 200 status.
	if code, msg, ok := tokenError(body); ok {
		return nil, &AuthError{Code: code, Message: msg}
	}
	return body, nil
}

func tokenError(body []byte) (code, message string, ok bool) {
	var resp struct {
		Errors []graphQLError `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", false
	}
	for _, e := range resp.Errors {
		switch e.Extensions.ErrorCode {
		case errCodeJWTExpired, errCodeInvalidAuth:
			return e.Extensions.ErrorCode, e.Message, true
		}
	}
	return "", "", false
}

func isAuthFailure(err error) bool {
	return err != nil && IsAuthError(err)
}

// wireReading tolerates the API sending numeric fields as either JSON
// numbers or strings; non-numeric values coerce to 0.
type wireReading struct {
	StartAt             time.Time `json:"startAt"`
	Value               flexFloat `json:"value"`
	ConsumptionRateBand string    `json:"consumptionRateBand"`
	ConsumptionStep     flexInt   `json:"consumptionStep"`
	CostEstimate        flexFloat `json:"costEstimate"`
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var v flexFloat
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

func maskToken(token string) string {
	if len(token) > 12 {
		return token[:12] + "..."
	}
	return token
}
