package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func decodeRequest(t *testing.T, r *http.Request) gqlRequest {
	t.Helper()
	var req gqlRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeToken(w http.ResponseWriter, token, refresh string) {
	fmt.Fprintf(w, `{"data":{"obtainKrakenToken":{"token":%q,"refreshToken":%q}}}`, token, refresh)
}

func writeReadings(w http.ResponseWriter, readings string) {
	fmt.Fprintf(w, `{"data":{"account":{"properties":[{"electricitySupplyPoints":[{"halfHourlyReadings":[%s]}]}]}}}`, readings)
}

func writeTokenError(w http.ResponseWriter, code string) {
	fmt.Fprintf(w, `{"errors":[{"message":"Signature has expired","extensions":{"errorCode":%q}}]}`, code)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithEndpoint(srv.URL, "user@example.com", "secret", nil)
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		input := req.Variables["input"].(map[string]any)
		assert.Equal(t, "user@example.com", input["email"])
		assert.Equal(t, "secret", input["password"])
		assert.Empty(t, r.Header.Get("Authorization"))
		writeToken(w, "tok-1", "ref-1")
	})

	require.NoError(t, client.Login(context.Background()))
	assert.True(t, client.HasToken())
}

func TestLoginBadCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"errors":[{"message":"Invalid credentials","extensions":{"errorCode":"KT-CT-1138"}}]}`)
	})

	err := client.Login(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.False(t, client.HasToken())
}

func TestHalfHourlyReadings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if _, ok := req.Variables["input"]; ok {
			writeToken(w, "tok-1", "ref-1")
			return
		}
		// The raw token goes in the Authorization header, no Bearer prefix.
		assert.Equal(t, "tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "A-123", req.Variables["accountNumber"])
		assert.Equal(t, "2024-03-08T15:00:00Z", req.Variables["fromDatetime"])
		assert.Equal(t, "2024-03-09T15:00:00Z", req.Variables["toDatetime"])
		writeReadings(w, `
			{"startAt":"2024-03-08T15:00:00+00:00","value":0.42,"consumptionRateBand":"OFF_PEAK","consumptionStep":1,"costEstimate":"12.5"},
			{"startAt":"2024-03-08T15:30:00+00:00","value":"0.58","consumptionRateBand":"OFF_PEAK","consumptionStep":"2","costEstimate":null}`)
	})

	require.NoError(t, client.Login(context.Background()))

	from := time.Date(2024, time.March, 8, 15, 0, 0, 0, time.UTC)
	readings, err := client.HalfHourlyReadings(context.Background(), "A-123", from, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, 0.42, readings[0].Value)
	assert.Equal(t, "OFF_PEAK", readings[0].ConsumptionRateBand)
	assert.Equal(t, 1, readings[0].ConsumptionStep)
	assert.Equal(t, 12.5, readings[0].CostEstimate)
	assert.True(t, from.Equal(readings[0].StartAt))

	// String-encoded numbers and nulls coerce instead of failing.
	assert.Equal(t, 0.58, readings[1].Value)
	assert.Equal(t, 2, readings[1].ConsumptionStep)
	assert.Equal(t, 0.0, readings[1].CostEstimate)
}

func TestHalfHourlyReadingsRequiresLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected before login")
	})

	_, err := client.HalfHourlyReadings(context.Background(), "A-123", time.Now().Add(-time.Hour), time.Now())
	assert.True(t, IsAuthError(err))
}

func TestMalformedResponseTreatedAsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if _, ok := req.Variables["input"]; ok {
			writeToken(w, "tok-1", "ref-1")
			return
		}
		fmt.Fprintf(w, `{"data":{"account":null}}`)
	})

	require.NoError(t, client.Login(context.Background()))

	readings, err := client.HalfHourlyReadings(context.Background(), "A-123", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestExpiredTokenRefreshAndRetry(t *testing.T) {
	var usageCalls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if input, ok := req.Variables["input"].(map[string]any); ok {
			if refresh, ok := input["refreshToken"]; ok {
				assert.Equal(t, "ref-1", refresh)
				writeToken(w, "tok-2", "ref-2")
			} else {
				writeToken(w, "tok-1", "ref-1")
			}
			return
		}

		if usageCalls.Add(1) == 1 {
			// First usage call fails with an expired-JWT error in a 200 body.
			writeTokenError(w, "KT-CT-1139")
			return
		}
		assert.Equal(t, "tok-2", r.Header.Get("Authorization"))
		writeReadings(w, `{"startAt":"2024-03-08T15:00:00+00:00","value":1.0}`)
	})

	require.NoError(t, client.Login(context.Background()))

	readings, err := client.HalfHourlyReadings(context.Background(), "A-123", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, int32(2), usageCalls.Load())
}

func TestConcurrentExpiryTriggersSingleRefresh(t *testing.T) {
	var refreshes, usageCalls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if input, ok := req.Variables["input"].(map[string]any); ok {
			if _, ok := input["refreshToken"]; ok {
				refreshes.Add(1)
				time.Sleep(50 * time.Millisecond) // let the other callers queue
				writeToken(w, "tok-2", "ref-2")
			} else {
				writeToken(w, "tok-1", "ref-1")
			}
			return
		}

		if r.Header.Get("Authorization") == "tok-1" {
			usageCalls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeReadings(w, `{"startAt":"2024-03-08T15:00:00+00:00","value":1.0}`)
	})

	require.NoError(t, client.Login(context.Background()))

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.HalfHourlyReadings(context.Background(), "A-123", time.Now().Add(-time.Hour), time.Now())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), refreshes.Load(), "stale token triggers exactly one refresh")
}

func TestFailedRefreshFiresAuthHandlerOnce(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if input, ok := req.Variables["input"].(map[string]any); ok {
			if _, ok := input["refreshToken"]; ok {
				writeTokenError(w, "KT-CT-1143")
				return
			}
			writeToken(w, "tok-1", "ref-1")
			return
		}
		writeTokenError(w, "KT-CT-1139")
	})

	var handlerCalls atomic.Int32
	client.SetAuthErrorHandler(func() { handlerCalls.Add(1) })

	require.NoError(t, client.Login(context.Background()))

	_, err := client.HalfHourlyReadings(context.Background(), "A-123", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, int32(1), handlerCalls.Load())
}

func TestServerErrorIsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if _, ok := req.Variables["input"]; ok {
			writeToken(w, "tok-1", "ref-1")
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	require.NoError(t, client.Login(context.Background()))

	_, err := client.HalfHourlyReadings(context.Background(), "A-123", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.False(t, IsAuthError(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}
