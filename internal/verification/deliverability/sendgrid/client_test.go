package sendgrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecompliance/internal/platform/config"
	"corecompliance/internal/verification/deliverability"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.Mail{
		APIKey:    "SG.test-key",
		FromEmail: "noreply@example.cl",
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
	})
}

func TestDayStats(t *testing.T) {
	t.Run("parses and sums the day bucket", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v3/stats", r.URL.Path)
			assert.Equal(t, "Bearer SG.test-key", r.Header.Get("Authorization"))
			assert.Equal(t, "2024-07-01", r.URL.Query().Get("start_date"))
			assert.Equal(t, "2024-07-01", r.URL.Query().Get("end_date"))
			assert.Equal(t, "day", r.URL.Query().Get("aggregated_by"))

			_, _ = w.Write([]byte(`[
				{"date": "2024-07-01", "stats": [
					{"metrics": {"requests": 40, "delivered": 38, "bounces": 1}},
					{"metrics": {"requests": 2, "delivered": 2}}
				]}
			]`))
		}))
		defer server.Close()

		stats, err := newTestClient(server.URL).DayStats(context.Background(), time.Date(2024, 7, 1, 15, 30, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, int64(42), stats.Requests)
		assert.Equal(t, int64(40), stats.Delivered)
	})

	t.Run("empty body yields zero counters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		stats, err := newTestClient(server.URL).DayStats(context.Background(), time.Now())
		require.NoError(t, err)
		assert.Zero(t, stats.Requests)
		assert.Zero(t, stats.Delivered)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).DayStats(context.Background(), time.Now())
		assert.Error(t, err)
	})

	t.Run("unreachable server is an error", func(t *testing.T) {
		_, err := newTestClient("http://127.0.0.1:1").DayStats(context.Background(), time.Now())
		assert.Error(t, err)
	})
}

func TestSend(t *testing.T) {
	t.Run("posts the v3 mail body", func(t *testing.T) {
		var captured sendRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v3/mail/send", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		err := newTestClient(server.URL).Send(context.Background(), deliverabilityMessage())
		require.NoError(t, err)

		require.Len(t, captured.Personalizations, 1)
		require.Len(t, captured.Personalizations[0].To, 1)
		assert.Equal(t, "ana@example.cl", captured.Personalizations[0].To[0].Email)
		assert.Equal(t, "noreply@example.cl", captured.From.Email)
		assert.Equal(t, "Verificación", captured.Subject)
		require.Len(t, captured.Content, 1)
		assert.Equal(t, "text/html", captured.Content[0].Type)
	})

	t.Run("rejection is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from"}]}`))
		}))
		defer server.Close()

		err := newTestClient(server.URL).Send(context.Background(), deliverabilityMessage())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	})
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("opens after repeated failures and fails fast", func(t *testing.T) {
		var hits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		for i := 0; i < 5; i++ {
			_, err := client.DayStats(context.Background(), time.Now())
			require.Error(t, err)
		}
		assert.Equal(t, 5, hits)

		// The sixth call is short-circuited without touching the provider.
		_, err := client.DayStats(context.Background(), time.Now())
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 5, hits)

		err = client.Send(context.Background(), deliverabilityMessage())
		assert.ErrorIs(t, err, ErrCircuitOpen, "the breaker covers both endpoints")
	})

	t.Run("probe closes the circuit once the provider recovers", func(t *testing.T) {
		healthy := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if !healthy {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		for i := 0; i < 5; i++ {
			_, _ = client.DayStats(context.Background(), time.Now())
		}
		require.True(t, client.breaker.IsOpen())

		// Rewind the probe clock instead of sleeping through the interval.
		healthy = true
		client.mu.Lock()
		client.lastProbe = time.Now().Add(-2 * probeInterval)
		client.mu.Unlock()

		_, err := client.DayStats(context.Background(), time.Now())
		require.NoError(t, err)
		assert.False(t, client.breaker.IsOpen())
	})
}

func deliverabilityMessage() deliverability.Message {
	return deliverability.Message{
		From:    "noreply@example.cl",
		To:      "ana@example.cl",
		Subject: "Verificación",
		HTML:    "<p>hola</p>",
	}
}
