// Package sendgrid implements the deliverability provider interfaces against
// the SendGrid v3 REST API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"corecompliance/internal/platform/config"
	"corecompliance/internal/verification/deliverability"
	"corecompliance/pkg/platform/circuit"
)

// ErrCircuitOpen is returned when the breaker is short-circuiting provider
// calls after repeated failures.
var ErrCircuitOpen = errors.New("sendgrid: circuit open, provider calls suspended")

// probeInterval is how often an open circuit lets one call through to test
// whether the provider recovered.
const probeInterval = 30 * time.Second

// Client talks to the SendGrid v3 API. It implements both
// deliverability.StatsProvider and deliverability.Sender. A shared circuit
// breaker covers both endpoints: when SendGrid keeps failing, calls fail fast
// instead of holding requests for the full HTTP timeout.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *circuit.Breaker

	mu        sync.Mutex
	lastProbe time.Time
}

func NewClient(cfg config.Mail) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("sendgrid"),
	}
}

// allowRequest lets everything through while the breaker is closed. While
// open, one probe call is admitted per probeInterval.
func (c *Client) allowRequest() bool {
	if !c.breaker.IsOpen() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastProbe) < probeInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}

func (c *Client) observe(err error) {
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.mu.Lock()
			c.lastProbe = time.Now()
			c.mu.Unlock()
		}
		return
	}
	c.breaker.RecordSuccess()
}

// statsResponse mirrors GET /v3/stats: one element per aggregation bucket,
// each with per-subuser stat entries carrying the metric counters.
type statsResponse []struct {
	Date  string `json:"date"`
	Stats []struct {
		Metrics struct {
			Requests  int64 `json:"requests"`
			Delivered int64 `json:"delivered"`
		} `json:"metrics"`
	} `json:"stats"`
}

// DayStats fetches the aggregate counters for one calendar day. Counters from
// multiple stat entries in the same bucket are summed.
func (c *Client) DayStats(ctx context.Context, day time.Time) (deliverability.Stats, error) {
	if !c.allowRequest() {
		return deliverability.Stats{}, ErrCircuitOpen
	}
	stats, err := c.dayStats(ctx, day)
	c.observe(err)
	return stats, err
}

func (c *Client) dayStats(ctx context.Context, day time.Time) (deliverability.Stats, error) {
	date := day.Format("2006-01-02")
	query := url.Values{}
	query.Set("start_date", date)
	query.Set("end_date", date)
	query.Set("aggregated_by", "day")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/stats?"+query.Encode(), nil)
	if err != nil {
		return deliverability.Stats{}, fmt.Errorf("build stats request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return deliverability.Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return deliverability.Stats{}, fmt.Errorf("stats request failed: status %d", resp.StatusCode)
	}

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return deliverability.Stats{}, fmt.Errorf("decode stats response: %w", err)
	}

	var stats deliverability.Stats
	for _, bucket := range body {
		for _, entry := range bucket.Stats {
			stats.Requests += entry.Metrics.Requests
			stats.Delivered += entry.Metrics.Delivered
		}
	}
	return stats, nil
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send submits one message via POST /v3/mail/send. SendGrid answers 202 on
// acceptance; any non-2xx is an error.
func (c *Client) Send(ctx context.Context, msg deliverability.Message) error {
	if !c.allowRequest() {
		return ErrCircuitOpen
	}
	err := c.send(ctx, msg)
	c.observe(err)
	return err
}

func (c *Client) send(ctx context.Context, msg deliverability.Message) error {
	payload, err := json.Marshal(sendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: msg.To}}}},
		From:             emailAddress{Email: msg.From},
		Subject:          msg.Subject,
		Content:          []content{{Type: "text/html", Value: msg.HTML}},
	})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send rejected: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
