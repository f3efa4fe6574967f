package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/adapta/internal/metrics"
)

// ErrUnreachable is wrapped by Ask once every attempt failed at the transport
// level, or when a reply arrived but its body could not be read.
var ErrUnreachable = errors.New("climate api unreachable")

// ServiceError is a non-2xx reply from the inference service. It is never retried.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("climate api error %d: %s", e.StatusCode, e.Body)
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
	Attempts      int
	RetryDelay    time.Duration
	// RateLimit is requests per second across all asks; 0 disables limiting.
	RateLimit float64
}

type Client struct {
	baseURL    string
	client     *http.Client
	health     *http.Client
	attempts   int
	retryDelay time.Duration
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: cfg.Timeout},
		health:     &http.Client{Timeout: cfg.HealthTimeout},
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		limiter:    limiter,
		metrics:    metrics.NewMetrics(),
		logger:     logger,
	}
}

type AskRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	Context        string `json:"context,omitempty"`
}

type Answer struct {
	Answer string `json:"answer"`
	Status string `json:"status"`
}

type Health struct {
	Healthy    bool
	StatusCode int
}

// Ask posts a question to <base>/ask. Transport failures are retried with a
// fixed delay; any HTTP reply, including an error status, ends the loop.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	defer func() {
		c.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			c.metrics.InferenceRetries.Inc()
			c.logger.Warn("retrying climate api", "attempt", attempt+1, "error", lastErr)
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		answer, err := c.doAsk(ctx, body)
		if err == nil {
			return answer, nil
		}

		lastErr = err
		var re *retryableError
		if !errors.As(err, &re) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, c.attempts, lastErr)
}

func (c *Client) doAsk(ctx context.Context, body []byte) (*Answer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("api call: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var raw struct {
		Answer *string `json:"answer"`
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		c.logger.Warn("climate api returned malformed json", "error", err)
		return &Answer{Answer: "", Status: "unknown"}, nil
	}

	answer := &Answer{Status: "success"}
	if raw.Answer != nil {
		answer.Answer = *raw.Answer
	}
	if raw.Status != nil {
		answer.Status = *raw.Status
	}
	return answer, nil
}

// Health probes <base>/health once. A transport failure is returned as an
// error; any HTTP reply yields a Health value.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.health.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("health call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return Health{
		Healthy:    resp.StatusCode >= 200 && resp.StatusCode <= 299,
		StatusCode: resp.StatusCode,
	}, nil
}
