// Package backend talks to the remote chat-completion endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"DeepChat/internal/config"
	"DeepChat/internal/session"
)

// Client calls an OpenAI-compatible /chat/completions endpoint. Each call
// makes exactly one attempt.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	duration   metric.Float64Histogram

	mu     sync.RWMutex
	apiKey string

	// usage counters by response usage field, created on first sight
	usageMu sync.Mutex
	usage   map[string]metric.Int64Counter
}

// usageFields are the usage fields DeepSeek reports on every response
var usageFields = []string{
	"prompt_tokens",
	"completion_tokens",
	"total_tokens",
	"prompt_cache_hit_tokens",
	"prompt_cache_miss_tokens",
}

// NewClient creates a completion client. apiKey may be empty; calls fail with
// a config error until SetAPIKey supplies one.
func NewClient(cfg config.Config, apiKey string, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Client {
	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", "error", err)
	}

	c := &Client{
		cfg: cfg,
		// request_timeout of zero leaves the call unbounded
		httpClient: &http.Client{Timeout: cfg.API.RequestTimeout},
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
		duration:   histogram,
		apiKey:     apiKey,
		usage:      make(map[string]metric.Int64Counter, len(usageFields)),
	}
	for _, field := range usageFields {
		c.usageCounter(field)
	}
	return c
}

// SetAPIKey replaces the credential used for subsequent calls
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

// HasAPIKey reports whether a credential is available
func (c *Client) HasAPIKey() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// Complete sends messages to the model selected by mode and returns the
// assistant's reply.
func (c *Client) Complete(ctx context.Context, mode session.Mode, messages []session.Message) (string, error) {
	model := c.cfg.Model(mode)

	ctx, span := c.tracer.Start(ctx, "deepseek_api_call",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Int("llm.messages", len(messages)),
		))
	defer span.End()

	reply, err := c.complete(ctx, model, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return reply, nil
}

func (c *Client) complete(ctx context.Context, model string, messages []session.Message) (string, error) {
	c.mu.RLock()
	apiKey := c.apiKey
	c.mu.RUnlock()

	if apiKey == "" {
		return "", &config.Error{Field: c.cfg.API.KeyName, Err: config.ErrMissingCredential}
	}

	start := time.Now()

	reqMessages := make([]OpenAIMessage, len(messages))
	for i, msg := range messages {
		reqMessages[i] = OpenAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	reqBody := OpenAIRequest{
		Model:    model,
		Messages: reqMessages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &RemoteCallError{Model: model, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	url := strings.TrimRight(c.cfg.API.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &RemoteCallError{Model: model, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RemoteCallError{Model: model, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RemoteCallError{Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("llm.model", model)))
	}

	if resp.StatusCode != http.StatusOK {
		return "", &RemoteCallError{Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("API error: %s - %s", resp.Status, string(body))}
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &RemoteCallError{Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	c.logger.Debug("API response", "id", apiResp.ID, "model", apiResp.Model, "choices", len(apiResp.Choices))
	c.recordMetrics(ctx, apiResp.Usage)

	if apiResp.Error != nil {
		return "", &RemoteCallError{Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %s", ErrMalformedResponse, apiResp.Error.Message)}
	}
	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == nil {
		return "", &RemoteCallError{Model: model, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: no reply content", ErrMalformedResponse)}
	}

	return *apiResp.Choices[0].Message.Content, nil
}

// recordMetrics records OpenTelemetry metrics from usage data
func (c *Client) recordMetrics(ctx context.Context, usage map[string]interface{}) {
	if usage == nil {
		return
	}

	for key, value := range usage {
		if intVal, ok := value.(float64); ok {
			if counter := c.usageCounter(key); counter != nil {
				counter.Add(ctx, int64(intVal))
			}
		}
	}
}

// usageCounter returns the counter for a usage field, creating it once
func (c *Client) usageCounter(key string) metric.Int64Counter {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()

	if counter, ok := c.usage[key]; ok {
		return counter
	}
	counter, err := c.meter.Int64Counter(
		fmt.Sprintf("llm.usage.%s", key),
		metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
	)
	if err != nil {
		c.logger.Warn("failed to create counter", "key", key, "error", err)
		counter = nil
	}
	// failures are cached too so the warning is logged once
	c.usage[key] = counter
	return counter
}
