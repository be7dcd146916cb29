// Package explain renders short natural-language justifications for
// flagged records via an OpenAI-compatible chat completion endpoint.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bhaveshbhatkar/AISecurityLog/internal/parser"
)

// FallbackExplanation is returned whenever the model call fails.
const FallbackExplanation = "Anomaly detected, but explanation could not be generated."

const systemPrompt = "You are a SOC analyst generating anomaly explanations."

// Config configures the explanation client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// Client calls the explanation model.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates an explanation client. The http.Client's timeout
// bounds every call.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Request carries the sanitized anomaly context handed to the model.
type Request struct {
	Record     *parser.Record
	Reason     string
	MLScore    float64
	FinalScore float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Explain produces a short human-readable justification for an anomaly.
// Any failure degrades to FallbackExplanation; this call is never fatal
// to the enclosing batch.
func (c *Client) Explain(ctx context.Context, req Request) string {
	text, err := c.explain(ctx, req)
	if err != nil {
		c.logger.Warn("explanation generation failed, using fallback", zap.Error(err))
		return FallbackExplanation
	}
	return text
}

func (c *Client) explain(ctx context.Context, req Request) (string, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("provider returned empty explanation")
	}
	return text, nil
}

// buildPrompt renders the sanitized event subset plus the analysis
// indicators. Only the fields listed here ever reach the model.
func buildPrompt(req Request) (string, error) {
	rec := req.Record

	event := map[string]interface{}{
		"timestamp": nil,
		"src_ip":    rec.SrcIP,
		"url":       rec.URL,
		"username":  rec.Username,
		"method":    rec.Method,
		"status":    rec.Status,
		"bytes":     rec.Bytes,
	}
	if rec.Timestamp != nil {
		event["timestamp"] = rec.Timestamp.String()
	}

	eventJSON, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return "", err
	}

	reason := req.Reason
	if reason == "" {
		reason = "none"
	}

	return fmt.Sprintf(`You are a cybersecurity SOC analyst.

A log event has been classified as anomalous by a hybrid detection engine
(rule-based + machine learning). Generate a short, clear explanation
(1-3 sentences) describing why this event is suspicious, based on the
following details.

EVENT (sanitized):
%s

ANALYSIS INDICATORS:
- Rule triggers: %s
- ML anomaly score: %.3f
- Final hybrid score: %.3f

REQUIREMENTS:
- Explain in simple human-friendly SOC language.
- Highlight the most meaningful indicators.
- Do NOT output SQL, code, or JSON.
- Keep it concise, factual, and helpful for analysts.`,
		eventJSON, reason, req.MLScore, req.FinalScore), nil
}
