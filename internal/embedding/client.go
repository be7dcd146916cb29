// Package embedding projects parsed records to text and turns that text into
// fixed-dimension float vectors via an external embedding provider.
//
// Provider failures never propagate: a failed call yields the all-zero
// sentinel vector so one bad embedding cannot abort a whole batch.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures the embedding client.
type Config struct {
	BaseURL     string
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
	// Requests per second against the provider, 0 disables limiting.
	RateLimit float64
}

// Client calls an Ollama-style embeddings endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates an embedding client. The http.Client's timeout bounds
// every provider call.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Concurrency)
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

// Dimension returns the configured vector dimension.
func (c *Client) Dimension() int { return c.cfg.Dimension }

// Zero returns the sentinel vector marking a failed embedding.
func (c *Client) Zero() []float32 { return make([]float32, c.cfg.Dimension) }

// IsZeroVector reports whether v is the all-zero sentinel.
func IsZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates one embedding. On any failure (transport, bad status,
// decode, dimension mismatch) it logs and returns the zero sentinel.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("embedding rate limiter interrupted", zap.Error(err))
			return c.Zero()
		}
	}

	vec, err := c.embed(ctx, text)
	if err != nil {
		c.logger.Warn("embedding generation failed, using zero vector", zap.Error(err))
		return c.Zero()
	}
	return vec
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(out.Embedding) != c.cfg.Dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, expected %d",
			len(out.Embedding), c.cfg.Dimension)
	}

	return out.Embedding, nil
}

// EmbedBatch generates embeddings for all texts, preserving input order.
// Texts are processed in outer chunks of BatchSize with at most Concurrency
// in-flight provider calls per chunk. A panic while embedding one item is
// isolated and mapped to the zero sentinel.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	concurrency := c.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("embedding panic recovered",
							zap.Int("index", i), zap.Any("panic", r))
						out[i] = c.Zero()
					}
				}()
				out[i] = c.Embed(ctx, texts[i])
			}(i)
		}
		wg.Wait()

		c.logger.Info("embedding batch progress",
			zap.Int("done", end), zap.Int("total", len(texts)))
	}

	return out
}
