// Package vision is the client for the external CLIP embedding service. The
// service fetches an image by URL and answers with a fixed-length embedding
// vector; everything about the model is opaque to this process.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// Config holds the vision provider configuration.
type Config struct {
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8000",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// Provider calls the CLIP embedding service.
type Provider struct {
	client *http.Client
	config *Config
}

// NewProvider creates a new vision provider.
func NewProvider(cfg *Config) *Provider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Provider{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

type embedRequest struct {
	ImageURL string `json:"image_url"`
}

// Embed generates an embedding vector for the image at the given URL.
func (p *Provider) Embed(ctx context.Context, imageURL string) ([]float32, error) {
	var result []float32
	err := p.doWithRetry(ctx, func() error {
		body, err := json.Marshal(embedRequest{ImageURL: imageURL})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, payload)
		}

		var vector []float32
		if err := json.NewDecoder(resp.Body).Decode(&vector); err != nil {
			return fmt.Errorf("failed to decode embedding response: %w", err)
		}
		if len(vector) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		result = vector
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	return result, nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("embedding request failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}
