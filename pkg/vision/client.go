// Package vision provides a client for a remote OCR service that turns an
// image into positioned text tokens with per-token confidence.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the vision OCR operations.
type Client interface {
	// Annotate runs OCR over the image bytes and returns recognized tokens.
	Annotate(ctx context.Context, image []byte) (*AnnotateResponse, error)
	// Health probes the service.
	Health(ctx context.Context) error
}

// AnnotateResponse is the parsed OCR response.
type AnnotateResponse struct {
	Tokens []Token `json:"tokens"`
}

// Token is one recognized text run.
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vision: api error %d: %s", e.StatusCode, e.Message)
}

// Option configures the vision client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a vision OCR client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type annotateRequest struct {
	Image string `json:"image"` // base64-encoded
}

func (c *httpClient) Annotate(ctx context.Context, image []byte) (*AnnotateResponse, error) {
	body, err := json.Marshal(annotateRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, eris.Wrap(err, "vision: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/annotate", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "vision: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "vision: annotate request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, eris.Wrap(err, "vision: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}

	var out AnnotateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "vision: decode response")
	}
	return &out, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return eris.Wrap(err, "vision: build health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "vision: health request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}
