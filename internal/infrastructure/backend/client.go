// Package backend is the HTTP gateway to the image generation service.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Endpoint paths exposed by the generation service.
const (
	PathTextToImage  = "/api/images/text-to-image"
	PathImageToImage = "/api/images/image-to-image"
	PathHistory      = "/api/images/history"
	PathToken        = "/api/auth/token"

	defaultBaseURL = "http://localhost:8000"
)

// TokenSource supplies the bearer token for outgoing requests.
// An empty token with a nil error means no session is active.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout is applied only when HTTPClient is nil. Zero keeps the transport default.
	Timeout time.Duration
	Tokens  TokenSource
	Logger  *zerolog.Logger
}

// Client represents the generation service API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     zerolog.Logger
}

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// DecodeJSON unmarshals the body into out, reporting malformed bodies as application errors.
func (r *Response) DecodeJSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return malformedError(r.StatusCode, err)
	}
	return nil
}

// NewClient creates a new generation service client
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		tokens:     opts.Tokens,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends body to path. Transport failures and non-2xx replies both return *Error.
func (c *Client) Post(ctx context.Context, path string, body Body) (*Response, error) {
	contentType, reader, err := body.Encode()
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	return c.do(ctx, http.MethodPost, path, contentType, reader)
}

// Get fetches path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, "", nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*Response, error) {
	requestID := uuid.NewString()
	log := c.logger.With().Str("request_id", requestID).Str("method", method).Str("path", path).Logger()

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, transportError(fmt.Errorf("failed to create request: %w", err))
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("session token unavailable")
			return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("failed to load session token: %v", err), Err: err}
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("request failed")
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Int("status", resp.StatusCode).Msg("failed to read response")
		return nil, transportError(fmt.Errorf("failed to read response: %w", err))
	}

	log.Info().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, payload)
	}
	return &Response{StatusCode: resp.StatusCode, Body: payload}, nil
}
