package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxErrorBodyBytes = 2 << 10

// httpClient is the JSON-over-HTTP transport shared by the collaborators.
type httpClient struct {
	service          string
	baseURL          string
	http             *http.Client
	breaker          *CircuitBreaker
	logger           *zap.Logger
	maxResponseBytes int64
}

func newHTTPClient(service, baseURL string, timeoutSeconds int, breaker *CircuitBreaker, logger *zap.Logger) *httpClient {
	return &httpClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		breaker:          breaker,
		logger:           logger,
		maxResponseBytes: 1 << 20,
	}
}

type request struct {
	method      string
	url         string
	contentType string
	body        []byte
	header      http.Header
}

func (c *httpClient) postJSON(ctx context.Context, path string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.do(ctx, request{
		method:      http.MethodPost,
		url:         c.baseURL + path,
		contentType: "application/json",
		body:        body,
		header:      header,
	}, out)
}

// do sends req through the circuit breaker and decodes a JSON body into out when out is not nil.
func (c *httpClient) do(ctx context.Context, req request, out any) error {
	return c.breaker.Execute(ctx, func() error {
		respBody, err := c.roundTrip(ctx, req)
		if err != nil {
			return err
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", c.service, err)
		}

		return nil
	})
}

// fetch downloads a URL without the JSON decoding step.
func (c *httpClient) fetch(ctx context.Context, url string) ([]byte, string, error) {
	var (
		data        []byte
		contentType string
	)

	err := c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer c.closeBody(resp)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return c.statusError(resp)
		}

		data, err = c.readBody(resp.Body)
		if err != nil {
			return err
		}
		contentType = resp.Header.Get("Content-Type")

		return nil
	})

	return data, contentType, err
}

func (c *httpClient) roundTrip(ctx context.Context, r request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bytes.NewReader(r.body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range r.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer c.closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp)
	}

	return c.readBody(resp.Body)
}

func (c *httpClient) readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%s response: %w", c.service, ErrMediaTooLarge)
	}
	return data, nil
}

func (c *httpClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{
		Service:    c.service,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (c *httpClient) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("Failed to close response body", zap.String("service", c.service), zap.Error(err))
	}
}
