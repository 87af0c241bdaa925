package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
)

const (
	downloadPath  = "/message/download"
	sendTextPath  = "/send/text"
	sendMediaPath = "/send/media"

	// base64 inflates payloads by 4/3, plus the JSON envelope.
	base64Overhead = 64 << 10
)

type providerClient struct {
	client   *httpClient
	maxBytes int64
	logger   *zap.Logger
}

// NewProviderClient creates a client for the uazapi-style provider API.
func NewProviderClient(cfg *config.Config, breaker *CircuitBreaker, logger *zap.Logger) ProviderClient {
	client := newHTTPClient("provider", cfg.Provider.BaseURL, cfg.Provider.Timeout, breaker, logger)
	client.maxResponseBytes = cfg.Media.MaxBytes/3*4 + base64Overhead

	return &providerClient{
		client:   client,
		maxBytes: cfg.Media.MaxBytes,
		logger:   logger,
	}
}

type downloadRequest struct {
	ID           string `json:"id"`
	ReturnBase64 bool   `json:"return_base64"`
	ReturnLink   bool   `json:"return_link"`
}

type downloadResponse struct {
	Base64Data string `json:"base64Data"`
	MimeType   string `json:"mimetype"`
	FileURL    string `json:"fileURL"`
	FileName   string `json:"fileName"`
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendMediaRequest struct {
	Number string `json:"number"`
	Type   string `json:"type"`
	File   string `json:"file"`
}

type sendResponse struct {
	MessageID string `json:"messageid"`
	ID        string `json:"id"`
}

func (c *providerClient) DownloadMedia(ctx context.Context, token, providerMessageID string) (*MediaContent, error) {
	var resp downloadResponse
	err := c.client.postJSON(ctx, downloadPath, tokenHeader(token), downloadRequest{
		ID:           providerMessageID,
		ReturnBase64: true,
		ReturnLink:   true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}

	content := &MediaContent{
		MimeType: normalizeMime(resp.MimeType),
		FileName: resp.FileName,
	}

	switch {
	case resp.Base64Data != "":
		data, err := decodeBase64(resp.Base64Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode media: %w", err)
		}
		content.Data = data
	case resp.FileURL != "":
		data, contentType, err := c.client.fetch(ctx, resp.FileURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch media link: %w", err)
		}
		content.Data = data
		if content.MimeType == "" {
			content.MimeType = normalizeMime(contentType)
		}
	default:
		return nil, ErrEmptyMedia
	}

	if len(content.Data) == 0 {
		return nil, ErrEmptyMedia
	}
	if int64(len(content.Data)) > c.maxBytes {
		return nil, fmt.Errorf("%d bytes: %w", len(content.Data), ErrMediaTooLarge)
	}

	c.logger.Debug("Media downloaded",
		zap.String("providerMessageID", providerMessageID),
		zap.Int("size", len(content.Data)),
		zap.String("mimeType", content.MimeType))

	return content, nil
}

func (c *providerClient) SendText(ctx context.Context, token, number, text string) (string, error) {
	var resp sendResponse
	if err := c.client.postJSON(ctx, sendTextPath, tokenHeader(token), sendTextRequest{
		Number: number,
		Text:   text,
	}, &resp); err != nil {
		return "", fmt.Errorf("failed to send text: %w", err)
	}

	return resp.providerID(), nil
}

func (c *providerClient) SendAudio(ctx context.Context, token, number, audioURL string) (string, error) {
	var resp sendResponse
	if err := c.client.postJSON(ctx, sendMediaPath, tokenHeader(token), sendMediaRequest{
		Number: number,
		Type:   "ptt",
		File:   audioURL,
	}, &resp); err != nil {
		return "", fmt.Errorf("failed to send audio: %w", err)
	}

	return resp.providerID(), nil
}

func (r sendResponse) providerID() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	return r.ID
}

func tokenHeader(token string) http.Header {
	h := http.Header{}
	h.Set("token", token)
	return h
}

// decodeBase64 accepts raw base64 as well as data URLs.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ","); idx >= 0 {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSpace(s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return data, nil
}

// normalizeMime drops parameters such as "; codecs=opus".
func normalizeMime(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
