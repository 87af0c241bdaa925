package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
)

// NewStorage selects the storage backend configured by storage.driver.
func NewStorage(cfg *config.Config, breaker *CircuitBreaker, logger *zap.Logger) (Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverHTTP:
		return NewHTTPStorage(&cfg.Storage, breaker, logger), nil
	case config.StorageDriverLocal:
		return NewLocalStorage(&cfg.Storage)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// httpStorage uploads to a bucket REST API: POST /storage/v1/object/{bucket}/{key}.
type httpStorage struct {
	client        *httpClient
	bucket        string
	serviceKey    string
	publicBaseURL string
}

func NewHTTPStorage(cfg *config.StorageConfig, breaker *CircuitBreaker, logger *zap.Logger) Storage {
	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = cfg.BaseURL
	}

	return &httpStorage{
		client:        newHTTPClient("storage", cfg.BaseURL, cfg.Timeout, breaker, logger),
		bucket:        cfg.Bucket,
		serviceKey:    cfg.ServiceKey,
		publicBaseURL: strings.TrimRight(publicBase, "/"),
	}
}

func (s *httpStorage) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	objectPath := url.PathEscape(s.bucket) + "/" + escapeKey(key)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.serviceKey)
	header.Set("apikey", s.serviceKey)
	header.Set("x-upsert", "false")
	header.Set("Cache-Control", "3600")

	err := s.client.do(ctx, request{
		method:      http.MethodPost,
		url:         s.client.baseURL + "/storage/v1/object/" + objectPath,
		contentType: contentType,
		body:        data,
		header:      header,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	return s.publicBaseURL + "/storage/v1/object/public/" + objectPath, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// localStorage writes objects under a directory, for development and tests.
type localStorage struct {
	root          string
	bucket        string
	publicBaseURL string
}

func NewLocalStorage(cfg *config.StorageConfig) (Storage, error) {
	root, err := filepath.Abs(filepath.Join(cfg.LocalDir, cfg.Bucket))
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}

	return &localStorage{
		root:          root,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *localStorage) Upload(_ context.Context, key, _ string, data []byte) (string, error) {
	dest, err := s.hostPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if s.publicBaseURL == "" {
		return (&url.URL{Scheme: "file", Path: dest}).String(), nil
	}
	return s.publicBaseURL + "/" + url.PathEscape(s.bucket) + "/" + escapeKey(key), nil
}

func (s *localStorage) hostPath(key string) (string, error) {
	clean := filepath.Clean(key)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal is forbidden: %s", key)
	}

	joined := filepath.Join(s.root, clean)
	if !strings.HasPrefix(joined, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage root: %s", key)
	}
	return joined, nil
}
