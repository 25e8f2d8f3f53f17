package objstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type HTTPConfig struct {
	BaseURL    string
	Bucket     string
	ServiceKey string
	// PublicURL is the prefix of download links; BaseURL when empty.
	PublicURL string
	Timeout   time.Duration
}

// HTTP talks to a bucket-style object storage API:
// GET <base>/<bucket>/<key> reads, POST <base>/<bucket>/<name> writes.
type HTTP struct {
	client    *resty.Client
	bucket    string
	publicURL string
	logger    *zap.Logger
	Now       func() time.Time
}

func NewHTTP(cfg HTTPConfig, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0)
	if cfg.ServiceKey != "" {
		client.SetAuthToken(cfg.ServiceKey).SetHeader("apikey", cfg.ServiceKey)
	}
	public := cfg.PublicURL
	if public == "" {
		public = cfg.BaseURL
	}
	return &HTTP{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(public, "/"),
		logger:    logger,
		Now:       time.Now,
	}
}

func (h *HTTP) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": h.bucket, "key": key}).
		Get("/{bucket}/{key}")
	if err != nil {
		h.logger.Warn("object fetch failed", zap.String("bucket", h.bucket), zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("fetch %s/%s: %w", h.bucket, key, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s/%s: %w", h.bucket, key, ErrNotFound)
	case resp.IsError():
		h.logger.Warn("object fetch rejected", zap.String("bucket", h.bucket), zap.String("key", key), zap.Int("status_code", resp.StatusCode()))
		return nil, fmt.Errorf("fetch %s/%s: status %d", h.bucket, key, resp.StatusCode())
	}
	return resp.Body(), nil
}

func (h *HTTP) Put(ctx context.Context, name string, content []byte, contentType string) (string, error) {
	object := ObjectName(h.Now(), name)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": h.bucket, "name": object}).
		SetHeader("Content-Type", contentType).
		SetBody(content).
		Post("/{bucket}/{name}")
	if err != nil {
		h.logger.Error("object upload failed", zap.String("bucket", h.bucket), zap.String("object", object), zap.Error(err))
		return "", fmt.Errorf("upload %s/%s: %w", h.bucket, object, err)
	}
	if resp.IsError() {
		h.logger.Error("object upload rejected", zap.String("bucket", h.bucket), zap.String("object", object), zap.Int("status_code", resp.StatusCode()))
		return "", fmt.Errorf("upload %s/%s: status %d", h.bucket, object, resp.StatusCode())
	}
	h.logger.Info("object stored", zap.String("bucket", h.bucket), zap.String("object", object), zap.Int("bytes", len(content)))
	return fmt.Sprintf("%s/%s/%s", h.publicURL, h.bucket, object), nil
}
