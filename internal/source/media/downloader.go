// Package media downloads remote media assets.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"article_sync/internal/domain"
)

var ErrTooLarge = errors.New("media exceeds size limit")

type Config struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxBytes      int64
	UserAgent     string
}

// Downloader fetches media over HTTP, throttled to a steady request rate.
type Downloader struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBytes   int64
	userAgent  string
}

func NewDownloader(cfg Config) *Downloader {
	return &Downloader{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		maxBytes:   cfg.MaxBytes,
		userAgent:  cfg.UserAgent,
	}
}

// Download fetches rawURL and returns its bytes with the detected MIME type.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*domain.MediaAsset, error) {
	filename, err := Filename(rawURL)
	if err != nil {
		return nil, err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if d.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}

	return &domain.MediaAsset{
		Filename:  filename,
		SourceURL: rawURL,
		MimeType:  mimeType(resp.Header.Get("Content-Type"), data),
		Data:      data,
	}, nil
}

// Filename derives the stored file name from the last path segment of a
// media URL.
func Filename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse media url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no file name in %q", rawURL)
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name, nil
}

func mimeType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "" && !strings.HasPrefix(mt, "application/octet-stream") {
		return mt
	}
	return http.DetectContentType(data)
}
