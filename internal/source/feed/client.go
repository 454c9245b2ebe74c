package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"article_sync/internal/domain"
)

const maxBodyBytes = 32 << 20

// Config holds feed client configuration.
type Config struct {
	EndpointPath string
	Timeout      time.Duration
	UserAgent    string
}

// Client fetches article listings from remote sites.
type Client struct {
	httpClient   *http.Client
	endpointPath string
	userAgent    string
	logger       *slog.Logger
}

// New creates a new feed client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpointPath: strings.Trim(cfg.EndpointPath, "/"),
		userAgent:    cfg.UserAgent,
		logger:       logger.With("component", "feed"),
	}
}

// FetchPage fetches the first page of published articles from baseURL,
// asking for count records with featured media embedded.
func (c *Client) FetchPage(ctx context.Context, baseURL string, count int) ([]domain.RemoteArticle, error) {
	count = domain.ClampPostCount(count)

	endpoint, err := c.endpoint(baseURL, count)
	if err != nil {
		return nil, err
	}

	posts, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched page",
		"url", endpoint,
		"requested", count,
		"received", len(posts),
	)

	if len(posts) > count {
		posts = posts[:count]
	}
	return transform(posts), nil
}

func (c *Client) endpoint(baseURL string, count int) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + c.endpointPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}

	q := u.Query()
	q.Set("per_page", strconv.Itoa(count))
	q.Set("page", "1")
	q.Set("embed", "1")
	q.Set("status", "published")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.BadStatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrUnreachable, err)
	}

	return decode(body)
}

func decode(body []byte) ([]Post, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil, fmt.Errorf("%w: body is not a json array", domain.ErrMalformedResponse)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	posts := make([]Post, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", domain.ErrMalformedResponse, i)
		}
		var p Post
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", domain.ErrMalformedResponse, i, err)
		}
		if p.ID <= 0 {
			return nil, fmt.Errorf("%w: element %d has no id", domain.ErrMalformedResponse, i)
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func transform(posts []Post) []domain.RemoteArticle {
	articles := make([]domain.RemoteArticle, 0, len(posts))

	for _, p := range posts {
		article := domain.RemoteArticle{
			ExternalID:     p.ID,
			Title:          string(p.Title),
			HTMLContent:    string(p.Content),
			PublishedAt:    p.Date,
			PublishedAtGMT: p.DateGMT,
			CanonicalLink:  p.Link,
			Slug:           p.Slug,
		}

		if p.Embedded != nil && len(p.Embedded.FeaturedMedia) > 0 {
			m := p.Embedded.FeaturedMedia[0]
			article.FeaturedMedia = &domain.MediaRef{
				SourceURL:   m.SourceURL,
				AltText:     m.AltText,
				Description: string(m.Description),
			}
		}

		articles = append(articles, article)
	}

	return articles
}
