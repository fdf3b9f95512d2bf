package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/sources"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

// maxResponseSize bounds a single page response.
const maxResponseSize = 10 * 1024 * 1024

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string

	// IncludeFolders asks the API to annotate bookmarks with their folder.
	IncludeFolders bool
	PageSize       int

	Retry      utils.RetryPolicy
	HTTPClient *http.Client
	Logger     logger.Logger
}

// Client reads bookmarks from the remote bookmarks API.
type Client struct {
	baseURL        string
	token          string
	includeFolders bool
	pageSize       int
	retry          utils.RetryPolicy
	httpClient     *http.Client
	logger         logger.Logger
}

// HTTPError is a non-retryable API response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bookmarks api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bookmarks api: status %d", e.StatusCode)
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:        base,
		token:          opts.Token,
		includeFolders: opts.IncludeFolders,
		pageSize:       opts.PageSize,
		retry:          opts.Retry,
		httpClient:     httpClient,
		logger:         log,
	}, nil
}

// FetchBookmarks implements sources.Fetcher.
func (c *Client) FetchBookmarks(ctx context.Context, cursor string) (sources.Page, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if c.includeFolders {
		q.Set("include", "folders")
	}
	if c.pageSize > 0 {
		q.Set("limit", fmt.Sprint(c.pageSize))
	}

	var resp listResponse
	if err := c.getJSON(ctx, "/bookmarks", q, &resp); err != nil {
		return sources.Page{}, err
	}

	items, err := resp.toRaw()
	if err != nil {
		return sources.Page{}, err
	}
	return sources.Page{Items: items, NextCursor: resp.NextCursor}, nil
}

// getJSON performs a GET with bounded retries on transport errors, 429 and 5xx.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	bo := c.retry.NewBackOff()
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed (attempt %d): %w", attempt, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		utils.Close(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response (attempt %d): %w", attempt, err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			if err := json.Unmarshal(body, out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
			return nil
		case utils.IsTransientStatus(resp.StatusCode):
			bo.RaiseNext(utils.ParseRetryAfter(resp.Header.Get("Retry-After")))
			return fmt.Errorf("bookmarks api: status %d (attempt %d)", resp.StatusCode, attempt)
		default:
			var payload struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(body, &payload)
			return backoff.Permanent(&HTTPError{StatusCode: resp.StatusCode, Message: payload.Message})
		}
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("bookmarks api request failed, retrying",
			logger.String("path", path),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))
	}

	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}
