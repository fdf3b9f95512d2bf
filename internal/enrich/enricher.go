package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

const defaultUserAgent = "marksync/1.0 (+https://github.com/MrSnakeDoc/marksync)"

// LinkCache stores link expansions across runs.
type LinkCache interface {
	GetLink(ctx context.Context, url string) (*domain.Link, error) // nil, nil on miss
	PutLink(ctx context.Context, link *domain.Link) error
}

// Options configures an Enricher.
type Options struct {
	// ResolveLinks enables HTTP expansion of bookmark URLs.
	ResolveLinks bool

	Retry          utils.RetryPolicy
	AttemptTimeout time.Duration

	HTTPClient *http.Client
	UserAgent  string
	Cache      LinkCache
	Logger     logger.Logger
	Now        func() time.Time
}

// Enricher derives an Enrichment payload for a bookmark.
// It holds no per-call state and is safe for concurrent use.
type Enricher struct {
	resolveLinks   bool
	retry          utils.RetryPolicy
	attemptTimeout time.Duration
	client         *http.Client
	userAgent      string
	cache          LinkCache
	logger         logger.Logger
	now            func() time.Time
}

func New(opts Options) *Enricher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{
		resolveLinks:   opts.ResolveLinks,
		retry:          opts.Retry,
		attemptTimeout: timeout,
		client:         client,
		userAgent:      ua,
		cache:          opts.Cache,
		logger:         log,
		now:            now,
	}
}

// Enrich builds the enrichment for b. A link that keeps failing after all
// retries yields *domain.EnrichmentError. If ctx ends first, ctx.Err() is
// returned unwrapped so callers can tell shutdown from failure.
func (e *Enricher) Enrich(ctx context.Context, b domain.RawBookmark) (*domain.Enrichment, error) {
	out := &domain.Enrichment{
		Sentiment: domain.AnalyzeSentiment(b.Text),
	}
	if len(b.Media) > 0 {
		out.Media = append([]domain.Media(nil), b.Media...)
	}
	if b.QuotedID != "" || b.QuotedText != "" {
		out.Quoted = &domain.Quoted{ID: b.QuotedID, Text: b.QuotedText}
	}

	seen := make(map[string]struct{}, len(b.URLs))
	for _, u := range b.URLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		if !e.resolveLinks {
			out.ExpandedLinks = append(out.ExpandedLinks, domain.Link{URL: u})
			continue
		}

		link, attempts, err := e.expand(ctx, u)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &domain.EnrichmentError{ID: b.ID, Attempts: attempts, Err: err}
		}
		out.ExpandedLinks = append(out.ExpandedLinks, *link)
	}

	out.EnrichedAt = e.now().UTC()
	return out, nil
}

// expand resolves one URL, consulting the cache first.
func (e *Enricher) expand(ctx context.Context, rawURL string) (*domain.Link, int, error) {
	if e.cache != nil {
		cached, err := e.cache.GetLink(ctx, rawURL)
		if err != nil {
			e.logger.Warn("link cache lookup failed",
				logger.String("url", rawURL),
				logger.Error(err))
		} else if cached != nil {
			return cached, 0, nil
		}
	}

	var (
		link     *domain.Link
		attempts int
	)
	bo := e.retry.NewBackOff()
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()

		l, err := e.fetchLink(actx, rawURL)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) {
				bo.RaiseNext(se.retryAfter)
			}
			return err
		}
		link = l
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.logger.Debug("link expansion failed, retrying",
			logger.String("url", rawURL),
			logger.Int("attempt", attempts),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, attempts, err
	}

	if e.cache != nil {
		if err := e.cache.PutLink(ctx, link); err != nil {
			e.logger.Warn("link cache store failed",
				logger.String("url", rawURL),
				logger.Error(err))
		}
	}
	return link, attempts, nil
}

// statusError is a retryable HTTP response.
type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// fetchLink performs a single GET. Transport failures and transient statuses
// are returned as errors; any other response is a successful expansion.
func (e *Enricher) fetchLink(ctx context.Context, rawURL string) (*domain.Link, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid url: %w", err))
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer utils.Close(resp.Body)

	if utils.IsTransientStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &statusError{
			code:       resp.StatusCode,
			retryAfter: utils.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	link := &domain.Link{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !isHTML(resp.Header.Get("Content-Type")) {
		return link, nil
	}

	meta, err := parsePageMeta(resp.Body)
	if err != nil {
		e.logger.Debug("failed to parse page metadata",
			logger.String("url", rawURL),
			logger.Error(err))
		return link, nil
	}
	link.Title = meta.bestTitle()
	link.Description = meta.bestDescription()
	link.SiteName = strings.TrimSpace(meta.siteName)
	return link, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
