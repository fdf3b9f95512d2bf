package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

const (
	EventBookmarksUpdated = "bookmarks.updated"

	// DefaultBatchSize caps how many items one delivery carries.
	DefaultBatchSize = 50
)

// Payload is the JSON body POSTed to the webhook.
type Payload struct {
	Event       string   `json:"event"`
	RunID       string   `json:"run_id"`
	Batch       int      `json:"batch"`
	Batches     int      `json:"batches"`
	Items       []Item   `json:"items"`
	Tombstoned  []string `json:"tombstoned,omitempty"`
	Interrupted bool     `json:"interrupted,omitempty"`
	SentAt      string   `json:"sent_at"`
}

// Item is one newly enriched or failed bookmark.
type Item struct {
	ID           string        `json:"id"`
	Status       domain.Status `json:"status"`
	Text         string        `json:"text"`
	AuthorHandle string        `json:"author_handle,omitempty"`
	URLs         []string      `json:"urls,omitempty"`
	Tags         []string      `json:"tags"`
	FolderID     string        `json:"folder_id,omitempty"`
	Title        string        `json:"title,omitempty"`
	Sentiment    string        `json:"sentiment,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

type Options struct {
	URL        string
	BatchSize  int
	Retry      utils.RetryPolicy
	HTTPClient *http.Client
	Logger     logger.Logger
	Now        func() time.Time
}

// Webhook posts newly committed records to an HTTP endpoint.
// Deliveries are at-least-once; receivers dedupe on run_id + batch.
type Webhook struct {
	url        string
	batchSize  int
	retry      utils.RetryPolicy
	httpClient *http.Client
	logger     logger.Logger
	now        func() time.Time
}

func NewWebhook(opts Options) (*Webhook, error) {
	if opts.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Webhook{
		url:        opts.URL,
		batchSize:  size,
		retry:      opts.Retry,
		httpClient: client,
		logger:     log,
		now:        now,
	}, nil
}

func (w *Webhook) Name() string { return "webhook" }

// Consume sends one delivery per batch of notifiable records. Runs without
// enriched or failed records send nothing.
func (w *Webhook) Consume(ctx context.Context, res *reconcile.Result) error {
	recs := res.Notifiable()
	if len(recs) == 0 {
		return nil
	}

	tombstoned := make([]string, 0, len(res.Tombstoned))
	for _, r := range res.Tombstoned {
		tombstoned = append(tombstoned, r.ID)
	}

	batches := (len(recs) + w.batchSize - 1) / w.batchSize
	for i := 0; i < batches; i++ {
		end := (i + 1) * w.batchSize
		if end > len(recs) {
			end = len(recs)
		}
		p := Payload{
			Event:       EventBookmarksUpdated,
			RunID:       res.RunID,
			Batch:       i + 1,
			Batches:     batches,
			Items:       toItems(recs[i*w.batchSize : end]),
			Interrupted: res.Interrupted,
			SentAt:      w.now().UTC().Format(time.RFC3339),
		}
		if i == 0 {
			p.Tombstoned = tombstoned
		}
		if err := w.deliver(ctx, &p); err != nil {
			return fmt.Errorf("webhook batch %d/%d: %w", i+1, batches, err)
		}
	}

	w.logger.Info("webhook delivered",
		logger.String("run_id", res.RunID),
		logger.Int("items", len(recs)),
		logger.Int("batches", batches))
	return nil
}

func (w *Webhook) deliver(ctx context.Context, p *Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	bo := w.retry.NewBackOff()
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Marksync-Event", p.Event)
		req.Header.Set("X-Marksync-Run-Id", p.RunID)

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("webhook request failed: %w", err)
		}
		defer utils.Close(resp.Body)

		if resp.StatusCode < 300 {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if utils.IsTransientStatus(resp.StatusCode) {
			bo.RaiseNext(utils.ParseRetryAfter(resp.Header.Get("Retry-After")))
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		w.logger.Warn("webhook delivery failed, retrying",
			logger.String("run_id", p.RunID),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))
	}
	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

func toItems(recs []*domain.BookmarkRecord) []Item {
	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		it := Item{
			ID:           r.ID,
			Status:       r.Status,
			Text:         r.Raw.Text,
			AuthorHandle: r.Raw.AuthorHandle,
			URLs:         r.Raw.URLs,
			Tags:         r.Tags,
			FolderID:     r.FolderID,
			LastError:    r.LastError,
		}
		if it.Tags == nil {
			it.Tags = []string{}
		}
		if e := r.Enrichment; e != nil {
			it.Sentiment = e.Sentiment.Label
			for _, l := range e.ExpandedLinks {
				if l.Title != "" {
					it.Title = l.Title
					break
				}
			}
		}
		items = append(items, it)
	}
	return items
}
