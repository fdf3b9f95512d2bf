package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/reconcile"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

var fastRetry = utils.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func result(statuses ...domain.Status) *reconcile.Result {
	res := &reconcile.Result{RunID: "run-1"}
	for i, st := range statuses {
		res.Updated = append(res.Updated, &domain.BookmarkRecord{
			ID:     fmt.Sprint(i + 1),
			Status: st,
			Raw:    domain.RawBookmark{Text: "post"},
			Tags:   []string{"golang"},
			Enrichment: &domain.Enrichment{
				Sentiment:     domain.Sentiment{Label: domain.SentimentPositive},
				ExpandedLinks: []domain.Link{{URL: "https://go.dev", Title: "Go"}},
			},
		})
	}
	res.Tombstoned = []*domain.BookmarkRecord{{ID: "old", Status: domain.StatusDeleted}}
	return res
}

func TestWebhookConsume(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []Payload
		headers  http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		payloads = append(payloads, p)
		headers = r.Header
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	wh, err := NewWebhook(Options{URL: server.URL, BatchSize: 2, Retry: fastRetry, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}

	res := result(domain.StatusEnriched, domain.StatusSkipped, domain.StatusFailed, domain.StatusEnriched)
	if err := wh.Consume(context.Background(), res); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("deliveries = %d, want 2 (3 notifiable items, batch size 2)", len(payloads))
	}
	first := payloads[0]
	if first.RunID != "run-1" || first.Batch != 1 || first.Batches != 2 {
		t.Errorf("first payload = run %q batch %d/%d", first.RunID, first.Batch, first.Batches)
	}
	if len(first.Items) != 2 || first.Items[0].ID != "1" || first.Items[1].ID != "3" {
		t.Errorf("first batch items = %+v, want ids 1 and 3", first.Items)
	}
	if first.Items[0].Title != "Go" || first.Items[0].Sentiment != domain.SentimentPositive {
		t.Errorf("item enrichment = %+v", first.Items[0])
	}
	if len(first.Tombstoned) != 1 || len(payloads[1].Tombstoned) != 0 {
		t.Errorf("tombstoned should be sent once, got %v then %v", first.Tombstoned, payloads[1].Tombstoned)
	}
	if got := headers.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := headers.Get("X-Marksync-Event"); got != EventBookmarksUpdated {
		t.Errorf("X-Marksync-Event = %q", got)
	}
}

func TestWebhookSkipsQuietRuns(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	wh, _ := NewWebhook(Options{URL: server.URL})
	if err := wh.Consume(context.Background(), result(domain.StatusSkipped)); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("deliveries = %d, want 0", hits.Load())
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	wh, _ := NewWebhook(Options{URL: server.URL, Retry: fastRetry})
	if err := wh.Consume(context.Background(), result(domain.StatusEnriched)); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("attempts = %d, want 3", hits.Load())
	}
}

func TestWebhookClientErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte("endpoint removed"))
	}))
	defer server.Close()

	wh, _ := NewWebhook(Options{URL: server.URL, Retry: fastRetry})
	err := wh.Consume(context.Background(), result(domain.StatusFailed))
	if err == nil {
		t.Fatal("Consume() should return error on 410")
	}
	if !strings.Contains(err.Error(), "410") || !strings.Contains(err.Error(), "endpoint removed") {
		t.Errorf("error = %v, want status and body", err)
	}
	if hits.Load() != 1 {
		t.Errorf("attempts = %d, want 1", hits.Load())
	}
}

func TestNewWebhookRequiresURL(t *testing.T) {
	if _, err := NewWebhook(Options{}); err == nil {
		t.Error("NewWebhook() without url should return error")
	}
}
