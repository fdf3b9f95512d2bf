package domain

import "time"

// Status is the processing state of a BookmarkRecord.
type Status string

const (
	StatusPending  Status = "pending"
	StatusEnriched Status = "enriched"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusDeleted  Status = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusEnriched, StatusFailed, StatusSkipped, StatusDeleted:
		return true
	}
	return false
}

// Media describes an attachment on a bookmarked post.
type Media struct {
	Type    string `json:"type" yaml:"type"` // photo | video | animated_gif
	URL     string `json:"url" yaml:"url"`
	AltText string `json:"alt_text,omitempty" yaml:"alt_text,omitempty"`
}

// RawBookmark is a bookmark exactly as a source delivered it.
// Every field takes part in the content hash.
type RawBookmark struct {
	ID           string    `json:"id" yaml:"id"`
	Text         string    `json:"text" yaml:"text"`
	AuthorHandle string    `json:"author_handle,omitempty" yaml:"author_handle,omitempty"`
	AuthorName   string    `json:"author_name,omitempty" yaml:"author_name,omitempty"`
	URLs         []string  `json:"urls,omitempty" yaml:"urls,omitempty"`
	Media        []Media   `json:"media,omitempty" yaml:"media,omitempty"`
	QuotedID     string    `json:"quoted_id,omitempty" yaml:"quoted_id,omitempty"`
	QuotedText   string    `json:"quoted_text,omitempty" yaml:"quoted_text,omitempty"`
	FolderID     string    `json:"folder_id,omitempty" yaml:"folder_id,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// BookmarkRecord is the persisted, processed view of a bookmark.
//
// Records are created on first fetch and only ever mutated by the
// reconciliation engine. They are never removed: a bookmark that
// disappears from the source becomes a tombstone (StatusDeleted).
type BookmarkRecord struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the source-assigned identifier.
	ID string `json:"id"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// Raw is the last fetched content snapshot.
	Raw RawBookmark `json:"raw"`

	// FolderID is the source folder, if any.
	FolderID string `json:"folder_id,omitempty"`

	// ContentHash fingerprints Raw for change detection.
	ContentHash string `json:"content_hash"`

	// ─────────────────────────────
	// Derived data
	// ─────────────────────────────

	// Tags is ordered: folder tag first (when mapped), then categories sorted.
	Tags []string `json:"tags"`

	// Enrichment is nil until an enrichment pass succeeds.
	Enrichment *Enrichment `json:"enrichment,omitempty"`

	// ─────────────────────────────
	// Processing
	// ─────────────────────────────

	Status Status `json:"status"`

	// Attempts counts consecutive failed enrichment runs. Reset on success.
	Attempts int `json:"attempts,omitempty"`

	// LastError holds the most recent enrichment failure.
	LastError string `json:"last_error,omitempty"`

	// FirstSeenAt is set once, on the first fetch.
	FirstSeenAt time.Time `json:"first_seen_at"`

	// UpdatedAt is advanced on every mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no slices with r.
func (r *BookmarkRecord) Clone() *BookmarkRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Raw = r.Raw.clone()
	if r.Tags != nil {
		c.Tags = append(make([]string, 0, len(r.Tags)), r.Tags...)
	}
	c.Enrichment = r.Enrichment.Clone()
	return &c
}

func (b RawBookmark) clone() RawBookmark {
	c := b
	c.URLs = append([]string(nil), b.URLs...)
	c.Media = append([]Media(nil), b.Media...)
	return c
}

// Link is the result of expanding a single URL.
type Link struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
}

// Quoted is the content a bookmark quotes.
type Quoted struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// Sentiment is a keyword-based polarity estimate.
type Sentiment struct {
	Label string  `json:"label"` // positive | negative | neutral
	Score float64 `json:"score"` // [-1, 1]
}

// Enrichment is the derived payload attached by the enrichment engine.
// The reconciliation engine only cares whether it is present.
type Enrichment struct {
	ExpandedLinks []Link    `json:"expanded_links,omitempty"`
	Media         []Media   `json:"media,omitempty"`
	Quoted        *Quoted   `json:"quoted,omitempty"`
	Sentiment     Sentiment `json:"sentiment"`
	EnrichedAt    time.Time `json:"enriched_at"`
}

// Clone returns a deep copy of e.
func (e *Enrichment) Clone() *Enrichment {
	if e == nil {
		return nil
	}
	c := *e
	c.ExpandedLinks = append([]Link(nil), e.ExpandedLinks...)
	c.Media = append([]Media(nil), e.Media...)
	if e.Quoted != nil {
		q := *e.Quoted
		c.Quoted = &q
	}
	return &c
}
