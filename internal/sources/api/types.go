package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// listResponse is the body of GET /bookmarks.
type listResponse struct {
	Data       []apiBookmark `json:"data"`
	NextCursor string        `json:"next_cursor"`
}

type apiBookmark struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	Author    apiAuthor  `json:"author"`
	URLs      []apiURL   `json:"urls"`
	Media     []apiMedia `json:"media"`
	Quoted    *apiQuoted `json:"quoted"`
	FolderID  string     `json:"folder_id"`
}

type apiAuthor struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

// apiURL carries the expanded form when the API already resolved a t.co-style link.
type apiURL struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

type apiMedia struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	AltText string `json:"alt_text"`
}

type apiQuoted struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (r listResponse) toRaw() ([]domain.RawBookmark, error) {
	out := make([]domain.RawBookmark, 0, len(r.Data))
	for i, b := range r.Data {
		if strings.TrimSpace(b.ID) == "" {
			return nil, fmt.Errorf("bookmark #%d in page has no id", i+1)
		}
		out = append(out, b.toRaw())
	}
	return out, nil
}

func (b apiBookmark) toRaw() domain.RawBookmark {
	raw := domain.RawBookmark{
		ID:           strings.TrimSpace(b.ID),
		Text:         b.Text,
		AuthorHandle: strings.TrimPrefix(b.Author.Handle, "@"),
		AuthorName:   b.Author.Name,
		FolderID:     b.FolderID,
		CreatedAt:    b.CreatedAt.UTC(),
	}
	for _, u := range b.URLs {
		if u.ExpandedURL != "" {
			raw.URLs = append(raw.URLs, u.ExpandedURL)
		} else if u.URL != "" {
			raw.URLs = append(raw.URLs, u.URL)
		}
	}
	for _, m := range b.Media {
		raw.Media = append(raw.Media, domain.Media{Type: m.Type, URL: m.URL, AltText: m.AltText})
	}
	if b.Quoted != nil {
		raw.QuotedID = b.Quoted.ID
		raw.QuotedText = b.Quoted.Text
	}
	return raw
}
