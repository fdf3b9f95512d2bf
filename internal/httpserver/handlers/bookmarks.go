package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/index"
)

const maxListLimit = 1000

type listResponse struct {
	Count     int                      `json:"count"`
	Bookmarks []*domain.BookmarkRecord `json:"bookmarks"`
}

// ListBookmarks serves committed records filtered by tag, status and folder.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		recs := d.MemoryIndex.List(f)
		writeJSON(w, http.StatusOK, listResponse{Count: len(recs), Bookmarks: recs})
	}
}

// GetBookmark serves one record, tombstones included.
func GetBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := d.MemoryIndex.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "bookmark not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// Tags lists every tag in use.
func Tags(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"tags": d.MemoryIndex.Tags()})
	}
}

func parseFilter(r *http.Request) (index.Filter, error) {
	q := r.URL.Query()
	f := index.Filter{
		Tag:      strings.TrimSpace(q.Get("tag")),
		FolderID: strings.TrimSpace(q.Get("folder")),
		Limit:    maxListLimit,
	}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		f.Status = domain.Status(s)
		if !f.Status.Valid() {
			return f, errInvalid("status", s)
		}
	}
	if v := q.Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalid("include_deleted", v)
		}
		f.IncludeDeleted = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errInvalid("limit", v)
		}
		if n < maxListLimit {
			f.Limit = n
		}
	}
	return f, nil
}

type invalidParam struct{ name, value string }

func (e invalidParam) Error() string { return "invalid " + e.name + ": " + strconv.Quote(e.value) }

func errInvalid(name, value string) error { return invalidParam{name, value} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
