package domain

import "fmt"

// FetchError means the source batch could not be fetched. The run is
// aborted before any state is touched.
type FetchError struct {
	Cursor string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Cursor != "" {
		return fmt.Sprintf("fetch bookmarks (cursor %q): %v", e.Cursor, e.Err)
	}
	return fmt.Sprintf("fetch bookmarks: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CorruptStateError means the persisted state could not be read back.
// It requires manual intervention: the file is never repaired or replaced
// automatically.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// EnrichmentError is a per-bookmark failure after retries were exhausted.
// It is recorded on the record as StatusFailed and never aborts a batch.
type EnrichmentError struct {
	ID       string
	Attempts int
	Err      error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich bookmark %s: gave up after %d attempts: %v", e.ID, e.Attempts, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// CommitError means the new snapshot could not be made durable.
// The previously committed snapshot remains authoritative.
type CommitError struct {
	Path string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit state file %s: %v", e.Path, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
