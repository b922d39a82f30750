package storage

import (
	"fmt"
	"net/url"

	"howett.net/ranger"
)

// HTTPStore reads targets as byte-range GETs against a base URL,
// joining baseURL with the target id to name each object. It only
// implements AioRead: byte-range HTTP has no server-side execution
// collaborator, so AioExec always fails — pushdown queries against
// this backend must fall back to a direct read and client-side
// evaluation.
type HTTPStore struct {
	baseURL string
}

// NewHTTPStore returns a store rooted at baseURL, e.g.
// "https://bucket.example.com/lineitem".
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{baseURL: baseURL}
}

func (h *HTTPStore) objectURL(oid string) (*url.URL, error) {
	return url.Parse(h.baseURL + "/" + oid)
}

// AioRead fetches oid's full contents via HTTP range requests.
func (h *HTTPStore) AioRead(oid string, completion Completion) {
	go func() {
		u, err := h.objectURL(oid)
		if err != nil {
			completion(nil, fmt.Errorf("storage: parse url for %q: %w", oid, err))
			return
		}

		reader, err := ranger.NewReader(&ranger.HTTPRanger{URL: u})
		if err != nil {
			completion(nil, fmt.Errorf("storage: open %q: %w: %v", oid, ErrStorageFailed, err))
			return
		}

		length, err := reader.Length()
		if err != nil {
			completion(nil, fmt.Errorf("storage: length of %q: %w: %v", oid, ErrStorageFailed, err))
			return
		}

		buf := make([]byte, length)
		if _, err := reader.ReadAt(buf, 0); err != nil {
			completion(nil, fmt.Errorf("storage: read %q: %w: %v", oid, ErrStorageFailed, err))
			return
		}
		completion(buf, nil)
	}()
}

// AioExec always fails: byte-range HTTP has no pushdown collaborator.
// The dispatcher recognizes ErrNoPushdownCollaborator and falls back
// to AioRead plus client-side evaluation instead of treating it as a
// fatal per-request failure.
func (h *HTTPStore) AioExec(oid, method string, in []byte, completion Completion) {
	go completion(nil, fmt.Errorf("storage: exec %q against %q: %w", method, oid, ErrNoPushdownCollaborator))
}
