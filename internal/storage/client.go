// Package storage defines the storage-cluster collaborator contract
// the dispatcher submits requests against, and provides two
// implementations: an in-memory fake for tests, and an HTTP
// byte-range-backed client for object stores reachable that way.
package storage

import (
	"errors"
	"fmt"
)

// ErrStorageFailed wraps any negative/failed completion from the
// storage client, fatal at the point of detection per the error
// taxonomy.
var ErrStorageFailed = errors.New("storage: request failed")

// ErrNoPushdownCollaborator marks an AioExec failure that means the
// backend has no server-side execution collaborator at all. It wraps
// ErrStorageFailed, like every failed completion; the dispatcher checks
// for this more specific sentinel and treats it as "fall back to a
// direct read" instead of propagating it as fatal.
var ErrNoPushdownCollaborator = fmt.Errorf("storage: backend has no pushdown collaborator: %w", ErrStorageFailed)

// Remote exec methods invocable against the "tabular" server class.
// TestPar exists only as a latent debugging hook — nothing on the
// orchestrator's main path calls it.
const (
	ExecClassTabular = "tabular"

	MethodQueryOp    = "query_op"
	MethodBuildIndex = "build_index"
	MethodTestPar    = "test_par"
)

// Completion is invoked exactly once, on a thread the Client owns,
// when a submitted request finishes. It must be allocation-light and
// must never itself evaluate a payload — that is the worker's job.
type Completion func(data []byte, err error)

// Client is the storage-side collaborator. Both methods return
// immediately; submission is non-blocking and results arrive later
// via completion.
type Client interface {
	// AioRead asks for the full byte contents of oid.
	AioRead(oid string, completion Completion)

	// AioExec invokes method against the tabular class on oid, passing
	// in as the serialized request body.
	AioExec(oid, method string, in []byte, completion Completion)
}
