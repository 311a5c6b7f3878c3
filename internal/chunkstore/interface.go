package chunkstore

import (
	"io"

	"github.com/zeebo/errs"
)

// Errors
var (
	// Error wraps chunk persistence failures; the caller should surface it to
	// the uploading client so the client retries that one chunk
	Error = errs.Class("chunkstore")

	// ErrTotalMismatch means a chunk declared a different total than the
	// first chunk seen for the same upload
	ErrTotalMismatch = errs.Class("chunk total mismatch")

	// ErrUnknownUpload means no chunk has been staged for the upload id
	ErrUnknownUpload = errs.Class("unknown upload")
)

// Ref points at one staged chunk
type Ref struct {
	Index int
	Path  string
}

// Store is a durable staging area for upload chunks keyed by (uploadID, index)
type Store interface {
	// Put stores one chunk; overwriting an existing (uploadID, index) pair
	// replaces prior content. The first chunk fixes the declared total for
	// the upload
	Put(uploadID string, index, total int, r io.Reader) error

	// ListOrdered returns refs for the upload sorted ascending by numeric
	// index; an empty slice when none exist
	ListOrdered(uploadID string) ([]Ref, error)

	// Remove deletes one chunk; absent chunks are not an error
	Remove(uploadID string, index int) error

	// DeclaredTotal returns the total recorded by the first chunk
	DeclaredTotal(uploadID string) (int, error)

	// Open returns a reader over the chunk's original bytes
	Open(ref Ref) (io.ReadCloser, error)
}
