package objectstore

import (
	"bytes"
	"errors"
	"io"
)

// ErrNotFound is returned when a requested object key doesn't exist.
var ErrNotFound = errors.New("objectstore: object not found")

func newReadSeeker(data []byte) io.ReadSeeker {
	return bytes.NewReader(data)
}
