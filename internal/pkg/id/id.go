package id

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time, so message
// sort keys inside one user's partition come back in send order.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewHandle generates an opaque verification handle.
func NewHandle() string {
	return uuid.NewString()
}
