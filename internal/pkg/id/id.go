package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a reminder ID. ULIDs sort by creation time, which keeps
// listings in creation order without a separate sort key.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Valid reports whether s is a well-formed ID, so handlers can reject garbage
// path parameters before touching the store.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
