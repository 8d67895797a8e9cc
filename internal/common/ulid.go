package common

import "github.com/oklog/ulid/v2"

// NewULID returns a 26 char, time ordered identifier.
// ulid.Make draws from a process-wide monotonic entropy source, so ids minted
// in the same millisecond still sort in creation order.
func NewULID() (string, error) {
	return ulid.Make().String(), nil
}
