// Package promptid generates the time-ordered unique identifier stored as a
// Prompt's uuid field. A ULID is used instead of a random (v4) UUID so that
// lexicographic order on the id matches creation order, which the orchestrator
// and promptstore both rely on when recovering state from disk.
package promptid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is shared by every call so that ids minted within the same
// millisecond still increase.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a new time-ordered id string.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
