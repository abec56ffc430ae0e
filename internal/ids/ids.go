// Package ids mints the correlation identifiers stamped on outbound API
// requests as X-Request-Id and echoed into audit entries.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefix marks an identifier as minted by this client, so backend logs can
// tell client-originated request ids from gateway-assigned ones.
const Prefix = "nvr-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a prefixed, lexicographically sortable request identifier.
// Identifiers minted within the same millisecond still sort in mint order.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return Prefix + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
