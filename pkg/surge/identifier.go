package surge

import (
	"fmt"
	"sync/atomic"
)

// Identifier is an opaque handle to a live session. User code holds
// Identifiers, never sessions themselves, and compares, prints, and maps
// on them freely.
//
// The source this framework is modeled on issues pointer-address
// identifiers, which are vulnerable to ABA reuse once a session is freed
// and a new one happens to land at the same address. Identifier instead
// comes from a process-wide monotonic counter, so a disconnect/reconnect
// never yields an identifier collision.
type Identifier uint64

// String implements fmt.Stringer so Identifier prints usefully in logs.
func (id Identifier) String() string {
	return fmt.Sprintf("session-%d", uint64(id))
}

// idSequence issues monotonically increasing Identifiers.
var idSequence atomic.Uint64

// nextIdentifier returns a new, never-before-issued Identifier.
func nextIdentifier() Identifier {
	return Identifier(idSequence.Add(1))
}
