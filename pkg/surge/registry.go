package surge

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

// Registry is the thread-safe set of live WebSocket sessions. Erases are
// posted to a dedicated strand; inserts (emplaceServer, adopt) and
// Shutdown's closing flag take the write lock directly on the caller's
// goroutine and do not go through the strand. Broadcasts hold the read
// lock while iterating the live set.
type Registry struct {
	e      *Executor
	strand *strand

	mu       sync.RWMutex
	sessions map[Identifier]*WSSession

	closing bool
}

// NewRegistry creates an empty Registry backed by e.
func NewRegistry(e *Executor) *Registry {
	return &Registry{
		e:        e,
		strand:   newStrand(e),
		sessions: make(map[Identifier]*WSSession),
	}
}

// emplaceServer constructs a server-role WSSession over conn and inserts
// it into the registry, unless the registry is closing (rejecting new
// sessions during shutdown).
func (r *Registry) emplaceServer(conn *websocket.Conn, resource string, handler WSHandler, config *Config, metrics *Metrics) *WSSession {
	session := newWSSession(conn, resource, handler, config, r.e, r, metrics)

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		session.workGuard.Release()
		_ = conn.Close()
		return nil
	}
	r.sessions[session.id] = session
	r.mu.Unlock()

	session.start()
	return session
}

// adopt registers an already-started, client-role WSSession (constructed
// by Dialer) so it participates in broadcast and shutdown sweeps the same
// way a server-role session does.
func (r *Registry) adopt(session *WSSession) {
	r.mu.Lock()
	closing := r.closing
	if !closing {
		r.sessions[session.id] = session
	}
	r.mu.Unlock()
	if closing {
		session.Close("shutdown")
	}
}

// asyncErase removes a session from the registry. Tolerant of the
// session already being absent (e.g. a shutdown sweep and the session's
// own teardown racing each other).
func (r *Registry) asyncErase(id Identifier) {
	r.strand.post(func() {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
	})
}

// asyncCall invokes fn with a stable snapshot of the live session set on
// the registry strand. The broadcast helpers and Shutdown do not go
// through it; they read the set under mu directly.
func (r *Registry) asyncCall(fn func(map[Identifier]*WSSession)) {
	r.strand.post(func() {
		r.mu.RLock()
		snapshot := make(map[Identifier]*WSSession, len(r.sessions))
		for id, s := range r.sessions {
			snapshot[id] = s
		}
		r.mu.RUnlock()
		fn(snapshot)
	})
}

// Count returns the number of currently registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Get returns the session for id, or nil if it is not currently
// registered.
func (r *Registry) Get(id Identifier) *WSSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// BroadcastText sends text frame payload to every session whose
// Identifier is in ids, or to every live session if ids is nil. The
// payload is wrapped in a single Buffer and handed to every recipient —
// one allocation regardless of how many sessions receive it.
func (r *Registry) BroadcastText(payload []byte, ids []Identifier) {
	r.broadcast(FrameText, NewBufferFromBytes(payload), ids)
}

// BroadcastBinary is BroadcastText for binary frames.
func (r *Registry) BroadcastBinary(payload []byte, ids []Identifier) {
	r.broadcast(FrameBinary, NewBufferFromBytes(payload), ids)
}

func (r *Registry) broadcast(kind int, buf *Buffer, ids []Identifier) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ids == nil {
		for _, s := range r.sessions {
			_ = s.Send(kind, buf)
		}
		return
	}

	// Both the registry's session set and the caller's id set are
	// iterated in tandem the way a sorted-set merge would, but since Go
	// maps are unordered and ids is typically small, a direct membership
	// probe against the map is the equivalent O(len(ids)) joint
	// traversal without requiring ids to be pre-sorted.
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			_ = s.Send(kind, buf)
		}
	}
}

// CloseAll schedules a close on every currently live session.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Close(reason)
	}
}

// Shutdown marks the registry closing — rejecting new emplaces — and
// posts a close on every currently registered session. Each session's own
// I/O strand then performs its own close and removal; Shutdown does not
// wait for that to finish (see Block for that).
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closing = true
	sessions := make([]*WSSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close("shutdown")
	}
}

// Block drives the Executor's PollOne on the calling goroutine until the
// registry is empty, the way the spec's block() drains without spinning
// up another worker.
func (r *Registry) Block() {
	for r.Count() > 0 {
		if !r.e.PollOne() {
			// Nothing ready here; a worker or a session goroutine may
			// still be tearing a session down.
			time.Sleep(time.Millisecond)
		}
	}
}
