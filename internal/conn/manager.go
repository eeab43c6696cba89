package conn

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

// Manager owns every live Peer and enforces the process-wide fd budget via
// LRU eviction, spec.md §4.5 "LRU eviction closes the least-recently-used
// socket when the per-process fd budget is exceeded".
type Manager struct {
	localID uint32

	mu        sync.Mutex
	peers     map[uint32]*Peer
	lru       peerHeap
	fdBudget  int
	idleAfter time.Duration

	slowMu   sync.Mutex
	slowCond *sync.Cond
	pendingSlowReqs uint32
}

// NewManager creates a manager for localID, bounding open sockets to
// fdBudget (spec.md §5 "default ≈ nfd/4").
func NewManager(localID uint32, fdBudget int) *Manager {
	if fdBudget < 1 {
		fdBudget = 1
	}
	m := &Manager{
		localID:   localID,
		peers:     make(map[uint32]*Peer),
		fdBudget:  fdBudget,
		idleAfter: IdleTimeout,
	}
	m.slowCond = sync.NewCond(&m.slowMu)
	return m
}

// Peer returns (creating if necessary) the Peer record for a remote node.
func (m *Manager) Peer(id uint32, addr string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		return p
	}
	p := NewPeer(id, addr)
	m.peers[id] = p
	heap.Push(&m.lru, p)
	return p
}

// ResolveTieBreak decides, when both peers dialed each other, which socket
// survives: spec.md §4.5's "lower-id node initiates" rule. It returns true
// if the locally-accepted `incoming` connection should be kept (and the
// existing outbound attempt closed), false if the existing outbound
// connection wins and incoming should be closed.
func (m *Manager) ResolveTieBreak(remoteID uint32) (keepIncoming bool) {
	return !ShouldInitiate(m.localID, remoteID)
}

// Touch records activity on p and re-heapifies its LRU position, evicting
// the coldest peer first if this brings us over the fd budget.
func (m *Manager) Touch(p *Peer) {
	now := time.Now()
	p.Touch(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if p.index >= 0 && p.index < len(m.lru) {
		heap.Fix(&m.lru, p.index)
	}
	for m.openCountLocked() > m.fdBudget {
		if !m.evictColdestLocked(p) {
			break
		}
	}
}

func (m *Manager) openCountLocked() int {
	n := 0
	for _, p := range m.peers {
		if p.State() != StateNone {
			n++
		}
	}
	return n
}

// evictColdestLocked closes the least-recently-used connected peer other
// than `keep`, returning whether anything was evicted.
func (m *Manager) evictColdestLocked(keep *Peer) bool {
	var coldest *Peer
	for _, p := range m.peers {
		if p == keep || p.State() == StateNone {
			continue
		}
		if coldest == nil || p.lastUseTime().Before(coldest.lastUseTime()) {
			coldest = p
		}
	}
	if coldest == nil {
		return false
	}
	coldest.Close()
	return true
}

// SweepIdle closes every peer whose socket has been idle longer than the
// configured idle timeout, spec.md §4.5 "idle sockets are closed after N
// seconds".
func (m *Manager) SweepIdle(now time.Time) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var closed []uint32
	for id, p := range m.peers {
		if p.State() == StateNone {
			continue
		}
		if p.idleSince(now) >= m.idleAfter {
			p.Close()
			closed = append(closed, id)
		}
	}
	return closed
}

// IncPendingSlow bumps the global pending_slow_reqs counter, spec.md §4.6:
// incremented whenever a worker sends an RPC on a socket classified SLOW.
func (m *Manager) IncPendingSlow() {
	m.slowMu.Lock()
	m.pendingSlowReqs++
	m.slowMu.Unlock()
}

// DecPendingSlow decrements it on reply, broadcasting to any slow updater
// waiting for the counter to drain.
func (m *Manager) DecPendingSlow() {
	m.slowMu.Lock()
	if m.pendingSlowReqs > 0 {
		m.pendingSlowReqs--
	}
	if m.pendingSlowReqs == 0 {
		m.slowCond.Broadcast()
	}
	m.slowMu.Unlock()
}

func (m *Manager) PendingSlowReqs() uint32 {
	m.slowMu.Lock()
	defer m.slowMu.Unlock()
	return m.pendingSlowReqs
}

// WaitForSlowDrain blocks until pending_slow_reqs is zero, spec.md §4.8's
// slow-updater checkpoint, or until stop is closed.
func (m *Manager) WaitForSlowDrain(stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		m.slowMu.Lock()
		for m.pendingSlowReqs != 0 {
			m.slowCond.Wait()
		}
		m.slowMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-stop:
	}
}

// Remove drops a peer entirely (used when a node is removed from config).
func (m *Manager) Remove(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		return fmt.Errorf("conn: remove: unknown peer %d", id)
	}
	p.Close()
	delete(m.peers, id)
	if p.index >= 0 && p.index < len(m.lru) {
		heap.Remove(&m.lru, p.index)
	}
	return nil
}

// peerHeap orders Peers by lastUse for LRU eviction.
type peerHeap []*Peer

func (h peerHeap) Len() int { return len(h) }
func (h peerHeap) Less(i, j int) bool {
	return h[i].lastUseTime().Before(h[j].lastUseTime())
}
func (h peerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *peerHeap) Push(x interface{}) {
	p := x.(*Peer)
	p.index = len(*h)
	*h = append(*h, p)
}
func (h *peerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.index = -1
	*h = old[:n-1]
	return p
}
