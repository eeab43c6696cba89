package conn

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zlomekfs/zfsd/internal/rpc"
)

// ViscosityDelay is the cooldown enforced between two failed connect
// attempts to the same peer, spec.md §4.5.
const ViscosityDelay = 15 * time.Second

// ConnectTimeout bounds a non-blocking connect as driven by the main poll
// loop, spec.md §4.5.
const ConnectTimeout = 30 * time.Second

// IdleTimeout is the default duration after which an idle socket is
// closed, spec.md §4.5.
const IdleTimeout = 5 * time.Minute

// Peer is one node's per-socket state, spec.md §4.5: connection state,
// auth sub-state, link speed, and the bookkeeping needed to enforce
// connect viscosity and idle eviction.
type Peer struct {
	ID   uint32
	Addr string

	mu       sync.Mutex
	state    State
	auth     AuthState
	speed    LinkSpeed
	conn     net.Conn
	lastUse  time.Time
	viscous  *rate.Limiter
	pendSlow uint32 // pending_slow_reqs for this peer's socket, spec.md §4.6

	dispatcher *rpc.Dispatcher

	index int // heap index, used by Manager's LRU eviction
}

// NewPeer creates a fresh peer record in StateNone, spec.md §4.5.
func NewPeer(id uint32, addr string) *Peer {
	return &Peer{
		ID:      id,
		Addr:    addr,
		state:   StateNone,
		auth:    AuthNone,
		speed:   SpeedUnknown,
		viscous: rate.NewLimiter(rate.Every(ViscosityDelay), 1),
		lastUse: time.Now(),
	}
}

// ShouldInitiate applies the tie-breaking rule of spec.md §4.5: "the socket
// kept is the one whose direction matches the rule lower-id node
// initiates". localID is this node's id.
func ShouldInitiate(localID, peerID uint32) bool {
	return localID < peerID
}

// transition moves the peer to `to`, rejecting illegal edges per the
// diagram of spec.md §4.5.
func (p *Peer) transition(to State) error {
	if !canTransition(p.state, to) {
		return fmt.Errorf("conn: illegal transition %s -> %s for peer %d", p.state, to, p.ID)
	}
	p.state = to
	return nil
}

// BeginConnect moves NONE->CONNECTING, refusing if the viscosity limiter
// has not yet released a token (i.e. a prior attempt failed too recently).
func (p *Peer) BeginConnect(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateNone {
		return fmt.Errorf("conn: peer %d: begin_connect requires NONE, have %s", p.ID, p.state)
	}
	if p.viscous.TokensAt(now) < 1 {
		return fmt.Errorf("conn: peer %d: connect throttled by viscosity delay", p.ID)
	}
	return p.transition(StateConnecting)
}

// CompleteConnect moves CONNECTING->ACTIVE once the TCP handshake lands.
func (p *Peer) CompleteConnect(c net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transition(StateActive); err != nil {
		return err
	}
	p.conn = c
	p.lastUse = time.Now()
	return nil
}

// AcceptPassive registers an accepted inbound socket, starting PASSIVE.
func (p *Peer) AcceptPassive(c net.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transition(StatePassive); err != nil {
		return err
	}
	p.conn = c
	p.lastUse = time.Now()
	return nil
}

// Establish completes the handshake, moving ACTIVE or PASSIVE to
// ESTABLISHED.
func (p *Peer) Establish() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transition(StateEstablished)
}

// FailConnect records a failed attempt, returning the peer to NONE and
// consuming the viscosity limiter's token, so the next BeginConnect is
// refused until ViscosityDelay has passed.
func (p *Peer) FailConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viscous.AllowN(time.Now(), 1)
	p.state = StateNone
	p.conn = nil
	p.dispatcher = nil
}

// Close tears the socket down unconditionally (used on shutdown or after a
// lost tie-break), spec.md §4.5 "only one socket per peer is kept".
func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateNone
	p.auth = AuthNone
	p.dispatcher = nil
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// AttachDispatcher builds an RPC dispatcher (spec.md §4.6) over this peer's
// established socket and wires this peer's per-socket slow-link counters
// (IncPendingSlow/DecPendingSlow) into it when the link is classified SLOW,
// spec.md §4.6's "pending_slow_reqs". The caller runs the returned
// Dispatcher (typically via Dispatcher.Run(ctx)) for the connection's
// lifetime; Close/FailConnect drop this peer's reference to it.
func (p *Peer) AttachDispatcher(handler rpc.Handler) *rpc.Dispatcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := rpc.New(p.conn, handler)
	if p.speed == SpeedSlow {
		d.SetSlowTracker(p)
	}
	p.dispatcher = d
	return d
}

// Dispatcher returns the RPC dispatcher attached via AttachDispatcher, if
// any.
func (p *Peer) Dispatcher() *rpc.Dispatcher {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatcher
}

// SetAuthState advances the orthogonal auth sub-state machine, spec.md §4.5
// (NONE -> Q1 -> STAGE_1 -> Q3 -> FINISHED).
func (p *Peer) SetAuthState(s AuthState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auth = s
}

func (p *Peer) AuthState() AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth
}

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetSpeed records the speed-probe outcome, communicated to the peer in
// stage-2 so both sides agree, spec.md §4.5.
func (p *Peer) SetSpeed(s LinkSpeed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = s
}

func (p *Peer) Speed() LinkSpeed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Touch records activity for idle-eviction purposes.
func (p *Peer) Touch(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastUse = now
}

func (p *Peer) idleSince(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastUse)
}

// lastUseTime returns the timestamp of the most recent Touch, for LRU
// comparisons that need an absolute ordering rather than a duration.
func (p *Peer) lastUseTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUse
}

// IncPendingSlow / DecPendingSlow keep this peer's own count of RPCs in
// flight on its SLOW-classified link: incremented when a worker sends an
// RPC, decremented on reply. The count is per peer; these calls do not
// change Manager's process-wide pending_slow_reqs counter.
func (p *Peer) IncPendingSlow() {
	p.mu.Lock()
	p.pendSlow++
	p.mu.Unlock()
}

func (p *Peer) DecPendingSlow() {
	p.mu.Lock()
	if p.pendSlow > 0 {
		p.pendSlow--
	}
	p.mu.Unlock()
}

func (p *Peer) PendingSlow() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendSlow
}
