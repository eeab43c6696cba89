// Package rpc implements C6 of spec.md §4.6: request/reply correlation by
// request_id, a timeout heap, oneway delivery, and the slow-link pending
// counter, grounded on gcsfuse's bounded-worker-fan-out use of
// golang.org/x/sync and its pervasive context-based cancellation.
package rpc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/zfserr"
)

// RequestTimeout is the per-request deadline, spec.md §4.6 "REQUEST_TIMEOUT
// (15 s)".
const RequestTimeout = 15 * time.Second

// Handler answers an incoming REQUEST or ONEWAY packet. For a oneway
// packet the returned status/body are ignored.
type Handler func(ctx context.Context, fn codec.Function, body []byte) (status int32, reply []byte, err error)

// SlowTracker is satisfied by conn.Peer/conn.Manager: the slow-link
// pending-request bookkeeping of spec.md §4.6 lives in the connection
// layer, not here, so the dispatcher only needs to poke it.
type SlowTracker interface {
	IncPendingSlow()
	DecPendingSlow()
}

type pendingReq struct {
	deadline time.Time
	replyCh  chan reply
	index    int // timeout heap index
}

type reply struct {
	status int32
	body   []byte
	err    error
}

// Dispatcher multiplexes one fd's worth of in-flight requests, spec.md
// §4.6: "a hash table of in-flight requests keyed by request_id, a
// Fibonacci heap of request deadlines".
type Dispatcher struct {
	rw      io.ReadWriter
	handler Handler
	slow    SlowTracker // nil if this socket isn't SLOW-classified

	nextID uint32 // atomic

	mu      sync.Mutex
	pending map[uint32]*pendingReq
	heapD   deadlineHeap
	closed  bool
	closeErr error

	writeMu sync.Mutex

	bufPool *codec.BufferPool
}

// spareEncodeBuffers is the size of each Dispatcher's BufferPool, spec.md
// §4.6's "small pool of spare encode buffers".
const spareEncodeBuffers = 8

// New creates a dispatcher over rw (typically a net.Conn), answering
// incoming requests with handler.
func New(rw io.ReadWriter, handler Handler) *Dispatcher {
	return &Dispatcher{
		rw:      rw,
		handler: handler,
		pending: make(map[uint32]*pendingReq),
		bufPool: codec.NewBufferPool(spareEncodeBuffers),
	}
}

// SetSlowTracker attaches the peer's slow-link counter; calls to Call will
// bracket the RPC with Inc/DecPendingSlow while it is set.
func (d *Dispatcher) SetSlowTracker(s SlowTracker) {
	d.mu.Lock()
	d.slow = s
	d.mu.Unlock()
}

// Run drives the read loop and the timeout sweep concurrently until ctx is
// done or the connection errors, spec.md §4.6/§5.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.readLoop(ctx) })
	g.Go(func() error { return d.timeoutSweep(ctx) })
	return g.Wait()
}

func (d *Dispatcher) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.closeAll(zfserr.New("rpc: shutting down", zfserr.Exiting))
			return ctx.Err()
		default:
		}

		pkt, err := readPacket(d.rw)
		if err != nil {
			d.closeAll(zfserr.Wrap("rpc: read", zfserr.ConnectionClosed, err))
			return err
		}
		if err := d.dispatch(ctx, pkt); err != nil {
			slog.Warn("rpc: dispatch failed", "error", err)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, pkt []byte) error {
	buf := codec.NewDecoder(pkt)
	h, _, err := codec.DecodeHeader(buf)
	if err != nil {
		return fmt.Errorf("rpc: decode header: %w", err)
	}

	switch h.Direction {
	case codec.DirReply:
		d.deliverReply(h.RequestID, reply{status: h.Status, body: buf.Remainder()})
		return nil
	case codec.DirRequest:
		status, respBody, herr := d.handler(ctx, h.Function, buf.Remainder())
		if herr != nil {
			status = int32(zfserr.CodeOf(herr))
		}
		return d.sendReply(h.RequestID, status, respBody)
	case codec.DirOneway:
		_, _, herr := d.handler(ctx, h.Function, buf.Remainder())
		if herr != nil {
			slog.Warn("rpc: oneway handler failed", "function", h.Function, "error", herr)
		}
		return nil
	default:
		return fmt.Errorf("rpc: unknown direction %d", h.Direction)
	}
}

func (d *Dispatcher) deliverReply(id uint32, r reply) {
	d.mu.Lock()
	p, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
		d.heapD.remove(p)
	}
	d.mu.Unlock()

	if !ok {
		slog.Warn("rpc: reply for unknown request_id dropped", "request_id", id)
		return
	}
	p.replyCh <- r
}

// Call sends a REQUEST for fn with body, blocking until the reply arrives,
// the context is cancelled, or RequestTimeout elapses, spec.md §4.6.
func (d *Dispatcher) Call(ctx context.Context, fn codec.Function, body []byte) (int32, []byte, error) {
	id := atomic.AddUint32(&d.nextID, 1)

	b, err := d.bufPool.Acquire(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("rpc: acquire encode buffer: %w", err)
	}
	defer d.bufPool.Release(b)

	if err := codec.EncodeHeaderInto(b, codec.Header{Direction: codec.DirRequest, RequestID: id, Function: fn}); err != nil {
		return 0, nil, err
	}
	if err := b.WriteFixed(body); err != nil {
		return 0, nil, err
	}
	pkt, err := codec.FinishPacket(b)
	if err != nil {
		return 0, nil, err
	}

	p := &pendingReq{deadline: time.Now().Add(RequestTimeout), replyCh: make(chan reply, 1)}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, nil, d.closeErr
	}
	d.pending[id] = p
	d.heapD.push(p)
	d.mu.Unlock()

	if d.slow != nil {
		d.slow.IncPendingSlow()
		defer d.slow.DecPendingSlow()
	}

	if err := d.writePacket(pkt); err != nil {
		d.mu.Lock()
		delete(d.pending, id)
		d.heapD.remove(p)
		d.mu.Unlock()
		return 0, nil, err
	}

	select {
	case r := <-p.replyCh:
		return r.status, r.body, r.err
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, id)
		d.heapD.remove(p)
		d.mu.Unlock()
		return 0, nil, ctx.Err()
	}
}

// SendOneway fires fn with body without awaiting a reply, spec.md §4.6.
func (d *Dispatcher) SendOneway(fn codec.Function, body []byte) error {
	id := atomic.AddUint32(&d.nextID, 1)

	b, err := d.bufPool.Acquire(context.Background())
	if err != nil {
		return fmt.Errorf("rpc: acquire encode buffer: %w", err)
	}
	defer d.bufPool.Release(b)

	if err := codec.EncodeHeaderInto(b, codec.Header{Direction: codec.DirOneway, RequestID: id, Function: fn}); err != nil {
		return err
	}
	if err := b.WriteFixed(body); err != nil {
		return err
	}
	pkt, err := codec.FinishPacket(b)
	if err != nil {
		return err
	}
	return d.writePacket(pkt)
}

func (d *Dispatcher) sendReply(id uint32, status int32, body []byte) error {
	b, err := d.bufPool.Acquire(context.Background())
	if err != nil {
		return fmt.Errorf("rpc: acquire encode buffer: %w", err)
	}
	defer d.bufPool.Release(b)

	if err := codec.EncodeHeaderInto(b, codec.Header{Direction: codec.DirReply, RequestID: id, Status: status}); err != nil {
		return err
	}
	if status == int32(zfserr.OK) {
		if err := b.WriteFixed(body); err != nil {
			return err
		}
	}
	pkt, err := codec.FinishPacket(b)
	if err != nil {
		return err
	}
	return d.writePacket(pkt)
}

func (d *Dispatcher) writePacket(pkt []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.rw.Write(pkt)
	return err
}

// timeoutSweep scans the deadline heap once a second, completing any
// request older than RequestTimeout with REQUEST_TIMEOUT, spec.md §4.6.
func (d *Dispatcher) timeoutSweep(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.expireOlderThan(now)
		}
	}
}

func (d *Dispatcher) expireOlderThan(now time.Time) {
	var expired []*pendingReq
	d.mu.Lock()
	for d.heapD.Len() > 0 && d.heapD[0].deadline.Before(now) {
		p := d.heapD.pop()
		for id, pr := range d.pending {
			if pr == p {
				delete(d.pending, id)
				break
			}
		}
		expired = append(expired, p)
	}
	d.mu.Unlock()

	for _, p := range expired {
		p.replyCh <- reply{err: zfserr.New("rpc: request timed out", zfserr.RequestTimeout)}
	}
}

// closeAll completes every still-pending request with err, spec.md §4.6 "a
// fd marked closing completes all its pending requests with
// CONNECTION_CLOSED".
func (d *Dispatcher) closeAll(err error) {
	d.mu.Lock()
	d.closed = true
	d.closeErr = err
	pending := d.pending
	d.pending = make(map[uint32]*pendingReq)
	d.heapD = nil
	d.mu.Unlock()

	for _, p := range pending {
		p.replyCh <- reply{err: err}
	}
}

func readPacket(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < 4 || length > codec.MaxPacketSize {
		return nil, zfserr.New("rpc: packet length out of range", zfserr.RequestTooLong)
	}
	pkt := make([]byte, length)
	copy(pkt, lenBuf[:])
	if _, err := io.ReadFull(r, pkt[4:]); err != nil {
		return nil, err
	}
	return pkt, nil
}
