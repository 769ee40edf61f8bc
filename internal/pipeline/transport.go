// Package pipeline wires the leaf components (capture, copier, pacing,
// encoder, fragment, wire, control, clientpath, discovery) into the two
// end-to-end actors described in spec §1 and §4: a host pipeline that
// drives capture through to outbound datagrams, and a client pipeline
// that drives inbound datagrams through to the render cache. It plays
// the same connection-lifecycle role the reference multiplexer's
// Manager plays over a transport.Transport, generalized from reliable
// streams to the unreliable, best-effort video datagram path plus one
// reliable control channel per peer.
package pipeline

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/cybergarage/go-logger/log"
)

// maxDatagramSize bounds one inbound read at 64 KiB, the same value as
// wire.MaxPayloadLen (so header plus payload must fit in it); UDP
// datagrams larger than this are not expected on this protocol.
const maxDatagramSize = 1 << 16

// DatagramSender delivers one already-encoded wire datagram. Sends are
// best-effort and non-blocking, matching spec §4.1's "never block the
// encoder completion path on network backpressure" rule — the same
// contract control.Channel.Send gives its reliable caller, except here
// a full queue drops the datagram instead of surfacing an error, since
// the video path tolerates loss by design.
type DatagramSender interface {
	Send(payload []byte)
	Dropped() uint64
}

// UDPSender is a DatagramSender backed by a net.PacketConn, queued
// through a single writer goroutine the way copier.Copier and
// encoder.Session each serialize their own single-resource access path.
type UDPSender struct {
	conn net.PacketConn
	dst  net.Addr

	queue   chan []byte
	dropped atomic.Uint64

	closeOnce sync.Once
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// NewUDPSender returns a UDPSender writing to dst over conn. queueDepth
// bounds the pending-write backlog before sends start dropping.
func NewUDPSender(conn net.PacketConn, dst net.Addr, queueDepth int) *UDPSender {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	s := &UDPSender{
		conn:      conn,
		dst:       dst,
		queue:     make(chan []byte, queueDepth),
		closeChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Send enqueues payload for writing. A full queue drops it immediately
// and increments the drop counter rather than applying backpressure to
// the caller, per spec §4.1.
func (s *UDPSender) Send(payload []byte) {
	select {
	case s.queue <- payload:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the running count of datagrams dropped for
// backpressure or write failure.
func (s *UDPSender) Dropped() uint64 { return s.dropped.Load() }

func (s *UDPSender) run() {
	defer s.wg.Done()
	for {
		select {
		case payload := <-s.queue:
			if _, err := s.conn.WriteTo(payload, s.dst); err != nil {
				s.dropped.Add(1)
				log.Debugf("pipeline: datagram write failed: %s", err.Error())
			}
		case <-s.closeChan:
			return
		}
	}
}

// Close stops the writer goroutine. The underlying conn is owned by the
// caller and is not closed here.
func (s *UDPSender) Close() {
	s.closeOnce.Do(func() { close(s.closeChan) })
	s.wg.Wait()
}

// DatagramHandler processes one inbound datagram on the receiver's own
// goroutine. Implementations must not block past their own decode work.
type DatagramHandler func(payload []byte, addr net.Addr)

// UDPReceiver runs a blocking read loop over a net.PacketConn, handing
// each datagram to a DatagramHandler.
type UDPReceiver struct {
	conn    net.PacketConn
	handler DatagramHandler

	closeOnce sync.Once
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// NewUDPReceiver returns a UDPReceiver. Call Start to begin reading.
func NewUDPReceiver(conn net.PacketConn, handler DatagramHandler) *UDPReceiver {
	return &UDPReceiver{conn: conn, handler: handler, closeChan: make(chan struct{})}
}

// Start launches the read loop. It returns immediately.
func (r *UDPReceiver) Start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *UDPReceiver) loop() {
	defer r.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-r.closeChan:
			return
		default:
		}

		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.closeChan:
				return
			default:
			}
			log.Debugf("pipeline: datagram read failed: %s", err.Error())
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		r.handler(payload, addr)
	}
}

// Stop closes the read loop by closing the underlying conn, which
// unblocks the pending ReadFrom. The caller retains ownership of conn
// and may Close it itself instead.
func (r *UDPReceiver) Stop() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
		r.conn.Close()
	})
	r.wg.Wait()
}
