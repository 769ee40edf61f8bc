package control

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cybergarage/go-logger/log"

	"github.com/nullbound/hevcstream/internal/errs"
)

// Handler processes one received Envelope on the channel's read loop. It
// must not block on network I/O; dispatch long work to another goroutine.
type Handler func(Envelope)

// Config tunes the keepalive and idle-disconnect behavior of a Channel.
type Config struct {
	KeepAliveInterval time.Duration
	IdleTimeout       time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
}

// DefaultConfig mirrors sensible defaults for a LAN control channel.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval: 5 * time.Second,
		IdleTimeout:       20 * time.Second,
	}
}

// deadlineConn is the subset of net.Conn a Channel needs; satisfied by
// net.Conn itself, narrowed here so tests can use an in-memory pipe.
type deadlineConn interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
}

// Channel is the reliable control-channel actor: one read loop, one
// write loop, one keepalive loop, adapted from an HTTP/2-style session
// actor but without streams, flow-control windows, or settings
// negotiation — this channel carries only whole envelopes.
type Channel struct {
	conn   deadlineConn
	config Config

	handlersMu sync.RWMutex
	handlers   map[MessageType]Handler

	writeMu   sync.Mutex
	writeChan chan Envelope
	closeChan chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	lastActivityNanos atomic.Int64
	pingSentNanos     atomic.Int64
	rttNanos          atomic.Int64

	onError func(error)

	wg sync.WaitGroup
}

// NewChannel wraps conn in a Channel. Call Run to start its loops.
func NewChannel(conn deadlineConn, config Config, onError func(error)) *Channel {
	c := &Channel{
		conn:      conn,
		config:    config,
		handlers:  make(map[MessageType]Handler),
		writeChan: make(chan Envelope, 64),
		closeChan: make(chan struct{}),
		onError:   onError,
	}
	c.lastActivityNanos.Store(time.Now().UnixNano())
	return c
}

// OnMessage registers the handler for MessageType t, replacing any prior
// registration. Must be called before Run, or be safe for concurrent
// dispatch if called after.
func (c *Channel) OnMessage(t MessageType, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[t] = h
}

// Run launches the read, write, and keepalive loops. It returns
// immediately; call Close to stop them.
func (c *Channel) Run() {
	c.wg.Add(3)
	go c.writeLoop()
	go c.readLoop()
	go c.keepAliveLoop()
}

// Send enqueues e for writing. It is non-blocking; a full write buffer
// or a closed channel both surface as a TransportError, matching the
// best-effort-but-countable treatment the core gives datagram sends,
// except here the error is surfaced because the control channel is
// reliable (spec §7).
func (c *Channel) Send(e Envelope) error {
	if c.closed.Load() {
		return errs.TransportError("control: channel is closed")
	}
	if e.Type == MsgPing {
		c.pingSentNanos.Store(time.Now().UnixNano())
	}
	select {
	case c.writeChan <- e:
		return nil
	case <-c.closeChan:
		return errs.TransportError("control: channel is closed")
	default:
		return errs.TransportError("control: write buffer full")
	}
}

// IsClosed reports whether Close has run.
func (c *Channel) IsClosed() bool { return c.closed.Load() }

// RTT returns the last measured ping round-trip time.
func (c *Channel) RTT() time.Duration { return time.Duration(c.rttNanos.Load()) }

// Close stops all loops and closes the underlying connection. Safe to
// call more than once or concurrently.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeChan)
		err = c.conn.Close()
	})
	c.wg.Wait()
	return err
}

func (c *Channel) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case e, ok := <-c.writeChan:
			if !ok {
				return
			}
			if c.config.WriteTimeout > 0 {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			}
			c.writeMu.Lock()
			err := WriteEnvelope(c.conn, e)
			c.writeMu.Unlock()
			if err != nil {
				c.handleError(errs.Wrap(errs.Transport, err, "control: write failed"))
				go c.Close()
				return
			}
			c.lastActivityNanos.Store(time.Now().UnixNano())
		case <-c.closeChan:
			return
		}
	}
}

func (c *Channel) readLoop() {
	defer c.wg.Done()
	for {
		if c.closed.Load() {
			return
		}
		if c.config.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		envelope, err := ReadEnvelope(c.conn)
		if err != nil {
			if !c.closed.Load() {
				c.handleError(errs.Wrap(errs.Transport, err, "control: read failed"))
				go c.Close()
			}
			return
		}
		c.lastActivityNanos.Store(time.Now().UnixNano())
		c.dispatch(envelope)
	}
}

func (c *Channel) dispatch(e Envelope) {
	switch e.Type {
	case MsgPing:
		c.Send(Envelope{Type: MsgPong, Body: e.Body})
		return
	case MsgPong:
		if sent := c.pingSentNanos.Load(); sent != 0 {
			c.rttNanos.Store(time.Now().UnixNano() - sent)
			c.pingSentNanos.Store(0)
		}
		return
	}

	c.handlersMu.RLock()
	h := c.handlers[e.Type]
	c.handlersMu.RUnlock()
	if h != nil {
		h(e)
	} else {
		log.Debugf("control: no handler registered for %s", e.Type)
	}
}

func (c *Channel) keepAliveLoop() {
	defer c.wg.Done()
	if c.config.KeepAliveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, c.lastActivityNanos.Load())
			if c.config.IdleTimeout > 0 && time.Since(last) >= c.config.IdleTimeout {
				c.handleError(errs.TransportError("control: idle timeout"))
				go c.Close()
				return
			}
			if time.Since(last) >= c.config.KeepAliveInterval {
				c.pingSentNanos.Store(time.Now().UnixNano())
				if err := c.Send(Envelope{Type: MsgPing, Body: []byte{0, 0, 0, 0, 0, 0, 0, 0}}); err != nil {
					return
				}
			}
		case <-c.closeChan:
			return
		}
	}
}

func (c *Channel) handleError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}
