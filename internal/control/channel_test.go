package control

import (
	"net"
	"testing"
	"time"
)

func newPipeChannels(t *testing.T, cfg Config) (*Channel, *Channel, func()) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewChannel(a, cfg, nil)
	cb := NewChannel(b, cfg, nil)
	ca.Run()
	cb.Run()
	return ca, cb, func() {
		ca.Close()
		cb.Close()
	}
}

func TestChannelSendDispatchesToHandler(t *testing.T) {
	ca, cb, cleanup := newPipeChannels(t, Config{})
	defer cleanup()

	received := make(chan Envelope, 1)
	cb.OnMessage(MsgKeyframeRequest, func(e Envelope) {
		received <- e
	})

	want := KeyframeRequest{StreamID: 5}
	if err := ca.Send(Envelope{Type: MsgKeyframeRequest, Body: want.Encode()}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		decoded, err := DecodeKeyframeRequest(got.Body)
		if err != nil {
			t.Fatalf("DecodeKeyframeRequest: %v", err)
		}
		if decoded != want {
			t.Errorf("got %+v, want %+v", decoded, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched message")
	}
}

func TestChannelPingIsAnsweredWithPong(t *testing.T) {
	ca, cb, cleanup := newPipeChannels(t, Config{})
	defer cleanup()
	_ = cb

	if err := ca.Send(Envelope{Type: MsgPing, Body: []byte{1, 2, 3, 4, 5, 6, 7, 8}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for RTT to register")
		default:
		}
		if ca.RTT() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	ca, _, cleanup := newPipeChannels(t, Config{})
	defer cleanup()

	if err := ca.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ca.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !ca.IsClosed() {
		t.Fatal("expected IsClosed to be true after Close")
	}
}

func TestChannelSendAfterCloseFails(t *testing.T) {
	ca, _, cleanup := newPipeChannels(t, Config{})
	defer cleanup()

	ca.Close()
	if err := ca.Send(Envelope{Type: MsgBye}); err == nil {
		t.Fatal("expected Send after Close to fail")
	}
}

func TestChannelIdleTimeoutClosesConnection(t *testing.T) {
	// The peer side is deliberately never read from, so ca's keepalive
	// pings never complete and never refresh its own activity clock.
	cfg := Config{
		KeepAliveInterval: 20 * time.Millisecond,
		IdleTimeout:       50 * time.Millisecond,
	}
	errCh := make(chan error, 1)
	a, _ := net.Pipe()
	ca := NewChannel(a, cfg, func(err error) { errCh <- err })
	ca.Run()
	defer ca.Close()

	select {
	case <-errCh:
		if !ca.IsClosed() {
			t.Error("expected channel to be closed after idle timeout")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for idle timeout to fire")
	}
}
