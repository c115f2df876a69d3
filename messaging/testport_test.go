package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// pipePort is a minimal in-memory Port: two linked ends over buffered
// channels, the test-side stand-in for a real transport pair.
type pipePort struct {
	in     chan Delivery
	peer   *pipePort
	mu     sync.Mutex
	closed bool
}

func newPipe() (*pipePort, *pipePort) {
	a := &pipePort{in: make(chan Delivery, 16)}
	b := &pipePort{in: make(chan Delivery, 16)}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipePort) Send(ctx context.Context, data []byte) error {
	return p.peer.push(Delivery{Data: data})
}

func (p *pipePort) SendPort(ctx context.Context, data []byte, port Port, expectedOrigin string) error {
	return p.peer.push(Delivery{Data: data, Port: port})
}

func (p *pipePort) push(d Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("pipe closed")
	}
	p.in <- d
	return nil
}

func (p *pipePort) Deliveries() <-chan Delivery {
	return p.in
}

func (p *pipePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.in)
	}
	return nil
}

// pipePairer mints pipe pairs for Connect.
type pipePairer struct{}

func (pipePairer) NewPair(ctx context.Context) (Port, Port, error) {
	a, b := newPipe()
	return a, b, nil
}

// fakeBroadcast is a broadcast port the test injects deliveries into.
type fakeBroadcast struct {
	deliveries chan Delivery
}

func newFakeBroadcast() *fakeBroadcast {
	return &fakeBroadcast{deliveries: make(chan Delivery, 16)}
}

func (f *fakeBroadcast) Send(ctx context.Context, data []byte) error {
	return nil
}

func (f *fakeBroadcast) SendPort(ctx context.Context, data []byte, port Port, expectedOrigin string) error {
	return nil
}

func (f *fakeBroadcast) Deliveries() <-chan Delivery {
	return f.deliveries
}

func (f *fakeBroadcast) Close() error {
	close(f.deliveries)
	return nil
}

// bridgePort forwards SendPort transmissions into a broadcast inbox, tagged
// with a fixed sender origin. It plays the initiator-visible handle of a
// listener context.
type bridgePort struct {
	into   *fakeBroadcast
	origin string
}

func (b *bridgePort) Send(ctx context.Context, data []byte) error {
	b.into.deliveries <- Delivery{Data: data, Origin: b.origin}
	return nil
}

func (b *bridgePort) SendPort(ctx context.Context, data []byte, port Port, expectedOrigin string) error {
	b.into.deliveries <- Delivery{Data: data, Origin: b.origin, Port: port}
	return nil
}

func (b *bridgePort) Deliveries() <-chan Delivery { return nil }

func (b *bridgePort) Close() error { return nil }

// captureTarget records the one SendPort call Connect makes.
type captureTarget struct {
	mu             sync.Mutex
	data           []byte
	attached       Port
	expectedOrigin string
	sent           chan struct{}
	fail           error
}

func newCaptureTarget() *captureTarget {
	return &captureTarget{sent: make(chan struct{})}
}

func (t *captureTarget) Send(ctx context.Context, data []byte) error { return nil }

func (t *captureTarget) SendPort(ctx context.Context, data []byte, port Port, expectedOrigin string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.data = data
	t.attached = port
	t.expectedOrigin = expectedOrigin
	close(t.sent)
	return nil
}

func (t *captureTarget) Deliveries() <-chan Delivery { return nil }

func (t *captureTarget) Close() error { return nil }

// waitDelivery pulls one delivery or fails the test after a second.
func waitDelivery(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

// assertNoDelivery verifies the channel stays quiet for the given window.
func assertNoDelivery(t *testing.T, ch <-chan Delivery, window time.Duration) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("unexpected delivery: %q", d.Data)
	case <-time.After(window):
	}
}

// waitErr pulls a result from a goroutine running a blocking call.
func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
		return nil
	}
}
