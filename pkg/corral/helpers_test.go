package corral

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bhuisgen/corral/pkg/core"
	"github.com/bhuisgen/corral/pkg/log"
	"github.com/bhuisgen/corral/pkg/module"
)

const testTimeout = 5 * time.Second

// testPanic makes the test listener panic in Accept.
type testPanic string

func (p testPanic) Error() string {
	return string(p)
}

// testNetListener is an in-memory listening socket fed by its transport.
type testNetListener struct {
	conns     <-chan net.Conn
	errs      <-chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *testNetListener) Accept() (net.Conn, error) {
	select {
	case <-l.closed:
		return nil, &net.OpError{Op: "accept", Net: "test", Err: net.ErrClosed}
	default:
	}
	select {
	case <-l.closed:
		return nil, &net.OpError{Op: "accept", Net: "test", Err: net.ErrClosed}
	case conn := <-l.conns:
		return conn, nil
	case err := <-l.errs:
		var p testPanic
		if errors.As(err, &p) {
			panic(string(p))
		}
		return nil, err
	}
}

func (l *testNetListener) Close() error {
	err := net.ErrClosed
	l.closeOnce.Do(func() {
		close(l.closed)
		err = nil
	})
	return err
}

func (l *testNetListener) Addr() net.Addr {
	return testAddr("test")
}

type testAddr string

func (a testAddr) Network() string { return "test" }
func (a testAddr) String() string  { return string(a) }

// testTransport is a transport serving the connections pushed on conns.
type testTransport struct {
	conns      chan net.Conn
	errs       chan error
	listenErr  error
	handoffErr error
	listens    atomic.Int32
	closes     atomic.Int32
	handed     sync.Map
	mu         sync.Mutex
	listeners  []*testNetListener
}

func newTestTransport() *testTransport {
	return &testTransport{
		conns: make(chan net.Conn),
		errs:  make(chan error, 16),
	}
}

func (t *testTransport) ModuleInfo() module.ModuleInfo {
	return module.ModuleInfo{
		ID:          "transport.test",
		NewInstance: func() module.Module { return newTestTransport() },
	}
}

func (t *testTransport) Check(options map[string]interface{}) ([]string, error) {
	return nil, nil
}

func (t *testTransport) Listen(ctx context.Context, options map[string]interface{}) (net.Listener, error) {
	t.listens.Add(1)
	if t.listenErr != nil {
		return nil, t.listenErr
	}
	ln := &testNetListener{
		conns:  t.conns,
		errs:   t.errs,
		closed: make(chan struct{}),
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, ln)
	t.mu.Unlock()
	return ln, nil
}

func (t *testTransport) Accept(ln net.Listener) (net.Conn, error) {
	return ln.Accept()
}

func (t *testTransport) Handoff(conn net.Conn, handler core.Handler) error {
	if t.handoffErr != nil {
		return t.handoffErr
	}
	t.handed.Store(conn, true)
	return nil
}

func (t *testTransport) Close(ln net.Listener) error {
	t.closes.Add(1)
	return ln.Close()
}

func (t *testTransport) lastListener() *testNetListener {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.listeners) == 0 {
		return nil
	}
	return t.listeners[len(t.listeners)-1]
}

// dial pushes a new connection to the acceptors and returns the client side.
func (t *testTransport) dial(tb testing.TB) net.Conn {
	tb.Helper()
	client, server := net.Pipe()
	tb.Cleanup(func() { _ = client.Close() })
	select {
	case t.conns <- server:
	case <-time.After(testTimeout):
		tb.Fatal("no acceptor took the connection")
	}
	return client
}

var _ core.Transport = (*testTransport)(nil)

// testProtocol starts a testHandler for each connection.
type testProtocol struct {
	handlers   chan *testHandler
	startErr   error
	panicServe bool
	hold       bool
}

func newTestProtocol() *testProtocol {
	return &testProtocol{
		handlers: make(chan *testHandler, 1024),
	}
}

func (p *testProtocol) ModuleInfo() module.ModuleInfo {
	return module.ModuleInfo{
		ID:          "protocol.test",
		NewInstance: func() module.Module { return newTestProtocol() },
	}
}

func (p *testProtocol) Check(options map[string]interface{}) ([]string, error) {
	return nil, nil
}

func (p *testProtocol) StartHandler(conn net.Conn, options core.ProtocolOptions, ack *core.Handoff) (core.Handler, error) {
	if p.startErr != nil {
		return nil, p.startErr
	}
	h := &testHandler{
		protocol: p,
		conn:     conn,
		options:  options,
		ack:      ack,
		release:  make(chan struct{}),
		acked:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.handlers <- h
	return h, nil
}

func (p *testProtocol) next(tb testing.TB) *testHandler {
	tb.Helper()
	select {
	case h := <-p.handlers:
		return h
	case <-time.After(testTimeout):
		tb.Fatal("no handler started")
	}
	return nil
}

var _ core.Protocol = (*testProtocol)(nil)

// testHandler records what its connection went through.
type testHandler struct {
	protocol *testProtocol
	conn     net.Conn
	options  core.ProtocolOptions
	ack      *core.Handoff
	ackErr   error
	release  chan struct{}
	acked    chan struct{}
	done     chan struct{}
}

func (h *testHandler) Serve() error {
	defer close(h.done)

	h.ackErr = AcceptAck(h.ack)
	close(h.acked)
	if h.ackErr != nil {
		return h.ackErr
	}
	if h.protocol.panicServe {
		panic("handler failure")
	}
	if h.protocol.hold {
		<-h.release
	}
	return nil
}

func (h *testHandler) wait(tb testing.TB) {
	tb.Helper()
	select {
	case <-h.done:
	case <-time.After(testTimeout):
		tb.Fatal("handler did not return")
	}
}

func (h *testHandler) waitAck(tb testing.TB) {
	tb.Helper()
	select {
	case <-h.acked:
	case <-time.After(testTimeout):
		tb.Fatal("handoff not acknowledged")
	}
}

var _ core.Handler = (*testHandler)(nil)

// newTestManager creates a manager with a silent logger, a private registry
// and short restart delays.
func newTestManager(tb testing.TB) *Manager {
	tb.Helper()
	config := DefaultConfig()
	config.Logger = slog.New(log.NewHandler(io.Discard, "test", nil))
	config.Registerer = prometheus.NewRegistry()
	config.RestartBackoff = time.Millisecond
	config.MaxRestartBackoff = 5 * time.Millisecond
	m := NewManager(config)
	tb.Cleanup(m.StopAll)
	return m
}

func waitFor(tb testing.TB, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(tb testing.TB, l *Listener) {
	tb.Helper()
	select {
	case <-l.Done():
	case <-time.After(testTimeout):
		tb.Fatal("listener not stopped")
	}
}
