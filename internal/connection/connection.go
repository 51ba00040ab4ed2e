// Package connection owns the command-protocol transport for one chat
// session: a socket channel with a permanent long-polling fallback, request
// correlation, command deduplication with piggybacked acknowledgments and the
// heartbeat loop that keeps the fallback path alive.
package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/vclabs/vchat-go/logger"
	"github.com/vclabs/vchat-go/wire"
)

// ErrConnectionClosed is returned by Send after Close. Issuing requests on a
// closed connection is a caller contract violation, not a runtime condition.
var ErrConnectionClosed = errors.New("connection closed")

// mode is the transport state. Transitions are forward-only: a connection
// downgrades socket -> fallback at most once and never resumes the socket.
type mode int32

const (
	modeSocket mode = iota
	modeFallback
	modeClosed
)

func (m mode) String() string {
	switch m {
	case modeSocket:
		return "socket"
	case modeFallback:
		return "fallback"
	default:
		return "closed"
	}
}

const (
	// defaultNoopInterval bounds worst-case inbound latency in fallback mode.
	defaultNoopInterval = time.Second
	// maxNoopInterval is the backoff ceiling for heartbeat retries.
	maxNoopInterval = 30 * time.Second
	// defaultRequestTimeout is the per-request round-trip budget.
	defaultRequestTimeout = 15 * time.Second
	// fallbackQueueSize bounds outbound requests waiting for the poll worker.
	fallbackQueueSize = 64
)

// Config describes one logical channel to one host for one session.
type Config struct {
	// ClientID is the session credential issued by the chat initialization.
	ClientID string
	// Host is the base URL of the chat server.
	Host string
	// ServletURL optionally overrides the fallback servlet endpoint.
	ServletURL string
	// AccessToken is an optional bearer token attached to transport auth.
	AccessToken string
	// ForceLongPolling skips the socket transport entirely.
	ForceLongPolling bool
	// NoopInterval overrides the heartbeat base interval (tests).
	NoopInterval time.Duration
	// RequestTimeout overrides the per-request budget.
	RequestTimeout time.Duration
	// Logger receives transport diagnostics. Defaults to logger.Nop.
	Logger logger.Logger
}

// request is one outbound action with its correlation number and the
// acknowledgments riding along.
type request struct {
	action string
	params map[string]string
	seq    uint64
	acks   []string
	cb     func(*wire.Response)
}

// socketSender is the push transport. Implemented by the socket.io client
// wrapper; faked in tests.
type socketSender interface {
	// emit dispatches a request and eventually calls finish with the reply
	// or a transport sentinel. A non-nil error means the request never left
	// and must be replayed on the fallback transport.
	emit(req *request, finish func(*wire.Response)) error
	close()
}

// roundTripper is one blocking fallback exchange. Implemented over HTTP;
// faked in tests.
type roundTripper interface {
	// roundTrip never returns nil; transport failures come back as the
	// wire.Timeout / wire.NetworkError sentinels.
	roundTrip(req *request, clientID, instanceID string) *wire.Response
	close()
}

// Connection carries the command protocol for one session.
type Connection struct {
	cfg Config
	log logger.Logger

	mu         sync.Mutex
	mode       mode
	counter    uint64
	instanceID string
	// processed holds every command id already delivered to the caller. It
	// is unbounded on purpose: sessions are short-lived, and the set is what
	// makes redelivered poll replies harmless.
	processed map[string]struct{}
	// acks are command ids to confirm on the next outbound request so the
	// server can drop them from its redelivery queue.
	acks            []string
	commandsHandler func([]wire.Command)
	noopActive      bool

	sock socketSender
	rt   roundTripper

	fallbackQueue chan *request
	stopCh        chan struct{}
	closeOnce     sync.Once
	workerDone    chan struct{}
}

// New opens a connection for the given session credentials. The socket
// transport is attempted unless ForceLongPolling is set; failure to establish
// it is not an error, it just starts the connection in fallback mode.
func New(cfg Config) *Connection {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop
	}
	if cfg.NoopInterval <= 0 {
		cfg.NoopInterval = defaultNoopInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	c := &Connection{
		cfg:           cfg,
		log:           cfg.Logger,
		mode:          modeFallback,
		processed:     make(map[string]struct{}),
		rt:            newHTTPRoundTripper(cfg),
		fallbackQueue: make(chan *request, fallbackQueueSize),
		stopCh:        make(chan struct{}),
		workerDone:    make(chan struct{}),
	}

	go c.fallbackWorker()

	if !cfg.ForceLongPolling {
		sock, err := openSocket(cfg, c.handleInbound)
		if err != nil {
			c.log.Warnf("socket transport unavailable, staying on long polling: %v", err)
		} else {
			c.sock = sock
			c.mode = modeSocket
		}
	}
	return c
}

// newForTest wires fake transports. Used by package tests only.
func newForTest(cfg Config, sock socketSender, rt roundTripper) *Connection {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop
	}
	if cfg.NoopInterval <= 0 {
		cfg.NoopInterval = defaultNoopInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	c := &Connection{
		cfg:           cfg,
		log:           cfg.Logger,
		mode:          modeFallback,
		processed:     make(map[string]struct{}),
		sock:          sock,
		rt:            rt,
		fallbackQueue: make(chan *request, fallbackQueueSize),
		stopCh:        make(chan struct{}),
		workerDone:    make(chan struct{}),
	}
	if sock != nil {
		c.mode = modeSocket
	}
	go c.fallbackWorker()
	return c
}

// Mode reports the current transport state.
func (c *Connection) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode.String()
}

// Send enqueues one request. The callback receives the eventual reply; a
// transport failure is delivered as the wire.Timeout or wire.NetworkError
// sentinel, never as a raised error. Pending acknowledgments ride along.
func (c *Connection) Send(action string, params map[string]string, cb func(*wire.Response)) error {
	c.mu.Lock()
	if c.mode == modeClosed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.counter++
	req := &request{
		action: action,
		params: params,
		seq:    c.counter,
		acks:   c.acks,
		cb:     cb,
	}
	c.acks = nil
	overSocket := c.mode == modeSocket
	c.mu.Unlock()

	if overSocket {
		if err := c.sock.emit(req, func(resp *wire.Response) { c.finish(req, resp) }); err != nil {
			c.log.Warnf("socket dispatch failed for %q, downgrading to long polling: %v", action, err)
			c.downgrade()
			c.enqueueFallback(req)
		}
		return nil
	}

	c.enqueueFallback(req)
	return nil
}

// StartNoop begins the heartbeat loop. Every reply's commands are fed to
// handler in arrival order; in fallback mode this is the only inbound
// channel, so the interval bounds worst-case command latency. Repeated
// transport failures back off exponentially up to a ceiling and never
// terminate the session on their own.
func (c *Connection) StartNoop(handler func([]wire.Command)) {
	c.mu.Lock()
	if c.mode == modeClosed || c.noopActive {
		c.mu.Unlock()
		return
	}
	c.noopActive = true
	c.commandsHandler = handler
	c.mu.Unlock()

	go c.noopLoop()
}

// Close tears the connection down. It is idempotent: the heartbeat loop and
// the fallback worker are stopped exactly once, queued requests settle with
// wire.NetworkError and every later Send fails with ErrConnectionClosed.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.mode = modeClosed
		sock := c.sock
		c.sock = nil
		c.mu.Unlock()

		close(c.stopCh)
		if sock != nil {
			sock.close()
		}
		<-c.workerDone
		if c.rt != nil {
			c.rt.close()
		}
	})
}

// downgrade performs the one-way socket -> fallback transition.
func (c *Connection) downgrade() {
	c.mu.Lock()
	if c.mode != modeSocket {
		c.mu.Unlock()
		return
	}
	c.mode = modeFallback
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		sock.close()
	}
}

func (c *Connection) enqueueFallback(req *request) {
	select {
	case c.fallbackQueue <- req:
	case <-c.stopCh:
		c.finish(req, wire.NetworkError)
		return
	default:
		// Queue full: the session is issuing requests far faster than the
		// transport can drain them. Fail the request instead of blocking.
		c.finish(req, wire.NetworkError)
		return
	}

	// A Send racing Close can win the enqueue after the worker already
	// exited, leaving the request in a queue nobody drains. Re-checking the
	// stop signal after the enqueue closes that window: whichever of the
	// worker and this path observes the shutdown drains and settles.
	select {
	case <-c.stopCh:
		c.rejectQueued()
	default:
	}
}

// fallbackWorker drains outbound requests one at a time, preserving call
// order on the polling transport.
func (c *Connection) fallbackWorker() {
	defer close(c.workerDone)
	for {
		select {
		case <-c.stopCh:
			c.rejectQueued()
			return
		case req := <-c.fallbackQueue:
			c.mu.Lock()
			clientID, instanceID := c.cfg.ClientID, c.instanceID
			c.mu.Unlock()
			resp := c.rt.roundTrip(req, clientID, instanceID)
			c.finish(req, resp)
		}
	}
}

func (c *Connection) rejectQueued() {
	for {
		select {
		case req := <-c.fallbackQueue:
			c.finish(req, wire.NetworkError)
		default:
			return
		}
	}
}

// finish routes one reply: failed requests get their acks re-queued for the
// next attempt, successful ones have their piggybacked commands deduplicated
// and delivered, then the correlated callback fires.
func (c *Connection) finish(req *request, resp *wire.Response) {
	if resp == nil {
		resp = wire.NetworkError
	}

	if resp.IsSentinel() {
		if len(req.acks) > 0 {
			c.mu.Lock()
			c.acks = append(c.acks, req.acks...)
			c.mu.Unlock()
		}
		c.settle(req, resp)
		return
	}

	if resp.Values["instanceId"] != "" {
		c.mu.Lock()
		if c.instanceID == "" {
			c.instanceID = resp.Values["instanceId"]
		}
		c.mu.Unlock()
	}

	c.deliverCommands(resp.Commands)
	c.settle(req, resp)
}

func (c *Connection) settle(req *request, resp *wire.Response) {
	if req.cb != nil {
		req.cb(resp)
	}
}

// handleInbound accepts unsolicited socket pushes.
func (c *Connection) handleInbound(resp *wire.Response) {
	if resp == nil || resp.IsSentinel() {
		return
	}
	c.deliverCommands(resp.Commands)
}

// deliverCommands drops already-seen command ids, records the fresh ones for
// acknowledgment and hands the remainder to the registered handler in order.
// The fallback transport may redeliver a command still in the server's
// outbound queue before the prior ack was processed; this is where that
// becomes harmless.
func (c *Connection) deliverCommands(cmds []wire.Command) {
	if len(cmds) == 0 {
		return
	}

	c.mu.Lock()
	if c.mode == modeClosed {
		c.mu.Unlock()
		return
	}
	handler := c.commandsHandler
	if handler == nil {
		// No handler registered yet (replies can settle before StartNoop).
		// Leave the commands unrecorded and unacknowledged so the server
		// redelivers them once a handler exists.
		c.mu.Unlock()
		return
	}
	fresh := make([]wire.Command, 0, len(cmds))
	for _, cmd := range cmds {
		if cmd.ID != "" {
			if _, seen := c.processed[cmd.ID]; seen {
				c.log.Logf("dropping redelivered command %s (%s)", cmd.ID, cmd.Command)
				continue
			}
			c.processed[cmd.ID] = struct{}{}
			c.acks = append(c.acks, cmd.ID)
		}
		fresh = append(fresh, cmd)
	}
	c.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	handler(fresh)
}

// noopLoop issues the heartbeat request at the configured interval, widening
// the interval exponentially while the transport keeps failing.
func (c *Connection) noopLoop() {
	interval := c.cfg.NoopInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-timer.C:
		}

		done := make(chan *wire.Response, 1)
		err := c.Send("noop", nil, func(resp *wire.Response) {
			done <- resp
		})
		if err != nil {
			return
		}

		select {
		case <-c.stopCh:
			return
		case resp := <-done:
			if resp.IsSentinel() {
				interval = minDuration(interval*2, maxNoopInterval)
				c.log.Warnf("heartbeat failed (%s), next attempt in %s", resp.Reason, interval)
			} else {
				interval = c.cfg.NoopInterval
			}
		}
		timer.Reset(interval)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
