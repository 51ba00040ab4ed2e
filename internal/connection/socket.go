package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/vclabs/vchat-go/wire"
)

const (
	// socketPath is the engine endpoint path on the chat host.
	socketPath = "/v1/chat"
	// requestEvent carries outbound actions; the reply arrives as the ack.
	requestEvent = "request"
	// commandsEvent carries unsolicited server pushes.
	commandsEvent = "commands"
	// connectWait is how long socket setup may take before the connection
	// gives up and stays on long polling.
	connectWait = 5 * time.Second
)

// socketTransport dispatches requests over a Socket.IO channel. Replies use
// the built-in ack correlation; unsolicited command pushes are forwarded to
// the connection's inbound handler.
type socketTransport struct {
	mu      sync.Mutex
	sock    *socket.Socket
	timeout time.Duration
}

// openSocket establishes the socket channel. Any setup failure is returned
// so the connection can stay on the fallback transport.
func openSocket(cfg Config, inbound func(*wire.Response)) (*socketTransport, error) {
	opts := socket.DefaultOptions()
	opts.SetPath(socketPath)
	opts.SetTransports(types.NewSet(socket.WebSocket))

	auth := map[string]interface{}{
		"clientId": cfg.ClientID,
	}
	if cfg.AccessToken != "" {
		auth["token"] = cfg.AccessToken
	}
	opts.SetAuth(auth)

	sock, err := socket.Connect(strings.TrimRight(cfg.Host, "/"), opts)
	if err != nil {
		return nil, fmt.Errorf("socket connect: %w", err)
	}

	sock.On(types.EventName(commandsEvent), func(args ...any) {
		if len(args) == 0 {
			return
		}
		inbound(responseFromAny(args[0]))
	})

	t := &socketTransport{sock: sock, timeout: cfg.RequestTimeout}
	if !t.waitForConnect(connectWait) {
		t.close()
		return nil, errors.New("socket connect: not connected within deadline")
	}
	return t, nil
}

func (t *socketTransport) waitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if t.sock.Connected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return t.sock.Connected()
}

// emit dispatches one request and resolves the ack into finish. A returned
// error means the request never left and must be replayed elsewhere.
func (t *socketTransport) emit(req *request, finish func(*wire.Response)) error {
	t.mu.Lock()
	sock := t.sock
	t.mu.Unlock()

	if sock == nil || !sock.Connected() {
		return errors.New("socket not connected")
	}

	payload := map[string]interface{}{
		"action": req.action,
		"seq":    strconv.FormatUint(req.seq, 10),
	}
	if len(req.params) > 0 {
		payload["params"] = req.params
	}
	if len(req.acks) > 0 {
		payload["acks"] = strings.Join(req.acks, ",")
	}

	settled := make(chan *wire.Response, 1)
	sock.Emit(requestEvent, payload, func(args []any, err error) {
		if err != nil {
			settled <- wire.NetworkError
			return
		}
		if len(args) == 0 {
			settled <- wire.NetworkError
			return
		}
		settled <- responseFromAny(args[0])
	})

	go func() {
		select {
		case resp := <-settled:
			finish(resp)
		case <-time.After(t.timeout):
			finish(wire.Timeout)
		}
	}()
	return nil
}

func (t *socketTransport) close() {
	t.mu.Lock()
	sock := t.sock
	t.sock = nil
	t.mu.Unlock()

	if sock != nil {
		sock.Disconnect()
	}
}

// responseFromAny coerces a decoded Socket.IO payload back into a Response.
// Socket.IO hands handlers loosely typed maps; re-encoding through the wire
// parser keeps one tolerant decode path for both transports.
func responseFromAny(payload any) *wire.Response {
	raw, err := json.Marshal(payload)
	if err != nil {
		return wire.Parse(nil)
	}
	return wire.Parse(raw)
}
