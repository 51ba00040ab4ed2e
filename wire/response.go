package wire

import (
	"encoding/json"
	"fmt"
)

// Command is a server-originated protocol event. Commands arrive either
// piggybacked on a reply or as an unsolicited socket push.
type Command struct {
	// Command is the command name. An empty name is valid and routes to the
	// generic state-update path.
	Command string `json:"command"`
	// ID is server-assigned and unique within one session's command stream.
	// It is the deduplication key; commands without an ID are never deduped.
	ID string `json:"id"`
	// Values carries the command payload as flat key/value pairs.
	Values map[string]string `json:"values"`
}

// Response is one reply to one request or one heartbeat poll.
//
// A Response is immutable after Parse; routing code hands it to exactly one
// callback and then drops it.
type Response struct {
	// OK indicates application-level success. Transport failures are not
	// expressed through OK but through the Timeout/NetworkError sentinels.
	OK bool `json:"ok"`
	// Code is the server status code.
	Code int `json:"code"`
	// Reason is a human-readable annotation for failures.
	Reason string `json:"reason"`
	// Time is the server timestamp (milliseconds since epoch).
	Time int64 `json:"time"`
	// Values carries session/ability/limit fields as flat key/value pairs.
	Values map[string]string `json:"values"`
	// Commands are server-pushed events delivered inline with this reply,
	// in server order.
	Commands []Command `json:"commands"`
}

// Transport-failure sentinels. Callers must distinguish these from OK=false
// application failures; they carry no server-issued code.
var (
	// Timeout reports that a request settled without a reply in time.
	Timeout = &Response{Code: -1, Reason: "timeout"}
	// NetworkError reports that the transport failed to deliver a request.
	NetworkError = &Response{Code: -2, Reason: "network error"}
)

// IsSentinel reports whether r is one of the transport-failure sentinels.
func (r *Response) IsSentinel() bool {
	return r == Timeout || r == NetworkError
}

// Parse decodes one raw transport payload into a Response.
//
// Parse never panics and never returns an error: malformed input yields a
// Response with OK=false, a reason describing the parse failure and no
// commands. Upstream data problems are downgraded, not propagated.
func Parse(raw []byte) *Response {
	if len(raw) == 0 {
		return &Response{Reason: "empty response payload"}
	}
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return &Response{Reason: fmt.Sprintf("unparsable response payload: %v", err)}
	}
	if r.Values == nil {
		r.Values = map[string]string{}
	}
	return &r
}

// String renders a stable diagnostic summary for logging. It deliberately
// never includes Values, which may carry session secrets.
func (r *Response) String() string {
	return fmt.Sprintf("Response(ok=%t code=%d reason=%q time=%d commands=%d)",
		r.OK, r.Code, r.Reason, r.Time, len(r.Commands))
}
