// Package vchat is the client-side session layer for a real-time audio/video
// chat service. It establishes a logical session with a remote host over a
// dual-mode transport (socket with a permanent long-polling fallback),
// negotiates the available media sources and carries the bidirectional
// low-latency command channel used for chat messages, ability and state
// updates, billing queries and moderation signals.
package vchat

import (
	"encoding/json"
	"time"

	"github.com/vclabs/vchat-go/logger"
	"github.com/vclabs/vchat-go/sources"
)

// Config carries the connection credentials and session options for one chat.
type Config struct {
	// ClientID is the credential returned by the server-side chat
	// initialization.
	ClientID string
	// Host is the chat server returned by the server-side initialization.
	Host string
	// ControlServletURL optionally overrides the fallback servlet endpoint.
	ControlServletURL string
	// AccessToken is an optional bearer token attached to transport auth.
	AccessToken string
	// ForceLongPolling skips the socket transport entirely.
	ForceLongPolling bool
	// Version identifies this client build (logging only).
	Version string
	// PlayerVersion identifies the embedding player build (logging only).
	PlayerVersion string
	// PauseSupport advertises that the caller handles pause/resume.
	PauseSupport bool
	// Protocols optionally restricts and orders the protocols to negotiate.
	Protocols []string
	// ExcludedProtocols removes protocols from the negotiated list.
	ExcludedProtocols []string
	// NoopInterval overrides the heartbeat base interval. Zero keeps the
	// default.
	NoopInterval time.Duration
	// Logger receives session diagnostics. Defaults to logger.Default.
	Logger logger.Logger
}

// Intent describes what the session was opened for.
type Intent struct {
	Video   bool `json:"video"`
	Audio   bool `json:"audio"`
	Text    bool `json:"text"`
	Preview bool `json:"preview"`
}

// Limits carries the remaining session time budgets, normalized to
// milliseconds (the wire encodes seconds).
type Limits struct {
	Total   int64 `json:"total"`
	Video   int64 `json:"video"`
	Text    int64 `json:"text"`
	Preview int64 `json:"preview"`
}

// Abilities are the boolean session capability flags. Each indicates whether
// the current stream offers a certain feature right now.
type Abilities struct {
	// Video reports whether the video stream can be started.
	Video bool `json:"video"`
	// Text reports whether the text stream can be started. When false the
	// guest stays in voyeur mode.
	Text bool `json:"text"`
	// Audio reports whether the sender offers audio at all.
	Audio bool `json:"audio"`
	// Preview reports whether a live preview can be started.
	Preview bool `json:"preview"`
	// Upstream reports whether the guest may start a cam-to-cam upstream.
	Upstream bool `json:"upstream"`
	// Single reports whether the guest may activate the private chat mode.
	Single bool `json:"single"`
	// Tip reports whether the guest may send a tip.
	Tip bool `json:"tip"`
}

// HostInfo describes the remote host as announced during initialization.
type HostInfo struct {
	Name     string `json:"name"`
	ImageSrc string `json:"imageSrc"`
}

// InitResult is what the session learned from the init exchange.
type InitResult struct {
	Intent Intent `json:"intent"`
	Limits Limits `json:"limits"`
}

// CurrencyAmounts lists possible one-click charge amounts for one currency.
type CurrencyAmounts struct {
	// Currency is the ISO currency code.
	Currency string `json:"currency"`
	// Amounts are possible amounts in cents.
	Amounts []int64 `json:"amounts"`
}

// ChargeInfo describes the one-click payment feature.
type ChargeInfo struct {
	// Available indicates the feature is available and activated.
	Available bool `json:"available"`
	// Amounts are possible amounts in cents.
	Amounts []int64 `json:"amounts"`
	// Currency is the primary ISO currency code.
	Currency string `json:"currency"`
	// AdditionalCurrencies lists amounts for further currencies.
	AdditionalCurrencies []CurrencyAmounts `json:"additionalCurrencies,omitempty"`
	// AutoCharged is the configured auto-charge amount, zero if none.
	AutoCharged int64 `json:"autoCharged"`
}

// QueryChoice is one option the guest may answer a query with.
type QueryChoice struct {
	Name    string          `json:"name"`
	Value   json.RawMessage `json:"value"`
	Default bool            `json:"def"`
}

// Query is a server question raised to the guest (for example a private chat
// request), answered via SendQueryResponse.
type Query struct {
	Key     string        `json:"key"`
	Caption string        `json:"caption"`
	Text    string        `json:"text"`
	// Timeout is the answer deadline in milliseconds.
	Timeout int64         `json:"timeout"`
	Choices []QueryChoice `json:"choices,omitempty"`
	// Price is an optional price in cents attached to the query.
	Price int64 `json:"price,omitempty"`
}

// UploadResult reports the outcome of a media upload.
type UploadResult struct {
	Successfull bool   `json:"successfull"`
	Error       string `json:"error,omitempty"`
}

// StreamConfig is re-exported so callers configure stream starts without
// importing the sources package directly.
type StreamConfig = sources.StreamConfig
