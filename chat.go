package vchat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vclabs/vchat-go/internal/connection"
	"github.com/vclabs/vchat-go/logger"
	"github.com/vclabs/vchat-go/sources"
	"github.com/vclabs/vchat-go/targets"
	"github.com/vclabs/vchat-go/wire"
)

// Caller contract violations. These are the only error class raised for
// out-of-order calls; runtime conditions never surface this way.
var (
	// ErrNotInitialized is returned by session operations before Init resolved.
	ErrNotInitialized = errors.New("chat not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("chat already initialized")
	// ErrChatClosed is returned by any operation after Close.
	ErrChatClosed = errors.New("chat closed")
)

// Transport failures surfaced from session operations.
var (
	// ErrTimeout reports that a request settled without a reply in time.
	ErrTimeout = errors.New("request timed out")
	// ErrNetwork reports that the transport failed to deliver a request.
	ErrNetwork = errors.New("network error")
)

// ServerError is an application-level rejection: the server answered, with a
// code and reason of its own.
type ServerError struct {
	Code   int
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server rejected request: code=%d reason=%q", e.Code, e.Reason)
}

type chatState int

const (
	stateCreated chatState = iota
	stateInitializing
	stateActive
	stateClosed
)

// Chat is one session with a remote host, from Init through Close. It owns
// exactly one Connection; closing the chat tears the connection down
// irrevocably.
type Chat struct {
	cfg Config
	log logger.Logger
	bus *bus

	mu        sync.Mutex
	state     chatState
	paused    bool
	abilities Abilities
	// singleMode, audioMuted and textMuted mirror the host-controlled
	// moderation state.
	singleMode bool
	audioMuted bool
	textMuted  bool
	intent     Intent
	limits     Limits
	host       HostInfo
	// values/altValues are the latest raw media descriptor fields; source
	// negotiation derives fresh SourceSets from them on demand.
	values    map[string]string
	altValues map[string]string
	streamCfg StreamConfig
	protocols []string

	uploadMediaURL string
	uploader       *uploader

	// videoLimit tracks the last video-limit warning pair so redundant
	// snapshots do not re-notify.
	videoLimitSeen  bool
	videoLimitBelow bool
	videoLimitMs    int64

	conn *connection.Connection
}

// New creates a chat session. handler may be nil when the caller subscribes
// through On instead.
func New(cfg Config, handler Handler) *Chat {
	log := cfg.Logger
	if log == nil {
		log = logger.Default
	}
	c := &Chat{
		cfg:       cfg,
		log:       log,
		bus:       newBus(),
		values:    map[string]string{},
		altValues: map[string]string{},
		protocols: sources.GetProtocols(cfg.Protocols, cfg.ExcludedProtocols),
	}
	attachHandler(c.bus, handler)
	return c
}

// On subscribes a callback for one notification type. Subscriptions and a
// Handler passed to New feed off the same internal bus.
func (c *Chat) On(t EventType, fn func(Event)) {
	c.bus.subscribe(t, fn)
}

// Init opens the connection, performs the session-init exchange and starts
// the heartbeat loop. It fails when the transport cannot be established or
// the server denies the session.
func (c *Chat) Init() (*InitResult, error) {
	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return nil, ErrChatClosed
	case stateInitializing, stateActive:
		c.mu.Unlock()
		return nil, ErrAlreadyInitialized
	}
	c.state = stateInitializing
	c.mu.Unlock()

	if c.cfg.AccessToken != "" {
		if info, err := InspectAccessToken(c.cfg.AccessToken); err == nil && info.Expired() {
			c.log.Warnf("access token expired at %s, the server will likely deny the session", info.ExpiresAt)
		}
	}

	conn := connection.New(connection.Config{
		ClientID:         c.cfg.ClientID,
		Host:             c.cfg.Host,
		ServletURL:       c.cfg.ControlServletURL,
		AccessToken:      c.cfg.AccessToken,
		ForceLongPolling: c.cfg.ForceLongPolling,
		NoopInterval:     c.cfg.NoopInterval,
		Logger:           c.log,
	})

	params := map[string]string{
		"version": c.cfg.Version,
	}
	if c.cfg.PlayerVersion != "" {
		params["playerVersion"] = c.cfg.PlayerVersion
	}
	if c.cfg.PauseSupport {
		params["pauseSupport"] = "1"
	}

	resp, err := roundTrip(conn, "init", params)
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = stateCreated
		c.mu.Unlock()
		return nil, fmt.Errorf("session init: %w", err)
	}

	result := c.adoptInitValues(resp.Values)

	c.mu.Lock()
	c.conn = conn
	c.state = stateActive
	c.mu.Unlock()

	conn.StartNoop(c.route)
	c.log.Logf("chat session initialized (transport=%s)", conn.Mode())
	return result, nil
}

// adoptInitValues maps the heterogeneous init reply into the typed session
// model. Missing or malformed fields degrade to zero values.
func (c *Chat) adoptInitValues(values map[string]string) *InitResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	mergeValues(c.values, c.altValues, values)

	c.intent = Intent{
		Video:   values["video"] == "1",
		Audio:   values["audio"] == "1",
		Text:    values["text"] == "1",
		Preview: values["preview"] == "1",
	}
	c.limits = Limits{
		Total:   secondsToMillis(values["limitTotal"]),
		Video:   secondsToMillis(values["limitVideo"]),
		Text:    secondsToMillis(values["limitText"]),
		Preview: secondsToMillis(values["limitPreview"]),
	}
	c.host = HostInfo{
		Name:     values["hostName"],
		ImageSrc: values["hostImage"],
	}
	c.uploadMediaURL = values["uploadMediaUrl"]

	// Initial abilities are adopted silently; notifications fire only on
	// later transitions.
	for key, name := range abilityKeys {
		if raw, ok := values[key]; ok {
			c.setAbility(name, raw == "1")
		}
	}

	result := &InitResult{Intent: c.intent, Limits: c.limits}
	return result
}

// Host returns the host descriptor announced at init.
func (c *Chat) Host() HostInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Abilities returns a snapshot of the current ability flags.
func (c *Chat) Abilities() Abilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abilities
}

// SingleMode reports whether the session is in private chat mode.
func (c *Chat) SingleMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.singleMode
}

// AudioMuted reports whether the host muted their microphone.
func (c *Chat) AudioMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioMuted
}

// TextMuted reports whether the host blocked guest messages.
func (c *Chat) TextMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textMuted
}

// Paused reports whether the session is paused awaiting a payment.
func (c *Chat) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// StartStream requests the stream-start parameters, merges them with the
// local stream configuration and returns the negotiated source set.
func (c *Chat) StartStream(cfg *StreamConfig) (sources.SourceSet, error) {
	if cfg != nil {
		c.mu.Lock()
		c.streamCfg = *cfg
		c.mu.Unlock()
	}

	params := map[string]string{}
	c.mu.Lock()
	if c.streamCfg.Type != "" {
		params["type"] = c.streamCfg.Type
	}
	c.mu.Unlock()

	resp, err := c.sendCommand("startStream", params)
	if err != nil {
		return sources.SourceSet{}, err
	}

	c.mu.Lock()
	mergeValues(c.values, c.altValues, resp.Values)
	set := sources.GetSourceSet(c.values, c.altValues, c.streamCfg, c.protocols)
	c.mu.Unlock()
	return set, nil
}

// StartText starts the text stream part of the chat. Without it the guest
// stays in voyeur mode.
func (c *Chat) StartText() error {
	_, err := c.sendCommand("startText", nil)
	return err
}

// StartUpstream starts the cam-to-cam direction and returns the negotiated
// upload targets.
func (c *Chat) StartUpstream() (targets.TargetSet, error) {
	resp, err := c.sendCommand("startUpstream", nil)
	if err != nil {
		return targets.TargetSet{}, err
	}
	return targets.Parse(resp.Values), nil
}

// StopUpstream stops the cam-to-cam direction.
func (c *Chat) StopUpstream() error {
	_, err := c.sendCommand("stopUpstream", nil)
	return err
}

// StartSingle requests the private chat mode.
func (c *Chat) StartSingle() error {
	_, err := c.sendCommand("startSingle", nil)
	return err
}

// SendMessage sends a guest message to the host. messageKey may be empty; a
// fresh key is generated so the backend can deduplicate redeliveries.
func (c *Chat) SendMessage(text, messageKey string) error {
	if messageKey == "" {
		messageKey = uuid.NewString()
	}
	_, err := c.sendCommand("sendMessage", map[string]string{
		"text":       text,
		"messageKey": messageKey,
	})
	return err
}

// SendQueryResponse answers a previously raised query.
func (c *Chat) SendQueryResponse(key, response string) error {
	_, err := c.sendCommand("queryResponse", map[string]string{
		"key":      key,
		"response": response,
	})
	return err
}

// SendTip triggers a tip of the given amount in cents. The remaining video
// limit is adjusted by the backend and announced via a limit update.
func (c *Chat) SendTip(amountCents int64) error {
	_, err := c.sendCommand("sendTip", map[string]string{
		"amount": strconv.FormatInt(amountCents, 10),
	})
	return err
}

// SendAudioState informs the host whether the guest can actually hear them.
func (c *Chat) SendAudioState(enabled bool) error {
	_, err := c.sendCommand("audioState", map[string]string{
		"enabled": boolValue(enabled),
	})
	return err
}

// SendCharge triggers a one-click payment of the given amount in cents.
func (c *Chat) SendCharge(amountCents int64) error {
	_, err := c.sendCommand("charge", map[string]string{
		"amount": strconv.FormatInt(amountCents, 10),
	})
	return err
}

// SendMetrics uploads diagnostic metrics. It is fire-and-forget: a best
// effort upload whose outcome nobody waits for.
func (c *Chat) SendMetrics(metrics map[string]string) {
	params := make(map[string]string, len(metrics)+1)
	for k, v := range metrics {
		params[k] = v
	}
	params["metricsId"] = uuid.NewString()

	c.mu.Lock()
	conn := c.conn
	active := c.state == stateActive
	c.mu.Unlock()
	if !active || conn == nil {
		return
	}
	if err := conn.Send("metrics", params, nil); err != nil {
		c.log.Warnf("metrics upload dropped: %v", err)
	}
}

// GetChargeInfo queries the one-click payment configuration. It is a pure
// query and mutates no session state.
func (c *Chat) GetChargeInfo() (*ChargeInfo, error) {
	resp, err := c.sendCommand("chargeInfo", nil)
	if err != nil {
		return nil, err
	}
	return parseChargeInfo(resp.Values), nil
}

// SendMediaFile uploads a binary media payload for the given message key.
func (c *Chat) SendMediaFile(data []byte, filename, messageKey string) (*UploadResult, error) {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil, ErrChatClosed
	}
	if c.state != stateActive {
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}
	url := c.uploadMediaURL
	if c.uploader == nil {
		c.uploader = newUploader(c.cfg.AccessToken)
	}
	up := c.uploader
	c.mu.Unlock()

	if url == "" {
		return &UploadResult{Successfull: false, Error: "no media upload endpoint announced"}, nil
	}
	return up.upload(url, data, filename, messageKey), nil
}

// Close ends the chat with the given exit code and tears down the connection.
// It is safe to call at any time; after the first call every operation fails
// with ErrChatClosed.
func (c *Chat) Close(code wire.ExitCode) error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	conn := c.conn
	c.conn = nil
	up := c.uploader
	c.uploader = nil
	c.mu.Unlock()

	if conn != nil {
		// Best effort: tell the server why we left before the transport goes.
		done := make(chan struct{})
		err := conn.Send("close", map[string]string{
			"exitCode": strconv.Itoa(int(code)),
		}, func(*wire.Response) { close(done) })
		if err == nil {
			<-done
		}
		conn.Close()
	}
	if up != nil {
		up.close()
	}

	c.stop(code, "")
	return nil
}

// stop raises the terminal chat-stop notification exactly once and silences
// the bus afterward.
func (c *Chat) stop(code wire.ExitCode, message string) {
	c.bus.emit(Event{Type: EventChatStop, ExitCode: code, ExitMessage: message})
	c.bus.close()
}

// sendCommand serializes one session action through the connection and
// resolves with the acknowledgment payload.
func (c *Chat) sendCommand(action string, params map[string]string) (*wire.Response, error) {
	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return nil, ErrChatClosed
	case stateCreated, stateInitializing:
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}
	conn := c.conn
	c.mu.Unlock()

	return roundTrip(conn, action, params)
}

// roundTrip performs one blocking exchange and maps failures onto the error
// taxonomy: sentinels become transport errors, OK=false becomes ServerError.
func roundTrip(conn *connection.Connection, action string, params map[string]string) (*wire.Response, error) {
	done := make(chan *wire.Response, 1)
	if err := conn.Send(action, params, func(resp *wire.Response) {
		done <- resp
	}); err != nil {
		return nil, ErrChatClosed
	}

	resp := <-done
	switch resp {
	case wire.Timeout:
		return nil, fmt.Errorf("%s: %w", action, ErrTimeout)
	case wire.NetworkError:
		return nil, fmt.Errorf("%s: %w", action, ErrNetwork)
	}
	if !resp.OK {
		return nil, &ServerError{Code: resp.Code, Reason: resp.Reason}
	}
	return resp, nil
}

// mergeValues folds a raw reply into the retained descriptor state. Fields
// prefixed "alt" describe the alternate host and land in av under their
// unprefixed name.
func mergeValues(vv, av, incoming map[string]string) {
	for k, v := range incoming {
		if stripped, ok := strings.CutPrefix(k, "alt"); ok && stripped != "" {
			av[lowerFirst(stripped)] = v
			continue
		}
		vv[k] = v
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// secondsToMillis normalizes a seconds-denominated wire value. Unparsable
// input degrades to zero.
func secondsToMillis(raw string) int64 {
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(secs * 1000)
}

func parseChargeInfo(values map[string]string) *ChargeInfo {
	info := &ChargeInfo{
		Available: values["chargeAvailable"] == "1",
		Currency:  values["chargeCurrency"],
		Amounts:   parseAmounts(values["chargeAmounts"]),
	}
	if raw := values["chargeAutoCharged"]; raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			info.AutoCharged = n
		}
	}
	// Additional currencies are encoded "USD:100,200;GBP:150".
	if raw := values["chargeAdditionalCurrencies"]; raw != "" {
		for _, part := range strings.Split(raw, ";") {
			currency, amounts, ok := strings.Cut(part, ":")
			if !ok || currency == "" {
				continue
			}
			info.AdditionalCurrencies = append(info.AdditionalCurrencies, CurrencyAmounts{
				Currency: currency,
				Amounts:  parseAmounts(amounts),
			})
		}
	}
	return info
}

func parseAmounts(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
