package vchat

import (
	"encoding/json"
	"strconv"

	"github.com/vclabs/vchat-go/sources"
	"github.com/vclabs/vchat-go/wire"
)

// Recognized command names. Anything else, including the empty name, routes
// to the generic state-update path; the protocol stays forward-compatible
// with servers that add commands this client does not understand.
const (
	cmdMessage = "message"
	cmdQuery   = "query"
	cmdStop    = "stop"
	cmdPause   = "pause"
	cmdResume  = "resume"
)

// abilityKeys maps the boolean-coded wire fields onto ability names.
var abilityKeys = map[string]string{
	"canVideo":    "video",
	"canText":     "text",
	"canAudio":    "audio",
	"canPreview":  "preview",
	"canUpstream": "upstream",
	"canSingle":   "single",
	"canTip":      "tip",
}

// limitKeys maps seconds-denominated wire fields onto limit parameters.
var limitKeys = map[string]string{
	"limit_total":   "total",
	"limit_video":   "video",
	"limit_text":    "text",
	"limit_preview": "preview",
}

// route consumes one inbound command batch. It runs on a connection
// goroutine; all state mutation happens under the session lock, all
// notifications fire after it is released.
func (c *Chat) route(cmds []wire.Command) {
	for _, cmd := range cmds {
		switch cmd.Command {
		case cmdMessage:
			c.handleMessage(cmd.Values)
		case cmdQuery:
			c.handleQuery(cmd.Values)
		case cmdStop:
			c.handleStop(cmd.Values)
		case cmdPause:
			c.handlePause()
		case cmdResume:
			c.handleResume(cmd.Values)
		default:
			c.handleUpdate(cmd.Values)
		}
	}
}

func (c *Chat) handleMessage(values map[string]string) {
	text := values["text"]
	if text == "" {
		text = values["message"]
	}
	c.bus.emit(Event{
		Type: EventMessage,
		Text: text,
		From: values["from"],
		Key:  values["key"],
	})
}

func (c *Chat) handleQuery(values map[string]string) {
	q := &Query{
		Key:     values["key"],
		Caption: values["caption"],
		Text:    values["text"],
		Timeout: secondsToMillis(values["timeout"]),
	}
	if raw := values["price"]; raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			q.Price = n
		}
	}
	if raw := values["choices"]; raw != "" {
		// Choices arrive as embedded JSON; a malformed list degrades to an
		// empty one rather than dropping the query.
		var choices []QueryChoice
		if err := json.Unmarshal([]byte(raw), &choices); err == nil {
			q.Choices = choices
		} else {
			c.log.Warnf("unparsable query choices: %v", err)
		}
	}
	c.bus.emit(Event{Type: EventQuery, Query: q})
}

// handleStop is a server-initiated close. The connection teardown happens on
// a separate goroutine: this code path runs inside the connection's delivery
// goroutine, which Close waits for.
func (c *Chat) handleStop(values map[string]string) {
	code := wire.ParseExitCode(values["exitCode"])

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		go conn.Close()
	}
	c.stop(code, values["message"])
}

func (c *Chat) handlePause() {
	c.mu.Lock()
	if c.state != stateActive || c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = true
	c.mu.Unlock()

	c.bus.emit(Event{Type: EventChatPause})
}

// handleResume clears the pause and hands the caller a freshly negotiated
// source set: the backend may have rotated media endpoints while paused.
func (c *Chat) handleResume(values map[string]string) {
	c.mu.Lock()
	if c.state != stateActive || !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	mergeValues(c.values, c.altValues, values)
	set := sources.GetSourceSet(c.values, c.altValues, c.streamCfg, c.protocols)
	c.mu.Unlock()

	c.bus.emit(Event{Type: EventChatResume, SourceSet: &set})
}

// handleUpdate applies a state snapshot. The central rule: a field only
// mutates state and raises its notification when the incoming value differs
// from the stored one, so redundant redelivery of the same snapshot stays
// silent. Unrecognized keys are swallowed.
func (c *Chat) handleUpdate(values map[string]string) {
	var events []Event

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}

	for key, name := range abilityKeys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		next := raw == "1"
		if c.ability(name) == next {
			continue
		}
		c.setAbility(name, next)
		events = append(events, Event{Type: EventAbilityUpdate, Name: name, Flag: next})
	}

	if raw, ok := values["isSingle"]; ok {
		if next := raw == "1"; next != c.singleMode {
			c.singleMode = next
			events = append(events, Event{Type: EventSingleModeUpdate, Flag: next})
		}
	}
	if raw, ok := values["audioMuted"]; ok {
		if next := raw == "1"; next != c.audioMuted {
			c.audioMuted = next
			events = append(events, Event{Type: EventAudioMuteUpdate, Flag: next})
		}
	}
	if raw, ok := values["textMuted"]; ok {
		if next := raw == "1"; next != c.textMuted {
			c.textMuted = next
			events = append(events, Event{Type: EventTextMuteUpdate, Flag: next})
		}
	}

	for key, name := range limitKeys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		ms := secondsToMillis(raw)
		if c.limit(name) == ms {
			continue
		}
		c.setLimit(name, ms)
		events = append(events, Event{Type: EventLimitUpdate, Name: name, Value: ms})
	}

	if raw, ok := values["videolimit_rest"]; ok {
		ms := secondsToMillis(raw)
		below := values["below_threshold"] == "1"
		if !c.videoLimitSeen || below != c.videoLimitBelow || ms != c.videoLimitMs {
			c.videoLimitSeen = true
			c.videoLimitBelow = below
			c.videoLimitMs = ms
			events = append(events, Event{Type: EventVideoLimitWarningUpdate, Flag: below, Value: ms})
		}
	}

	for key := range values {
		if !recognizedUpdateKey(key) {
			c.log.Logf("ignoring unrecognized update field %q", key)
		}
	}
	c.mu.Unlock()

	for _, e := range events {
		c.bus.emit(e)
	}
}

func recognizedUpdateKey(key string) bool {
	if _, ok := abilityKeys[key]; ok {
		return true
	}
	if _, ok := limitKeys[key]; ok {
		return true
	}
	switch key {
	case "isSingle", "audioMuted", "textMuted", "videolimit_rest", "below_threshold":
		return true
	}
	return false
}

// ability and setAbility bridge between wire field names and the typed flags.
// Callers hold the session lock.
func (c *Chat) ability(name string) bool {
	switch name {
	case "video":
		return c.abilities.Video
	case "text":
		return c.abilities.Text
	case "audio":
		return c.abilities.Audio
	case "preview":
		return c.abilities.Preview
	case "upstream":
		return c.abilities.Upstream
	case "single":
		return c.abilities.Single
	case "tip":
		return c.abilities.Tip
	}
	return false
}

func (c *Chat) setAbility(name string, value bool) {
	switch name {
	case "video":
		c.abilities.Video = value
	case "text":
		c.abilities.Text = value
	case "audio":
		c.abilities.Audio = value
	case "preview":
		c.abilities.Preview = value
	case "upstream":
		c.abilities.Upstream = value
	case "single":
		c.abilities.Single = value
	case "tip":
		c.abilities.Tip = value
	}
}

func (c *Chat) limit(name string) int64 {
	switch name {
	case "total":
		return c.limits.Total
	case "video":
		return c.limits.Video
	case "text":
		return c.limits.Text
	case "preview":
		return c.limits.Preview
	}
	return 0
}

func (c *Chat) setLimit(name string, ms int64) {
	switch name {
	case "total":
		c.limits.Total = ms
	case "video":
		c.limits.Video = ms
	case "text":
		c.limits.Text = ms
	case "preview":
		c.limits.Preview = ms
	}
}
