package vchat

import (
	"github.com/vclabs/vchat-go/sources"
	"github.com/vclabs/vchat-go/wire"
)

// Handler is the typed callback surface for session notifications. Pass an
// implementation to New, or use On for per-event subscriptions; both feed off
// the same internal bus. Embed BaseHandler to implement only a subset.
type Handler interface {
	// OnChatStop fires once when the chat ends, with the close reason.
	OnChatStop(code wire.ExitCode, exitMessage string)
	// OnChatPause fires when the chat pauses after a time limit was hit
	// while one-click payment is enabled.
	OnChatPause()
	// OnChatResume fires when a payment resumes a paused chat, with the
	// then-current source set.
	OnChatResume(set sources.SourceSet)
	// OnMessage delivers a chat message from the host side.
	OnMessage(text, from, key string)
	// OnAbilityUpdate fires when a single ability flips.
	OnAbilityUpdate(name string, value bool)
	// OnQuery delivers a server question (like a private chat request).
	OnQuery(q Query)
	// OnSingleModeUpdate fires when private mode is entered or left.
	OnSingleModeUpdate(value bool)
	// OnTextMuteUpdate fires when the host blocks or unblocks guest text.
	OnTextMuteUpdate(value bool)
	// OnAudioMuteUpdate fires when the host mutes or unmutes their audio.
	OnAudioMuteUpdate(value bool)
	// OnLimitUpdate fires when a time limit changes; value is milliseconds.
	OnLimitUpdate(param string, value int64)
	// OnVideoLimitWarningUpdate fires when the remaining video time crosses
	// the warning threshold; value is milliseconds.
	OnVideoLimitWarningUpdate(belowThreshold bool, value int64)
}

// BaseHandler is a no-op Handler for embedding.
type BaseHandler struct{}

func (BaseHandler) OnChatStop(wire.ExitCode, string) {}

func (BaseHandler) OnChatPause() {}

func (BaseHandler) OnChatResume(sources.SourceSet) {}

func (BaseHandler) OnMessage(string, string, string) {}

func (BaseHandler) OnAbilityUpdate(string, bool) {}

func (BaseHandler) OnQuery(Query) {}

func (BaseHandler) OnSingleModeUpdate(bool) {}

func (BaseHandler) OnTextMuteUpdate(bool) {}

func (BaseHandler) OnAudioMuteUpdate(bool) {}

func (BaseHandler) OnLimitUpdate(string, int64) {}

func (BaseHandler) OnVideoLimitWarningUpdate(bool, int64) {}

var _ Handler = BaseHandler{}

// attachHandler subscribes a Handler's methods to the bus.
func attachHandler(b *bus, h Handler) {
	if h == nil {
		return
	}
	b.subscribe(EventChatStop, func(e Event) { h.OnChatStop(e.ExitCode, e.ExitMessage) })
	b.subscribe(EventChatPause, func(e Event) { h.OnChatPause() })
	b.subscribe(EventChatResume, func(e Event) {
		if e.SourceSet != nil {
			h.OnChatResume(*e.SourceSet)
		}
	})
	b.subscribe(EventMessage, func(e Event) { h.OnMessage(e.Text, e.From, e.Key) })
	b.subscribe(EventAbilityUpdate, func(e Event) { h.OnAbilityUpdate(e.Name, e.Flag) })
	b.subscribe(EventQuery, func(e Event) {
		if e.Query != nil {
			h.OnQuery(*e.Query)
		}
	})
	b.subscribe(EventSingleModeUpdate, func(e Event) { h.OnSingleModeUpdate(e.Flag) })
	b.subscribe(EventTextMuteUpdate, func(e Event) { h.OnTextMuteUpdate(e.Flag) })
	b.subscribe(EventAudioMuteUpdate, func(e Event) { h.OnAudioMuteUpdate(e.Flag) })
	b.subscribe(EventLimitUpdate, func(e Event) { h.OnLimitUpdate(e.Name, e.Value) })
	b.subscribe(EventVideoLimitWarningUpdate, func(e Event) { h.OnVideoLimitWarningUpdate(e.Flag, e.Value) })
}
