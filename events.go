package vchat

import (
	"sync"

	"github.com/vclabs/vchat-go/sources"
	"github.com/vclabs/vchat-go/wire"
)

// EventType names a session notification.
type EventType string

const (
	EventChatStop                EventType = "chatStop"
	EventChatPause               EventType = "chatPause"
	EventChatResume              EventType = "chatResume"
	EventMessage                 EventType = "message"
	EventAbilityUpdate           EventType = "abilityUpdate"
	EventQuery                   EventType = "query"
	EventSingleModeUpdate        EventType = "singleModeUpdate"
	EventTextMuteUpdate          EventType = "textMuteUpdate"
	EventAudioMuteUpdate         EventType = "audioMuteUpdate"
	EventLimitUpdate             EventType = "limitUpdate"
	EventVideoLimitWarningUpdate EventType = "videoLimitWarningUpdate"
)

// Event is one session notification. Only the fields relevant for the given
// Type are populated.
type Event struct {
	Type EventType

	// ExitCode and ExitMessage accompany EventChatStop.
	ExitCode    wire.ExitCode
	ExitMessage string

	// SourceSet accompanies EventChatResume.
	SourceSet *sources.SourceSet

	// Text, From and Key accompany EventMessage.
	Text string
	From string
	Key  string

	// Name is the ability or limit parameter for update events.
	Name string
	// Flag carries boolean update values (ability, mute, single mode,
	// below-threshold).
	Flag bool
	// Value carries numeric update values, normalized to milliseconds.
	Value int64

	// Query accompanies EventQuery.
	Query *Query
}

// bus is the single internal dispatch path for notifications. The Handler
// adapter and the On subscription API are both façades over it.
type bus struct {
	mu     sync.Mutex
	subs   map[EventType][]func(Event)
	closed bool
}

func newBus() *bus {
	return &bus{subs: make(map[EventType][]func(Event))}
}

func (b *bus) subscribe(t EventType, fn func(Event)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.subs[t] = append(b.subs[t], fn)
}

// emit dispatches synchronously in subscription order. After close, emit is
// a no-op, which is what suppresses state notifications from stale in-flight
// responses settling after the session ended.
func (b *bus) emit(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	listeners := append(([]func(Event))(nil), b.subs[e.Type]...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}

func (b *bus) close() {
	b.mu.Lock()
	b.closed = true
	b.subs = nil
	b.mu.Unlock()
}
