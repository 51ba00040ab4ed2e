package vchat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vclabs/vchat-go/logger"
	"github.com/vclabs/vchat-go/sources"
	"github.com/vclabs/vchat-go/wire"
)

// recorder captures every Handler invocation for assertions.
type recorder struct {
	mu sync.Mutex

	stops        []wire.ExitCode
	stopMessages []string
	pauses       int
	resumes      []sources.SourceSet
	messages     [][3]string
	abilities    []abilityCall
	queries      []Query
	singleMode   []bool
	textMute     []bool
	audioMute    []bool
	limits       []limitCall
	videoLimits  []videoLimitCall
}

type abilityCall struct {
	name  string
	value bool
}

type limitCall struct {
	param string
	value int64
}

type videoLimitCall struct {
	below bool
	value int64
}

func (r *recorder) OnChatStop(code wire.ExitCode, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, code)
	r.stopMessages = append(r.stopMessages, msg)
}

func (r *recorder) OnChatPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses++
}

func (r *recorder) OnChatResume(set sources.SourceSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes = append(r.resumes, set)
}

func (r *recorder) OnMessage(text, from, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, [3]string{text, from, key})
}

func (r *recorder) OnAbilityUpdate(name string, value bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abilities = append(r.abilities, abilityCall{name, value})
}

func (r *recorder) OnQuery(q Query) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
}

func (r *recorder) OnSingleModeUpdate(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singleMode = append(r.singleMode, v)
}

func (r *recorder) OnTextMuteUpdate(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textMute = append(r.textMute, v)
}

func (r *recorder) OnAudioMuteUpdate(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioMute = append(r.audioMute, v)
}

func (r *recorder) OnLimitUpdate(param string, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = append(r.limits, limitCall{param, value})
}

func (r *recorder) OnVideoLimitWarningUpdate(below bool, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videoLimits = append(r.videoLimits, videoLimitCall{below, value})
}

// activeChat builds a session in the active state without a transport, so
// the router can be driven directly.
func activeChat(t *testing.T) (*Chat, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := New(Config{ClientID: "cid", Host: "http://unused.invalid", Logger: logger.Nop}, rec)
	c.mu.Lock()
	c.state = stateActive
	c.mu.Unlock()
	return c, rec
}

func updateCommand(values map[string]string) []wire.Command {
	return []wire.Command{{Command: "", ID: "", Values: values}}
}

func TestAbilityUpdateFiresOnTransitionOnly(t *testing.T) {
	c, rec := activeChat(t)

	c.route(updateCommand(map[string]string{"canSingle": "0"}))
	require.Empty(t, rec.abilities)
	require.False(t, c.Abilities().Single)

	c.route(updateCommand(map[string]string{"canSingle": "1"}))
	require.True(t, c.Abilities().Single)
	require.Equal(t, []abilityCall{{"single", true}}, rec.abilities)

	// Redundant redelivery of the same snapshot stays silent.
	c.route(updateCommand(map[string]string{"canSingle": "1"}))
	require.Equal(t, []abilityCall{{"single", true}}, rec.abilities)

	c.route(updateCommand(map[string]string{"canSingle": "0"}))
	require.False(t, c.Abilities().Single)
	require.Equal(t, []abilityCall{{"single", true}, {"single", false}}, rec.abilities)
}

func TestEveryAbilityFieldDedupes(t *testing.T) {
	fields := map[string]string{
		"canVideo":    "video",
		"canText":     "text",
		"canAudio":    "audio",
		"canPreview":  "preview",
		"canUpstream": "upstream",
		"canSingle":   "single",
		"canTip":      "tip",
	}

	for key, name := range fields {
		c, rec := activeChat(t)

		c.route(updateCommand(map[string]string{key: "1"}))
		c.route(updateCommand(map[string]string{key: "1"}))

		require.Equal(t, []abilityCall{{name, true}}, rec.abilities, "field %s", key)
		c.mu.Lock()
		require.True(t, c.ability(name), "field %s", key)
		c.mu.Unlock()
	}
}

func TestSingleModeUpdate(t *testing.T) {
	c, rec := activeChat(t)

	c.route(updateCommand(map[string]string{"isSingle": "1"}))
	require.True(t, c.SingleMode())
	require.Equal(t, []bool{true}, rec.singleMode)

	c.route(updateCommand(map[string]string{"isSingle": "1"}))
	require.Equal(t, []bool{true}, rec.singleMode)

	c.route(updateCommand(map[string]string{"isSingle": "0"}))
	require.False(t, c.SingleMode())
	require.Equal(t, []bool{true, false}, rec.singleMode)
}

func TestAudioAndTextMuteUpdates(t *testing.T) {
	c, rec := activeChat(t)

	c.route(updateCommand(map[string]string{"audioMuted": "1", "textMuted": "1"}))
	require.True(t, c.AudioMuted())
	require.True(t, c.TextMuted())
	require.Equal(t, []bool{true}, rec.audioMute)
	require.Equal(t, []bool{true}, rec.textMute)

	c.route(updateCommand(map[string]string{"audioMuted": "1", "textMuted": "0"}))
	require.Equal(t, []bool{true}, rec.audioMute)
	require.Equal(t, []bool{true, false}, rec.textMute)
}

func TestVideoLimitWarningNormalizesToMillis(t *testing.T) {
	c, rec := activeChat(t)

	c.route(updateCommand(map[string]string{"videolimit_rest": "8", "below_threshold": "1"}))
	require.Equal(t, []videoLimitCall{{true, 8000}}, rec.videoLimits)

	c.route(updateCommand(map[string]string{"videolimit_rest": "12", "below_threshold": "0"}))
	require.Equal(t, []videoLimitCall{{true, 8000}, {false, 12000}}, rec.videoLimits)

	// The same pair again is a no-op.
	c.route(updateCommand(map[string]string{"videolimit_rest": "12", "below_threshold": "0"}))
	require.Len(t, rec.videoLimits, 2)
}

func TestLimitUpdate(t *testing.T) {
	c, rec := activeChat(t)

	c.route(updateCommand(map[string]string{"limit_video": "90"}))
	require.Equal(t, []limitCall{{"video", 90000}}, rec.limits)

	c.route(updateCommand(map[string]string{"limit_video": "90"}))
	require.Len(t, rec.limits, 1)

	c.route(updateCommand(map[string]string{"limit_video": "30"}))
	require.Equal(t, []limitCall{{"video", 90000}, {"video", 30000}}, rec.limits)
}

func TestMessageCommand(t *testing.T) {
	c, rec := activeChat(t)

	c.route([]wire.Command{{
		Command: "message",
		ID:      "m1",
		Values:  map[string]string{"text": "hello", "from": "host", "key": "g_chat_host_micro_on"},
	}})

	require.Equal(t, [][3]string{{"hello", "host", "g_chat_host_micro_on"}}, rec.messages)
}

func TestQueryCommand(t *testing.T) {
	c, rec := activeChat(t)

	c.route([]wire.Command{{
		Command: "query",
		ID:      "q1",
		Values: map[string]string{
			"key":     "querysingle",
			"caption": "Private chat?",
			"text":    "The host invites you to a private chat.",
			"timeout": "30",
			"price":   "500",
			"choices": `[{"name":"yes","value":"1","def":true},{"name":"no","value":"0","def":false}]`,
		},
	}})

	require.Len(t, rec.queries, 1)
	q := rec.queries[0]
	require.Equal(t, "querysingle", q.Key)
	require.Equal(t, int64(30000), q.Timeout)
	require.Equal(t, int64(500), q.Price)
	require.Len(t, q.Choices, 2)
	require.Equal(t, "yes", q.Choices[0].Name)
	require.True(t, q.Choices[0].Default)
}

func TestUnrecognizedCommandIsSwallowed(t *testing.T) {
	c, rec := activeChat(t)

	c.route([]wire.Command{{
		Command: "galactic-sync",
		ID:      "x1",
		Values:  map[string]string{"somethingNew": "42"},
	}})

	require.Empty(t, rec.abilities)
	require.Empty(t, rec.messages)
	require.Empty(t, rec.stops)
}

func TestStopCommandClosesOnce(t *testing.T) {
	c, rec := activeChat(t)

	c.route([]wire.Command{{
		Command: "stop",
		ID:      "s1",
		Values:  map[string]string{"exitCode": "1", "message": "host left"},
	}})

	require.Equal(t, []wire.ExitCode{wire.ExitHostClosed}, rec.stops)
	require.Equal(t, []string{"host left"}, rec.stopMessages)

	// A redelivered stop must not re-raise.
	c.route([]wire.Command{{
		Command: "stop",
		ID:      "s2",
		Values:  map[string]string{"exitCode": "1"},
	}})
	require.Len(t, rec.stops, 1)

	err := c.StartText()
	require.ErrorIs(t, err, ErrChatClosed)
}

func TestPauseAndResume(t *testing.T) {
	c, rec := activeChat(t)
	c.mu.Lock()
	c.values["mediaJpegUrl"] = "jpeg_url"
	c.mu.Unlock()

	c.route([]wire.Command{{Command: "pause", ID: "p1", Values: map[string]string{}}})
	require.True(t, c.Paused())
	require.Equal(t, 1, rec.pauses)

	// A duplicate pause is ignored.
	c.route([]wire.Command{{Command: "pause", ID: "p2", Values: map[string]string{}}})
	require.Equal(t, 1, rec.pauses)

	c.route([]wire.Command{{
		Command: "resume",
		ID:      "r1",
		Values:  map[string]string{"mediaHlsUrl": "hls_url"},
	}})
	require.False(t, c.Paused())
	require.Len(t, rec.resumes, 1)

	// The resume carries a freshly negotiated source set including fields
	// merged from the resume command itself.
	set := rec.resumes[0]
	require.NotEmpty(t, set.JPEG)
	require.NotEmpty(t, set.HLS)
}

func TestNoNotificationsAfterClose(t *testing.T) {
	c, rec := activeChat(t)

	require.NoError(t, c.Close(wire.ExitNormal))
	require.Equal(t, []wire.ExitCode{wire.ExitNormal}, rec.stops)

	// A stale in-flight batch settling after close must stay silent.
	c.route(updateCommand(map[string]string{"canSingle": "1"}))
	c.route([]wire.Command{{Command: "message", ID: "m9", Values: map[string]string{"text": "late"}}})

	require.Empty(t, rec.abilities)
	require.Empty(t, rec.messages)
	require.Len(t, rec.stops, 1)
}

func TestOperationsBeforeInit(t *testing.T) {
	c := New(Config{ClientID: "cid", Host: "http://unused.invalid", Logger: logger.Nop}, nil)

	_, err := c.StartStream(nil)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, c.StartText(), ErrNotInitialized)
	require.ErrorIs(t, c.SendMessage("hi", ""), ErrNotInitialized)
	_, err = c.GetChargeInfo()
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.SendMediaFile([]byte("x"), "x.jpg", "k")
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestOperationsAfterClose(t *testing.T) {
	c, _ := activeChat(t)
	require.NoError(t, c.Close(wire.ExitNormal))

	_, err := c.Init()
	require.ErrorIs(t, err, ErrChatClosed)
	require.ErrorIs(t, c.StartSingle(), ErrChatClosed)
	require.ErrorIs(t, c.SendTip(100), ErrChatClosed)
	_, err = c.SendMediaFile([]byte("x"), "x.jpg", "k")
	require.ErrorIs(t, err, ErrChatClosed)

	// Close stays idempotent.
	require.NoError(t, c.Close(wire.ExitNormal))
}

func TestSubscriptionAdapterSharesBus(t *testing.T) {
	c, rec := activeChat(t)

	var fromSub []abilityCall
	c.On(EventAbilityUpdate, func(e Event) {
		fromSub = append(fromSub, abilityCall{e.Name, e.Flag})
	})

	c.route(updateCommand(map[string]string{"canTip": "1"}))

	require.Equal(t, []abilityCall{{"tip", true}}, rec.abilities)
	require.Equal(t, rec.abilities, fromSub)
}

func TestAdoptInitValues(t *testing.T) {
	c, rec := activeChat(t)

	result := c.adoptInitValues(map[string]string{
		"video": "1", "audio": "0", "text": "1", "preview": "0",
		"limitTotal": "600", "limitVideo": "300",
		"canVideo": "1", "canText": "1", "canTip": "0",
		"hostName": "Jane", "hostImage": "https://cdn.example/jane.jpg",
		"uploadMediaUrl":  "https://up.example/media",
		"mediaJpegUrl":    "jpeg_url",
		"altMediaJpegUrl": "alt_jpeg_url",
	})

	require.True(t, result.Intent.Video)
	require.False(t, result.Intent.Audio)
	require.Equal(t, int64(600000), result.Limits.Total)
	require.Equal(t, int64(300000), result.Limits.Video)

	require.True(t, c.Abilities().Video)
	require.True(t, c.Abilities().Text)
	require.False(t, c.Abilities().Tip)
	require.Equal(t, "Jane", c.Host().Name)

	// Initial abilities are adopted silently.
	require.Empty(t, rec.abilities)

	// The alt-prefixed media field landed in the alternate value store.
	c.mu.Lock()
	require.Equal(t, "alt_jpeg_url", c.altValues["mediaJpegUrl"])
	c.mu.Unlock()
}
