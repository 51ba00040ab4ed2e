// Package sources negotiates playback media sources for a chat session.
//
// Negotiation is pure: it maps the raw key/value fields returned by the
// backend onto typed, protocol-keyed source descriptors without touching
// session state and without ever failing on malformed upstream data.
package sources

// Protocol names understood by the negotiation routines.
const (
	ProtocolJPEG   = "jpeg"
	ProtocolMJPEG  = "mjpeg"
	ProtocolHLS    = "hls"
	ProtocolRTMP   = "rtmp"
	ProtocolWebRTC = "webrtc"
	ProtocolMP3    = "mp3"
	ProtocolVorbis = "vorbis"
)

// defaultProtocols is the built-in preference order: image-push first, then
// segmented streaming, then RTMP and WebRTC, with the audio-only companions
// last. Players treat the order as a fallback hint.
var defaultProtocols = []string{
	ProtocolJPEG,
	ProtocolMJPEG,
	ProtocolHLS,
	ProtocolRTMP,
	ProtocolWebRTC,
	ProtocolMP3,
	ProtocolVorbis,
}

// GetProtocols returns the ordered list of protocol names to attempt.
//
// With included nil the built-in default ordering is returned. Otherwise the
// order of included is preserved verbatim, minus any name also present in
// excluded. The result never contains duplicates.
func GetProtocols(included, excluded []string) []string {
	if included == nil {
		included = defaultProtocols
	}

	drop := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		drop[name] = struct{}{}
	}

	out := make([]string, 0, len(included))
	seen := make(map[string]struct{}, len(included))
	for _, name := range included {
		if _, ok := drop[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
