package sources

import (
	"net/url"
	"strconv"
	"strings"
)

// Raw backend fields backing each protocol.
const (
	fieldJPEG   = "mediaJpegUrl"
	fieldMJPEG  = "mediaMjpegUrl"
	fieldHLS    = "mediaHlsUrl"
	fieldRTMP   = "mediaRtmpUrl"
	fieldWebRTC = "mediaWebrtcUrl"
	fieldMP3    = "mediaMp3Url"
	fieldVorbis = "mediaVorbisUrl"
)

// Source describes one playable media endpoint.
type Source struct {
	// Stream is the endpoint URL handed to a player.
	Stream string `json:"stream"`
}

// RTMPSource describes an RTMP endpoint, split into application and stream key.
type RTMPSource struct {
	App    string `json:"app"`
	Stream string `json:"stream"`
}

// SourceSet is the negotiated, protocol-keyed collection of playback sources.
// A protocol key is only populated when the protocol was requested and its
// backing raw field was present and well-formed.
type SourceSet struct {
	// PreferredOrder is the order in which a player should try the entries.
	PreferredOrder []string     `json:"preferredOrder,omitempty"`
	JPEG           []Source     `json:"jpeg,omitempty"`
	MJPEG          []Source     `json:"mjpeg,omitempty"`
	HLS            []Source     `json:"hls,omitempty"`
	RTMP           []RTMPSource `json:"rtmp,omitempty"`
	WebRTC         []Source     `json:"webrtc,omitempty"`
	MP3            []Source     `json:"mp3,omitempty"`
	Vorbis         []Source     `json:"vorbis,omitempty"`
}

// StreamConfig carries the caller's stream-start parameters. They shape the
// produced descriptors (image sizing, mobile playlist selection, audio
// suppression) but never change which protocols are considered available.
type StreamConfig struct {
	// Type is "default" or "preview".
	Type string
	// NoAudio suppresses the audio-only companion streams (JPEG streams only).
	NoAudio bool
	// Width/Height/ResizeMode/MaxFps are passed through to image-push streams.
	Width      int
	Height     int
	ResizeMode string
	MaxFps     int
	// Mobile selects the mobile playlist variant for segmented streams.
	Mobile bool
}

// GetSourceSet negotiates a fresh SourceSet from the latest raw backend
// values vv, the alternate-host values av and the stream configuration.
//
// protocols defaults to the built-in preference order when nil. Malformed
// backing data is not an error: the affected protocol is omitted and no
// failure crosses this boundary.
func GetSourceSet(vv, av map[string]string, cfg StreamConfig, protocols []string) SourceSet {
	protocols = GetProtocols(protocols, nil)

	set := SourceSet{}
	for _, proto := range protocols {
		switch proto {
		case ProtocolJPEG:
			set.JPEG = imageSources(vv, av, fieldJPEG, cfg)
		case ProtocolMJPEG:
			set.MJPEG = imageSources(vv, av, fieldMJPEG, cfg)
		case ProtocolHLS:
			set.HLS = plainSources(vv, av, fieldHLS, func(raw string) string {
				return hlsPlaylist(raw, cfg.Mobile)
			})
		case ProtocolRTMP:
			set.RTMP = rtmpSources(vv, av)
		case ProtocolWebRTC:
			set.WebRTC = plainSources(vv, av, fieldWebRTC, nil)
		case ProtocolMP3:
			if !cfg.NoAudio {
				set.MP3 = plainSources(vv, av, fieldMP3, nil)
			}
		case ProtocolVorbis:
			if !cfg.NoAudio {
				set.Vorbis = plainSources(vv, av, fieldVorbis, nil)
			}
		}
	}

	set.PreferredOrder = availableOrder(protocols, &set)
	return set
}

// plainSources collects the primary and alternate endpoint for one raw field,
// optionally rewriting each URL.
func plainSources(vv, av map[string]string, field string, rewrite func(string) string) []Source {
	var out []Source
	for _, values := range []map[string]string{vv, av} {
		if values == nil {
			continue
		}
		raw := values[field]
		if raw == "" {
			continue
		}
		if rewrite != nil {
			raw = rewrite(raw)
		}
		out = append(out, Source{Stream: raw})
	}
	return out
}

// imageSources builds image-push sources with the sizing parameters attached
// as query values.
func imageSources(vv, av map[string]string, field string, cfg StreamConfig) []Source {
	return plainSources(vv, av, field, func(raw string) string {
		q := url.Values{}
		if cfg.Width > 0 {
			q.Set("w", strconv.Itoa(cfg.Width))
		}
		if cfg.Height > 0 {
			q.Set("h", strconv.Itoa(cfg.Height))
		}
		if cfg.MaxFps > 0 {
			q.Set("fps", strconv.Itoa(cfg.MaxFps))
		}
		if cfg.ResizeMode != "" {
			q.Set("rm", cfg.ResizeMode)
		}
		if len(q) == 0 {
			return raw
		}
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + q.Encode()
	})
}

// rtmpSources parses the "<app>/<streamKey>" wire format. Entries lacking the
// separator, or with an empty half, are dropped silently.
func rtmpSources(vv, av map[string]string) []RTMPSource {
	var out []RTMPSource
	for _, values := range []map[string]string{vv, av} {
		if values == nil {
			continue
		}
		raw := values[fieldRTMP]
		if raw == "" {
			continue
		}
		app, stream, ok := strings.Cut(raw, "/")
		if !ok || app == "" || stream == "" {
			continue
		}
		out = append(out, RTMPSource{App: app, Stream: stream})
	}
	return out
}

// hlsPlaylist selects the playlist variant. The mobile variant is derived by
// suffixing the playlist name; unrecognized URLs pass through untouched.
func hlsPlaylist(raw string, mobile bool) string {
	if !mobile {
		return raw
	}
	if idx := strings.LastIndex(raw, ".m3u8"); idx >= 0 {
		return raw[:idx] + "_mobile" + raw[idx:]
	}
	return raw
}

// availableOrder restricts the requested protocol order to the protocols that
// actually produced sources.
func availableOrder(protocols []string, set *SourceSet) []string {
	var order []string
	for _, proto := range protocols {
		available := false
		switch proto {
		case ProtocolJPEG:
			available = len(set.JPEG) > 0
		case ProtocolMJPEG:
			available = len(set.MJPEG) > 0
		case ProtocolHLS:
			available = len(set.HLS) > 0
		case ProtocolRTMP:
			available = len(set.RTMP) > 0
		case ProtocolWebRTC:
			available = len(set.WebRTC) > 0
		case ProtocolMP3:
			available = len(set.MP3) > 0
		case ProtocolVorbis:
			available = len(set.Vorbis) > 0
		}
		if available {
			order = append(order, proto)
		}
	}
	return order
}
