// Package targets negotiates upstream (guest-to-host) media targets, the
// reverse direction of package sources. The same tolerance rules apply:
// malformed backend fields drop an entry, they never produce an error.
package targets

import (
	"strconv"
	"strings"
)

// Raw backend fields describing upstream targets.
const (
	fieldJPEGURL     = "upstreamJpegUrl"
	fieldJPEGWidth   = "upstreamJpegWidth"
	fieldJPEGHeight  = "upstreamJpegHeight"
	fieldJPEGFps     = "upstreamJpegFps"
	fieldJPEGQuality = "upstreamJpegQuality"
	fieldRTMPURL     = "upstreamRtmpUrl"
)

// Defaults applied when the backend omits a JPEG target parameter.
const (
	defaultJPEGWidth   = 320
	defaultJPEGHeight  = 240
	defaultJPEGFps     = 10
	defaultJPEGQuality = 0.8
)

// JPEGTarget describes an image-push upload endpoint.
type JPEGTarget struct {
	// Stream is the upload endpoint URL.
	Stream string `json:"stream"`
	// Width and Height are the expected frame dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Fps is the maximum publish rate.
	Fps int `json:"fps"`
	// Quality is the JPEG encoder quality in (0, 1].
	Quality float64 `json:"quality"`
}

// RTMPTarget describes an RTMP publish endpoint.
type RTMPTarget struct {
	App    string `json:"app"`
	Stream string `json:"stream"`
}

// TargetSet is the negotiated, protocol-keyed collection of upload targets.
type TargetSet struct {
	JPEG []JPEGTarget `json:"jpeg,omitempty"`
	RTMP []RTMPTarget `json:"rtmp,omitempty"`
}

// Parse builds a TargetSet from the raw reply values of an upstream-start
// acknowledgment.
func Parse(values map[string]string) TargetSet {
	set := TargetSet{}
	if values == nil {
		return set
	}

	if stream := values[fieldJPEGURL]; stream != "" {
		set.JPEG = append(set.JPEG, JPEGTarget{
			Stream:  stream,
			Width:   intValue(values, fieldJPEGWidth, defaultJPEGWidth),
			Height:  intValue(values, fieldJPEGHeight, defaultJPEGHeight),
			Fps:     intValue(values, fieldJPEGFps, defaultJPEGFps),
			Quality: qualityValue(values),
		})
	}

	if raw := values[fieldRTMPURL]; raw != "" {
		app, stream, ok := strings.Cut(raw, "/")
		if ok && app != "" && stream != "" {
			set.RTMP = append(set.RTMP, RTMPTarget{App: app, Stream: stream})
		}
	}

	return set
}

func intValue(values map[string]string, key string, def int) int {
	n, err := strconv.Atoi(values[key])
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func qualityValue(values map[string]string) float64 {
	q, err := strconv.ParseFloat(values[fieldJPEGQuality], 64)
	if err != nil || q <= 0 || q > 1 {
		return defaultJPEGQuality
	}
	return q
}
