package sources

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseValues() map[string]string {
	return map[string]string{
		"dataURL":      "data_url",
		"mediaJpegUrl": "jpeg_url",
		"mediaRtmpUrl": "rtmp_app/112233",
	}
}

func TestGetSourceSetJPEG(t *testing.T) {
	vv := baseValues()

	result := GetSourceSet(vv, nil, StreamConfig{}, []string{ProtocolJPEG})
	require.NotEmpty(t, result.JPEG)
	require.Contains(t, result.JPEG[0].Stream, "jpeg_url")

	delete(vv, "mediaJpegUrl")
	result = GetSourceSet(vv, nil, StreamConfig{}, []string{ProtocolJPEG})
	require.Empty(t, result.JPEG)
}

func TestGetSourceSetJPEGSizing(t *testing.T) {
	cfg := StreamConfig{Width: 640, Height: 480, MaxFps: 15, ResizeMode: "crop"}

	result := GetSourceSet(baseValues(), nil, cfg, []string{ProtocolJPEG})
	require.NotEmpty(t, result.JPEG)
	stream := result.JPEG[0].Stream
	require.Contains(t, stream, "jpeg_url")
	require.Contains(t, stream, "w=640")
	require.Contains(t, stream, "h=480")
	require.Contains(t, stream, "fps=15")
	require.Contains(t, stream, "rm=crop")
}

func TestGetSourceSetRTMP(t *testing.T) {
	vv := baseValues()

	result := GetSourceSet(vv, nil, StreamConfig{}, []string{ProtocolRTMP})
	require.Len(t, result.RTMP, 1)
	require.Equal(t, "rtmp_app", result.RTMP[0].App)
	require.Equal(t, "112233", result.RTMP[0].Stream)

	delete(vv, "mediaRtmpUrl")
	result = GetSourceSet(vv, nil, StreamConfig{}, []string{ProtocolRTMP})
	require.Empty(t, result.RTMP)
}

func TestGetSourceSetRTMPUnparsable(t *testing.T) {
	vv := baseValues()
	vv["mediaRtmpUrl"] = "UNPARSABLE"

	result := GetSourceSet(vv, nil, StreamConfig{}, []string{ProtocolRTMP})
	require.Empty(t, result.RTMP)
}

func TestGetSourceSetHLS(t *testing.T) {
	vv := map[string]string{
		"dataURL":      "data_url",
		"mediaJpegUrl": "jpeg_url",
	}

	result := GetSourceSet(vv, nil, StreamConfig{}, nil)
	require.Empty(t, result.HLS)

	vv["mediaHlsUrl"] = "hlsUrl"
	result = GetSourceSet(vv, nil, StreamConfig{}, nil)
	require.NotEmpty(t, result.HLS)
}

func TestGetSourceSetHLSMobileVariant(t *testing.T) {
	vv := map[string]string{"mediaHlsUrl": "https://cdn.example/stream/playlist.m3u8"}

	result := GetSourceSet(vv, nil, StreamConfig{Mobile: true}, []string{ProtocolHLS})
	require.NotEmpty(t, result.HLS)
	require.Equal(t, "https://cdn.example/stream/playlist_mobile.m3u8", result.HLS[0].Stream)
}

func TestGetSourceSetNoAudio(t *testing.T) {
	vv := baseValues()
	vv["mediaMp3Url"] = "mp3_url"
	vv["mediaVorbisUrl"] = "vorbis_url"

	result := GetSourceSet(vv, nil, StreamConfig{}, nil)
	require.NotEmpty(t, result.MP3)
	require.NotEmpty(t, result.Vorbis)

	result = GetSourceSet(vv, nil, StreamConfig{NoAudio: true}, nil)
	require.Empty(t, result.MP3)
	require.Empty(t, result.Vorbis)
}

func TestGetSourceSetAlternateValues(t *testing.T) {
	vv := baseValues()
	av := map[string]string{"mediaJpegUrl": "alt_jpeg_url"}

	result := GetSourceSet(vv, av, StreamConfig{}, []string{ProtocolJPEG})
	require.Len(t, result.JPEG, 2)
	require.Contains(t, result.JPEG[0].Stream, "jpeg_url")
	require.Contains(t, result.JPEG[1].Stream, "alt_jpeg_url")
}

func TestGetSourceSetPreferredOrder(t *testing.T) {
	result := GetSourceSet(baseValues(), nil, StreamConfig{}, nil)

	// Only protocols that actually produced a source show up, in the
	// requested order.
	require.Equal(t, []string{ProtocolJPEG, ProtocolRTMP}, result.PreferredOrder)
}
