package connection

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"resty.dev/v3"

	"github.com/vclabs/vchat-go/wire"
)

// servletPath is the default fallback endpoint on the chat host, used when
// the config carries no alternate servlet URL.
const servletPath = "/servlet/chat"

// httpRoundTripper is the long-polling transport: one HTTP request per
// outbound action, with inbound delivery relying entirely on the heartbeat
// loop. It works through proxies and firewalls that break the socket path.
type httpRoundTripper struct {
	client *resty.Client
	url    string
}

func newHTTPRoundTripper(cfg Config) *httpRoundTripper {
	url := cfg.ServletURL
	if url == "" {
		url = strings.TrimRight(cfg.Host, "/") + servletPath
	}

	client := resty.New().SetTimeout(cfg.RequestTimeout)
	if cfg.AccessToken != "" {
		client.SetAuthToken(cfg.AccessToken)
	}

	return &httpRoundTripper{client: client, url: url}
}

// roundTrip performs one blocking exchange. Transport failures come back as
// the sentinel responses; everything the server actually said, including
// application-level rejections, goes through the tolerant wire parser.
func (t *httpRoundTripper) roundTrip(req *request, clientID, instanceID string) *wire.Response {
	form := make(map[string]string, len(req.params)+4)
	for k, v := range req.params {
		form[k] = v
	}
	form["action"] = req.action
	form["seq"] = strconv.FormatUint(req.seq, 10)
	form["clientId"] = clientID
	if instanceID != "" {
		form["instanceId"] = instanceID
	}
	if len(req.acks) > 0 {
		form["acks"] = strings.Join(req.acks, ",")
	}

	res, err := t.client.R().SetFormData(form).Post(t.url)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return wire.Timeout
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return wire.Timeout
		}
		return wire.NetworkError
	}
	if !res.IsSuccess() {
		return wire.NetworkError
	}
	return wire.Parse(res.Bytes())
}

func (t *httpRoundTripper) close() {
	_ = t.client.Close()
}
