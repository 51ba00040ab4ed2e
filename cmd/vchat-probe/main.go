// vchat-probe opens a chat session against a live backend, watches the
// notification stream and tears the session down cleanly. It exists for
// debugging connectivity and transport behavior against real servers.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	vchat "github.com/vclabs/vchat-go"
	"github.com/vclabs/vchat-go/internal/config"
	"github.com/vclabs/vchat-go/logger"
	"github.com/vclabs/vchat-go/wire"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	message := flag.String("message", "", "Send a chat message after init")
	duration := flag.Duration("watch", 30*time.Second, "How long to watch the notification stream")
	withText := flag.Bool("text", false, "Start the text stream after init")
	longPoll := flag.Bool("long-poll", false, "Force the long-polling transport")
	flag.Parse()

	if *longPoll {
		cfg.ForceLongPolling = true
	}

	std := logger.NewStdLogger(os.Stderr, logger.LevelInfo)
	if cfg.Debug {
		std.SetLevel(logger.LevelTrace)
	}
	// Collect everything so a diagnostics snapshot can be dumped at exit.
	lg := logger.NewCollector(std)

	if cfg.AccessToken != "" {
		if info, err := vchat.InspectAccessToken(cfg.AccessToken); err != nil {
			lg.Warnf("access token does not parse: %v", err)
		} else {
			lg.Logf("access token subject=%s expires=%s", info.Subject, info.ExpiresAt)
		}
	}

	chat := vchat.New(vchat.Config{
		ClientID:          cfg.ClientID,
		Host:              cfg.Host,
		ControlServletURL: cfg.ServletURL,
		AccessToken:       cfg.AccessToken,
		ForceLongPolling:  cfg.ForceLongPolling,
		Version:           "probe-1.0",
		NoopInterval:      cfg.NoopInterval,
		Protocols:         cfg.Protocols,
		ExcludedProtocols: cfg.ExcludedProtocols,
		Logger:            lg,
	}, &watcher{log: lg})

	stopped := make(chan struct{})
	chat.On(vchat.EventChatStop, func(vchat.Event) { close(stopped) })

	result, err := chat.Init()
	if err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}
	lg.Logf("session up: intent=%+v limits=%+v host=%q", result.Intent, result.Limits, chat.Host().Name)

	set, err := chat.StartStream(nil)
	if err != nil {
		lg.Warnf("stream start failed: %v", err)
	} else {
		lg.Logf("source set: order=%v jpeg=%d hls=%d rtmp=%d", set.PreferredOrder, len(set.JPEG), len(set.HLS), len(set.RTMP))
	}

	if *withText {
		if err := chat.StartText(); err != nil {
			lg.Warnf("text start failed: %v", err)
		}
	}
	if *message != "" {
		if err := chat.SendMessage(*message, ""); err != nil {
			lg.Warnf("message send failed: %v", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-time.After(*duration):
		lg.Logf("watch window over, closing")
	case <-sig:
		lg.Logf("interrupted, closing")
	case <-stopped:
		lg.Logf("server closed the session")
		dumpWarnings(lg)
		return nil
	}

	err = chat.Close(wire.ExitNormal)
	dumpWarnings(lg)
	return err
}

// dumpWarnings prints the collected warning/error snapshot, the same export
// shape a support bundle would carry.
func dumpWarnings(c *logger.Collector) {
	if out := c.ExportToStr(logger.CollectedWarn, 50); out != "" {
		fmt.Fprint(os.Stderr, "--- collected warnings ---\n"+out)
	}
}

// watcher logs every notification the session raises.
type watcher struct {
	vchat.BaseHandler
	log logger.Logger
}

func (w *watcher) OnChatStop(code wire.ExitCode, message string) {
	w.log.Logf("chat stopped: code=%s message=%q", code, message)
}

func (w *watcher) OnMessage(text, from, key string) {
	w.log.Logf("message from %s: %q (key=%s)", from, text, key)
}

func (w *watcher) OnAbilityUpdate(name string, value bool) {
	w.log.Logf("ability %s=%t", name, value)
}

func (w *watcher) OnQuery(q vchat.Query) {
	w.log.Logf("query %s: %s (timeout=%dms)", q.Key, q.Text, q.Timeout)
}

func (w *watcher) OnLimitUpdate(param string, value int64) {
	w.log.Logf("limit %s=%dms", param, value)
}

func (w *watcher) OnVideoLimitWarningUpdate(below bool, value int64) {
	w.log.Logf("video limit warning: below=%t rest=%dms", below, value)
}
