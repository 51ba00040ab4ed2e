package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Host is the base URL of the chat backend.
	Host string
	// ServletURL overrides the default long-polling endpoint on Host.
	ServletURL string
	// ClientID identifies the guest towards the backend.
	ClientID string
	// AccessToken is the bearer token issued by the portal login.
	AccessToken string

	// ForceLongPolling skips the socket transport entirely.
	ForceLongPolling bool
	// NoopInterval is the heartbeat base interval.
	NoopInterval time.Duration

	// Protocols restricts media negotiation to the listed protocols.
	Protocols []string
	// ExcludedProtocols removes protocols from the default negotiation order.
	ExcludedProtocols []string

	// Debug enables verbose logging.
	Debug bool
}

// Load loads configuration from environment and defaults
func Load() (*Config, error) {
	host := os.Getenv("VCHAT_HOST")
	if host == "" {
		return nil, fmt.Errorf("VCHAT_HOST is required")
	}

	clientID := os.Getenv("VCHAT_CLIENT_ID")
	if clientID == "" {
		return nil, fmt.Errorf("VCHAT_CLIENT_ID is required")
	}

	noopInterval := time.Duration(0)
	if raw := os.Getenv("VCHAT_NOOP_INTERVAL_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid VCHAT_NOOP_INTERVAL_MS %q", raw)
		}
		noopInterval = time.Duration(ms) * time.Millisecond
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"
	if !debug {
		debug = os.Getenv("VCHAT_DEBUG") == "true" || os.Getenv("VCHAT_DEBUG") == "1"
	}

	return &Config{
		Host:              host,
		ServletURL:        os.Getenv("VCHAT_SERVLET_URL"),
		ClientID:          clientID,
		AccessToken:       os.Getenv("VCHAT_ACCESS_TOKEN"),
		ForceLongPolling:  envBool("VCHAT_FORCE_LONG_POLLING"),
		NoopInterval:      noopInterval,
		Protocols:         envList("VCHAT_PROTOCOLS"),
		ExcludedProtocols: envList("VCHAT_EXCLUDED_PROTOCOLS"),
		Debug:             debug,
	}, nil
}

func envBool(key string) bool {
	return os.Getenv(key) == "true" || os.Getenv(key) == "1"
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
