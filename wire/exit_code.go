package wire

import "strconv"

// ExitCode is the close reason carried by a chat-stop notification and by the
// close request sent to the server. The enumeration is closed; callers branch
// on it to decide user-facing messaging.
type ExitCode int

const (
	// ExitNormal is a regular, guest-initiated close.
	ExitNormal ExitCode = 0
	// ExitHostClosed is a close forced by the host side.
	ExitHostClosed ExitCode = 1
	// ExitNetworkError is a close following an unrecoverable transport failure.
	ExitNetworkError ExitCode = 2
	// ExitLimitReached is a close after a time or payment limit was exhausted.
	ExitLimitReached ExitCode = 3
	// ExitServerShutdown is a close announced by the server going away.
	ExitServerShutdown ExitCode = 4
)

func (c ExitCode) String() string {
	switch c {
	case ExitNormal:
		return "normal"
	case ExitHostClosed:
		return "host-closed"
	case ExitNetworkError:
		return "network-error"
	case ExitLimitReached:
		return "limit-reached"
	case ExitServerShutdown:
		return "server-shutdown"
	default:
		return "exit-code-" + strconv.Itoa(int(c))
	}
}

// ParseExitCode maps a wire-encoded exit code onto the enumeration. Unknown
// or unparsable values fall back to ExitNormal rather than failing.
func ParseExitCode(raw string) ExitCode {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return ExitNormal
	}
	switch c := ExitCode(n); c {
	case ExitNormal, ExitHostClosed, ExitNetworkError, ExitLimitReached, ExitServerShutdown:
		return c
	default:
		return ExitNormal
	}
}
