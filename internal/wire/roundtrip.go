// Package wire implements the framed request/response codec spoken by the
// miner API port: the client sends one JSON object, the device answers with
// JSON bytes terminated by a single NUL (0x00).
package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/luxops/luxfleet/pkg/models"
)

// Options tunes a single Roundtrip call. A zero Timeout falls back to
// DefaultTimeout; a zero RetryDelay means no pause between attempts.
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	AsJSON     bool // require the reply to parse as JSON
}

// DefaultTimeout replaces a zero Options.Timeout. DefaultRetryDelay is the
// retry delay of rexec.DefaultConfig; Roundtrip does not substitute it for a
// zero Options.RetryDelay.
const (
	DefaultTimeout    = 3 * time.Second
	DefaultRetryDelay = 1 * time.Second
)

const readChunk = 4096

// Encode canonicalizes a payload for the wire: bytes and strings pass
// through unchanged, anything else is marshaled as JSON (map keys sorted by
// encoding/json).
func Encode(payload any) ([]byte, bool, error) {
	switch p := payload.(type) {
	case []byte:
		return p, false, nil
	case string:
		return []byte(p), false, nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, false, fmt.Errorf("encode request: %w", err)
		}
		return raw, true, nil
	}
}

// Roundtrip opens one TCP connection, writes the payload and reads the reply
// up to its NUL terminator. Each attempt gets its own Timeout budget
// covering connect, write and read; network and serialization failures are
// folded into the retry loop and surface as a TimeoutError at exhaustion,
// with the last cause attached.
func Roundtrip(ctx context.Context, host string, port int, payload any, opts Options) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	raw, isObject, err := Encode(payload)
	if err != nil {
		return nil, err
	}
	asJSON := opts.AsJSON || isObject

	var reply []byte
	policy := Policy{Retries: opts.Retries, Delay: opts.RetryDelay}
	err = policy.Run(ctx, func() error {
		var attemptErr error
		reply, attemptErr = attempt(ctx, host, port, raw, opts.Timeout)
		if attemptErr != nil {
			return attemptErr
		}
		if asJSON && !json.Valid(reply) {
			return fmt.Errorf("reply is not valid JSON (%d bytes)", len(reply))
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, models.NewTimeout(host, port, "roundtrip failed", err)
	}

	slog.Debug("roundtrip", "host", host, "port", port, "reply_bytes", len(reply))
	return reply, nil
}

// attempt performs one connect+write+read exchange under a single deadline.
func attempt(ctx context.Context, host string, port int, payload []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, ctxCause(ctx, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// A blocked read observes cancellation through an expired deadline.
	stopWatch := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stopWatch()

	if _, err := conn.Write(payload); err != nil {
		return nil, ctxCause(ctx, err)
	}

	// Stream the reply in chunks and scan for the NUL terminator. The
	// connection is closed right after the NUL, so bytes past it are
	// discarded rather than silently buffered.
	response := make([]byte, 0, readChunk)
	buf := make([]byte, readChunk)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if idx := bytes.IndexByte(buf[:n], 0x00); idx >= 0 {
				response = append(response, buf[:idx]...)
				return response, nil
			}
			response = append(response, buf[:n]...)
		}
		if err != nil {
			// Half-close with data accumulated: the device sent
			// everything it had, take the buffer as the reply.
			if errors.Is(err, io.EOF) && len(response) > 0 {
				return response, nil
			}
			return nil, ctxCause(ctx, err)
		}
	}
}

// ctxCause prefers the context error over the I/O error it provoked.
func ctxCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
