// Package rexec executes API commands against a single miner: it decides
// from the catalog whether a session token must be acquired, normalizes
// parameters, drives the wire roundtrip with the retry policy, and releases
// the session on every exit path.
package rexec

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/luxops/luxfleet/internal/wire"
	"github.com/luxops/luxfleet/pkg/models"
)

// Config carries the tuning knobs threaded through every call. Retries == n
// means up to n+1 attempts for the command body, and a separate up-to-n+1
// budget for the session acquisition.
type Config struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// DefaultConfig mirrors the CLI flag defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    wire.DefaultTimeout,
		Retries:    0,
		RetryDelay: wire.DefaultRetryDelay,
	}
}

// Client executes commands with a fixed Config.
type Client struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = wire.DefaultTimeout
	}
	return &Client{cfg: cfg, log: slog.Default()}
}

// Config returns the client's tuning snapshot.
func (c *Client) Config() Config { return c.cfg }

// sessionCodeActive is returned by logon when the device already holds an
// open session.
const sessionCodeActive = 402

// Logon opens a session and returns its token. A 402 reply (or a SESSION
// record without a SessionID) means another session is active; that failure
// is permanent and must not be retried by callers.
func (c *Client) Logon(ctx context.Context, host string, port int) (string, error) {
	_, sid, err := c.logonOnce(ctx, host, port)
	return sid, err
}

func (c *Client) logonOnce(ctx context.Context, host string, port int) (*Reply, string, error) {
	raw, err := wire.Roundtrip(ctx, host, port, map[string]string{"command": "logon"}, wire.Options{
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		return nil, "", err
	}
	reply := NewReply(host, port, raw)

	if first, ok := reply.First(); ok {
		if first.Code == sessionCodeActive || first.Status == "E" {
			return reply, "", wire.Permanent(models.NewSessionAlreadyActive(host, port, first.Msg))
		}
	}

	session, err := ValidateOne(reply, "SESSION")
	if err != nil {
		return reply, "", err
	}
	sid := session.Get("SessionID").String()
	if sid == "" {
		return reply, "", wire.Permanent(models.NewSessionAlreadyActive(host, port, "no SessionID in data"))
	}
	return reply, sid, nil
}

// Logoff closes the session identified by sid. Best-effort callers ignore
// its error.
func (c *Client) Logoff(ctx context.Context, host string, port int, sid string) (*Reply, error) {
	raw, err := wire.Roundtrip(ctx, host, port, map[string]string{
		"command":   "logoff",
		"parameter": sid,
	}, wire.Options{Timeout: c.cfg.Timeout})
	if err != nil {
		return nil, err
	}
	reply := NewReply(host, port, raw)
	if err := Validate(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Rexec runs one command against one device:
//
//	normalize params -> (logon, prepend token)? -> roundtrip -> logoff?
//
// The session acquisition and the command body each get their own retry
// budget. A session obtained here is released exactly once, on success and
// on failure alike, even when ctx has been canceled mid-command.
func (c *Client) Rexec(ctx context.Context, host string, port int, cmd string, parameters any) (*Reply, error) {
	params, err := ParamsToList(parameters)
	if err != nil {
		return nil, err
	}

	// logon/logoff ARE the session protocol; they never get wrapped.
	switch cmd {
	case "logon":
		reply, _, err := c.logonReplyWithRetry(ctx, host, port)
		return reply, err
	case "logoff":
		return c.Logoff(ctx, host, port, JoinParams(params))
	}

	sid := ""
	if LogonRequired(cmd) {
		_, sid, err = c.logonReplyWithRetry(ctx, host, port)
		if err != nil {
			return nil, err
		}
		params = append([]string{sid}, params...)
		c.log.Debug("session obtained", "host", host, "port", port, "sid", sid)
	} else {
		c.log.Debug("logon not required", "host", host, "cmd", cmd)
	}

	packet := map[string]string{"command": cmd}
	if len(params) > 0 {
		packet["parameter"] = JoinParams(params)
	}

	raw, cmdErr := wire.Roundtrip(ctx, host, port, packet, wire.Options{
		Timeout:    c.cfg.Timeout,
		Retries:    c.cfg.Retries,
		RetryDelay: c.cfg.RetryDelay,
	})

	// Exactly one best-effort logoff for every acquired token, detached
	// from ctx so cancellation still releases the device.
	if sid != "" {
		if _, offErr := c.Logoff(context.WithoutCancel(ctx), host, port, sid); offErr != nil {
			c.log.Debug("logoff failed", "host", host, "port", port, "error", offErr)
		}
	}

	if cmdErr != nil {
		return nil, cmdErr
	}
	return NewReply(host, port, raw), nil
}

// logonReplyWithRetry drives the session acquisition budget: up to Retries+1
// logon attempts, never retrying a "session already active" answer.
func (c *Client) logonReplyWithRetry(ctx context.Context, host string, port int) (*Reply, string, error) {
	var (
		reply *Reply
		sid   string
	)
	policy := wire.Policy{Retries: c.cfg.Retries, Delay: c.cfg.RetryDelay}
	err := policy.Run(ctx, func() error {
		var logonErr error
		reply, sid, logonErr = c.logonOnce(ctx, host, port)
		return logonErr
	})
	if err != nil {
		return nil, "", err
	}
	return reply, sid, nil
}

// Rexec runs cmd with the package default configuration. The default is set
// at startup (SetDefault) and read-only afterwards.
func Rexec(ctx context.Context, host string, port int, cmd string, parameters any) (*Reply, error) {
	return defaultClient.Rexec(ctx, host, port, cmd, parameters)
}

var defaultClient = New(DefaultConfig())

// SetDefault installs the process-wide default client configuration. Call it
// once during startup, before any concurrent use.
func SetDefault(cfg Config) {
	defaultClient = New(cfg)
}

// Default returns the process-wide default client.
func Default() *Client { return defaultClient }

// IsTimeout reports whether err is (or wraps) a wire-level timeout.
func IsTimeout(err error) bool {
	var t *models.TimeoutError
	return errors.As(err, &t)
}

// BriefError compresses an error chain into its first line for report rows.
func BriefError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}
