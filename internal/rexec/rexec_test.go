package rexec_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxops/luxfleet/internal/minertest"
	"github.com/luxops/luxfleet/internal/rexec"
	"github.com/luxops/luxfleet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *rexec.Client {
	return rexec.New(rexec.Config{Timeout: 2 * time.Second})
}

func TestRexecSingleShotVersion(t *testing.T) {
	srv, err := minertest.Start(minertest.WithHandler(func(req minertest.Request) (any, bool) {
		if req.Command != "version" {
			return nil, false
		}
		return map[string]any{
			"STATUS":  []any{map[string]any{"STATUS": "S", "Code": 22}},
			"id":      1,
			"VERSION": []any{map[string]any{"API": "3.7"}},
		}, true
	}))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	reply, err := testClient().Rexec(context.Background(), host, port, "version", nil)
	require.NoError(t, err)

	version, err := rexec.ValidateOne(reply, "VERSION")
	require.NoError(t, err)
	assert.Equal(t, "3.7", version.Get("API").String())

	// no parameter key at all for a bare command
	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "version", reqs[0].Command)
	assert.Empty(t, reqs[0].Parameter)
}

func TestRexecSessionRoundTrip(t *testing.T) {
	srv, err := minertest.Start(minertest.WithSessions())
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	_, err = testClient().Rexec(context.Background(), host, port, "profileset", []string{"board0", "fast"})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "logon", reqs[0].Command)
	assert.Equal(t, "profileset", reqs[1].Command)
	assert.Equal(t, "sid-1,board0,fast", reqs[1].Parameter, "the token must be the first positional parameter")
	assert.Equal(t, "logoff", reqs[2].Command)
	assert.Equal(t, "sid-1", reqs[2].Parameter)
	assert.False(t, srv.SessionActive(), "the session must be released")
}

func TestRexecReleasesSessionOnCommandFailure(t *testing.T) {
	srv, err := minertest.Start(
		minertest.WithSessions(),
		minertest.WithHandler(func(req minertest.Request) (any, bool) {
			if req.Command == "profileset" {
				return map[string]any{
					"STATUS": []any{map[string]any{"STATUS": "E", "Code": 14, "Msg": "invalid profile"}},
					"id":     1,
				}, true
			}
			return nil, false
		}),
	)
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	reply, err := testClient().Rexec(context.Background(), host, port, "profileset", []string{"board0", "nope"})
	require.NoError(t, err) // the wire succeeded; the device said E

	_, verr := rexec.ValidateOne(reply, "PROFILE")
	var msgErr *models.MessageError
	require.ErrorAs(t, verr, &msgErr)

	// exactly one logon and one logoff around the failed body
	assert.Equal(t, []string{"logon", "profileset", "logoff"}, srv.Commands())
	assert.False(t, srv.SessionActive())
}

func TestRexecDuplicateLogonNotRetried(t *testing.T) {
	var logons atomic.Int32
	srv, err := minertest.Start(minertest.WithHandler(func(req minertest.Request) (any, bool) {
		if req.Command != "logon" {
			return nil, false
		}
		logons.Add(1)
		return map[string]any{
			"STATUS": []any{map[string]any{"Code": 402, "Msg": "Another session is active"}},
			"id":     2,
		}, true
	}))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := rexec.New(rexec.Config{Timeout: 2 * time.Second, Retries: 3})
	_, err = client.Rexec(context.Background(), host, port, "profileset", []string{"board0", "fast"})

	var active *models.SessionAlreadyActiveError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, int32(1), logons.Load(), "a 402 must not be retried")
	// and no command body was sent
	assert.Equal(t, []string{"logon"}, srv.Commands())
}

func TestRexecLogonRetriesTransientFailures(t *testing.T) {
	srv, err := minertest.Start(minertest.WithSessions(), minertest.WithSilentConns(1))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := rexec.New(rexec.Config{Timeout: 300 * time.Millisecond, Retries: 1})
	_, err = client.Rexec(context.Background(), host, port, "profileset", []string{"board0", "fast"})
	require.NoError(t, err)
	assert.Equal(t, []string{"logon", "profileset", "logoff"}, srv.Commands())
}

func TestRexecLogonCommand(t *testing.T) {
	srv, err := minertest.Start(minertest.WithSessions())
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := testClient()
	reply, err := client.Rexec(context.Background(), host, port, "logon", nil)
	require.NoError(t, err)

	session, err := rexec.ValidateOne(reply, "SESSION")
	require.NoError(t, err)
	sid := session.Get("SessionID").String()
	assert.NotEmpty(t, sid)
	assert.True(t, srv.SessionActive(), "rexec(logon) must not release the session")

	_, err = client.Rexec(context.Background(), host, port, "logoff", sid)
	require.NoError(t, err)
	assert.False(t, srv.SessionActive())
}

func TestRexecMapParameters(t *testing.T) {
	srv, err := minertest.Start(minertest.WithSessions())
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	_, err = testClient().Rexec(context.Background(), host, port, "atmset", map[string]any{"enabled": false})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "sid-1,enabled=false", reqs[1].Parameter)
}

func TestRexecTimeoutSurfaced(t *testing.T) {
	srv, err := minertest.Start(minertest.WithSilentConns(10))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := rexec.New(rexec.Config{Timeout: 200 * time.Millisecond})
	_, err = client.Rexec(context.Background(), host, port, "version", nil)

	assert.True(t, rexec.IsTimeout(err))
	connErr, ok := models.AsConnectionError(err)
	require.True(t, ok)
	assert.Equal(t, host, connErr.Host)
	assert.Equal(t, port, connErr.Port)
}

func TestConcurrentSessionsAtMostOneWinner(t *testing.T) {
	srv, err := minertest.Start(minertest.WithSessions(), minertest.WithReplyDelay(150*time.Millisecond))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := testClient()
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := client.Rexec(context.Background(), host, port, "atmset", map[string]any{"enabled": true})
			errs <- err
		}()
	}

	var active, succeeded int
	for i := 0; i < 2; i++ {
		err := <-errs
		if err == nil {
			succeeded++
			continue
		}
		var already *models.SessionAlreadyActiveError
		require.ErrorAs(t, err, &already, "unexpected failure kind: %v", err)
		active++
	}
	assert.Equal(t, 1, succeeded, "at most one concurrent logon may win")
	assert.Equal(t, 1, active)
	assert.False(t, srv.SessionActive(), "the winner must still release its session")
}
