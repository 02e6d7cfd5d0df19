package miner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luxops/luxfleet/internal/minertest"
	"github.com/luxops/luxfleet/internal/rexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamelToSnake(t *testing.T) {
	tests := map[string]string{
		"Enabled":             "enabled",
		"AVariableCamelCased": "a_variable_camel_cased",
		"MaxProfile":          "max_profile",
		"already_snake":       "already_snake",
		"HTTPPort":            "http_port",
	}
	for in, want := range tests {
		assert.Equal(t, want, camelToSnake(in), in)
	}
}

// atmMiner scripts a device whose ATM flag is real state, so the scoped
// toggle can be observed end to end.
type atmMiner struct {
	mu      sync.Mutex
	enabled bool
	atmSets []string
}

func (m *atmMiner) handler(req minertest.Request) (any, bool) {
	switch req.Command {
	case "atm":
		m.mu.Lock()
		defer m.mu.Unlock()
		return map[string]any{
			"STATUS": []any{map[string]any{"STATUS": "S", "Code": 22}},
			"id":     1,
			"ATM":    []any{map[string]any{"Enabled": m.enabled}},
		}, true
	case "atmset":
		m.mu.Lock()
		defer m.mu.Unlock()
		m.atmSets = append(m.atmSets, req.Parameter)
		// parameter is "<sid>,enabled=<bool>"
		m.enabled = req.Parameter[len(req.Parameter)-4:] == "true"
		return map[string]any{
			"STATUS": []any{map[string]any{"STATUS": "S", "Code": 22}},
			"id":     1,
		}, true
	case "profileset":
		return map[string]any{
			"STATUS":  []any{map[string]any{"STATUS": "S", "Code": 22}},
			"id":      1,
			"PROFILE": []any{map[string]any{"Profile": "fast", "Board": 0}},
		}, true
	}
	return nil, false
}

func TestSetProfileTogglesATM(t *testing.T) {
	device := &atmMiner{enabled: true}
	srv, err := minertest.Start(minertest.WithSessions(), minertest.WithHandler(device.handler))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := rexec.New(rexec.Config{Timeout: 2 * time.Second})
	applied, err := SetProfile(context.Background(), client, host, port, 0, "fast")
	require.NoError(t, err)
	assert.Equal(t, "fast", applied.Get("Profile").String())

	// ATM was disabled for the write and re-enabled afterwards.
	device.mu.Lock()
	defer device.mu.Unlock()
	require.Len(t, device.atmSets, 2)
	assert.Contains(t, device.atmSets[0], "enabled=false")
	assert.Contains(t, device.atmSets[1], "enabled=true")
	assert.True(t, device.enabled)
}

func TestWithATMSkipsWriteWhenAlreadyOff(t *testing.T) {
	device := &atmMiner{enabled: false}
	srv, err := minertest.Start(minertest.WithSessions(), minertest.WithHandler(device.handler))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := rexec.New(rexec.Config{Timeout: 2 * time.Second})
	err = WithATM(context.Background(), client, host, port, false, func(wasEnabled bool) error {
		assert.False(t, wasEnabled)
		return nil
	})
	require.NoError(t, err)

	device.mu.Lock()
	defer device.mu.Unlock()
	assert.Empty(t, device.atmSets, "no atmset when ATM already holds the target")
}

func TestGetVersion(t *testing.T) {
	srv, err := minertest.Start(minertest.WithHandler(func(req minertest.Request) (any, bool) {
		if req.Command != "version" {
			return nil, false
		}
		return map[string]any{
			"STATUS":  []any{map[string]any{"STATUS": "S", "Code": 22}},
			"id":      1,
			"VERSION": []any{map[string]any{"API": "3.7", "LUXminer": "2024.5.1"}},
		}, true
	}))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := rexec.New(rexec.Config{Timeout: 2 * time.Second})
	version, err := GetVersion(context.Background(), client, host, port)
	require.NoError(t, err)
	assert.Equal(t, "3.7", version.Get("API").String())
}

func TestGetProfilesEmptyIsFine(t *testing.T) {
	srv, err := minertest.Start(minertest.WithHandler(func(req minertest.Request) (any, bool) {
		if req.Command != "profiles" {
			return nil, false
		}
		// no PROFILES key at all: min == 0 tolerates it
		return map[string]any{
			"STATUS": []any{map[string]any{"STATUS": "S", "Code": 22}},
			"id":     1,
		}, true
	}))
	require.NoError(t, err)
	defer srv.Close()
	host, port := srv.HostPort()

	client := rexec.New(rexec.Config{Timeout: 2 * time.Second})
	profiles, err := GetProfiles(context.Background(), client, host, port)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}
