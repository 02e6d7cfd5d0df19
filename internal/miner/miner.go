// Package miner provides typed helpers over the raw command executor: one
// function per common read, the write flows that need a session, and the
// scoped ATM toggle the profile flows rely on.
package miner

import (
	"context"
	"fmt"
	"strings"

	"github.com/luxops/luxfleet/internal/rexec"
	"github.com/tidwall/gjson"
)

// camelToSnake converts AVariableCamelCased -> a_variable_camel_cased, the
// key form atmset expects.
func camelToSnake(txt string) string {
	var sb strings.Builder
	runes := []rune(txt)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				sb.WriteByte('_')
			}
		}
		sb.WriteRune(r)
	}
	return strings.ToLower(sb.String())
}

// GetVersion returns the VERSION record.
func GetVersion(ctx context.Context, c *rexec.Client, host string, port int) (gjson.Result, error) {
	res, err := c.Rexec(ctx, host, port, "version", nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return rexec.ValidateOne(res, "VERSION")
}

// GetLimits returns the LIMITS record.
func GetLimits(ctx context.Context, c *rexec.Client, host string, port int) (gjson.Result, error) {
	res, err := c.Rexec(ctx, host, port, "limits", nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return rexec.ValidateOne(res, "LIMITS")
}

// GetConfig returns the CONFIG record.
func GetConfig(ctx context.Context, c *rexec.Client, host string, port int) (gjson.Result, error) {
	res, err := c.Rexec(ctx, host, port, "config", nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return rexec.ValidateOne(res, "CONFIG")
}

// GetATM returns the ATM record.
func GetATM(ctx context.Context, c *rexec.Client, host string, port int) (gjson.Result, error) {
	res, err := c.Rexec(ctx, host, port, "atm", nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return rexec.ValidateOne(res, "ATM")
}

// SetATM issues atmset with the given settings; keys may be CamelCased the
// way the device reports them.
func SetATM(ctx context.Context, c *rexec.Client, host string, port int, settings map[string]any) error {
	params := make(map[string]any, len(settings))
	for key, value := range settings {
		params[camelToSnake(key)] = value
	}
	res, err := c.Rexec(ctx, host, port, "atmset", params)
	if err != nil {
		return err
	}
	return rexec.Validate(res)
}

// ATMToggle builds the scoped toggle over the atm/atmset pair.
func ATMToggle(c *rexec.Client, host string, port int) Toggle[bool] {
	return Toggle[bool]{
		Read: func(ctx context.Context) (bool, error) {
			atm, err := GetATM(ctx, c, host, port)
			if err != nil {
				return false, err
			}
			return atm.Get("Enabled").Bool(), nil
		},
		Write: func(ctx context.Context, enabled bool) error {
			return SetATM(ctx, c, host, port, map[string]any{"enabled": enabled})
		},
	}
}

// WithATM runs fn with ATM set to the given enabled value, restoring the
// previous state afterwards, success or fail.
func WithATM(ctx context.Context, c *rexec.Client, host string, port int, enabled bool, fn func(wasEnabled bool) error) error {
	return ATMToggle(c, host, port).With(ctx, enabled, fn)
}

// GetProfiles returns all tuning profiles keyed by profile name.
func GetProfiles(ctx context.Context, c *rexec.Client, host string, port int) (map[string]gjson.Result, error) {
	res, err := c.Rexec(ctx, host, port, "profiles", nil)
	if err != nil {
		return nil, err
	}
	entries, err := rexec.ValidateFields(res, "PROFILES", 0, maxFields)
	if err != nil {
		return nil, err
	}
	out := make(map[string]gjson.Result, len(entries))
	for _, p := range entries {
		out[p.Get("Profile Name").String()] = p
	}
	return out, nil
}

// SetProfile applies a profile to a board. ATM fights profile changes, so
// the write happens under a scoped ATM-off window.
func SetProfile(ctx context.Context, c *rexec.Client, host string, port int, board int, profile string) (gjson.Result, error) {
	var applied gjson.Result
	err := WithATM(ctx, c, host, port, false, func(bool) error {
		res, err := c.Rexec(ctx, host, port, "profileset", []any{board, profile})
		if err != nil {
			return err
		}
		applied, err = rexec.ValidateOne(res, "PROFILE")
		return err
	})
	return applied, err
}

// GetAutotuner returns the AUTOTUNER record.
func GetAutotuner(ctx context.Context, c *rexec.Client, host string, port int) (gjson.Result, error) {
	res, err := c.Rexec(ctx, host, port, "autotunerget", nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return rexec.ValidateOne(res, "AUTOTUNER")
}

// GetDevs returns the DEVS records keyed by ASC index.
func GetDevs(ctx context.Context, c *rexec.Client, host string, port int) (map[int64]gjson.Result, error) {
	res, err := c.Rexec(ctx, host, port, "devs", nil)
	if err != nil {
		return nil, err
	}
	entries, err := rexec.ValidateFields(res, "DEVS", 1, maxFields)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]gjson.Result, len(entries))
	for _, dev := range entries {
		asc := dev.Get("ASC").Int()
		if _, dup := out[asc]; dup {
			return nil, fmt.Errorf("duplicate DEVS entry for ASC %d", asc)
		}
		out[asc] = dev
	}
	return out, nil
}

// Board bundles a hash board with its per-chip health data.
type Board struct {
	Board gjson.Result
	Chips []gjson.Result
}

// GetBoards returns board and chip info keyed by board ID, issuing one
// healthchipget per board.
func GetBoards(ctx context.Context, c *rexec.Client, host string, port int) (map[int64]Board, error) {
	res, err := c.Rexec(ctx, host, port, "devdetails", nil)
	if err != nil {
		return nil, err
	}
	boards, err := rexec.ValidateFields(res, "DEVDETAILS", 1, maxFields)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]Board, len(boards))
	for _, board := range boards {
		bid := board.Get("ID").Int()
		res, err := c.Rexec(ctx, host, port, "healthchipget", bid)
		if err != nil {
			return nil, err
		}
		chips, err := rexec.ValidateFields(res, "CHIPS", 1, maxFields)
		if err != nil {
			return nil, err
		}
		out[bid] = Board{Board: board, Chips: chips}
	}
	return out, nil
}

// GetState gathers the broad device state in one call: config, profiles,
// version, groups, pools, atm and autotuner.
func GetState(ctx context.Context, c *rexec.Client, host string, port int) (map[string]any, error) {
	state := make(map[string]any)

	cfg, err := GetConfig(ctx, c, host, port)
	if err != nil {
		return nil, err
	}
	state["config"] = cfg.Value()

	profiles, err := GetProfiles(ctx, c, host, port)
	if err != nil {
		return nil, err
	}
	profileValues := make(map[string]any, len(profiles))
	for name, p := range profiles {
		profileValues[name] = p.Value()
	}
	state["profiles"] = profileValues

	version, err := GetVersion(ctx, c, host, port)
	if err != nil {
		return nil, err
	}
	state["version"] = version.Value()

	for field, cmd := range map[string]string{"GROUPS": "groups", "POOLS": "pools"} {
		res, err := c.Rexec(ctx, host, port, cmd, nil)
		if err != nil {
			return nil, err
		}
		entries, err := rexec.ValidateFields(res, field, 0, maxFields)
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(entries))
		for _, e := range entries {
			values = append(values, e.Value())
		}
		state[cmd] = values
	}

	atm, err := GetATM(ctx, c, host, port)
	if err != nil {
		return nil, err
	}
	state["atm"] = atm.Value()

	autotuner, err := GetAutotuner(ctx, c, host, port)
	if err != nil {
		return nil, err
	}
	state["autotuner"] = autotuner.Value()

	return state, nil
}

// maxFields stands in for "no upper bound" on list-valued fields.
const maxFields = 1 << 30
