package rexec

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"sort"
)

//go:embed api.json
var apiJSON []byte

// CatalogEntry is the reference data for one API command.
type CatalogEntry struct {
	LogonRequired bool   `json:"logon_required"`
	Description   string `json:"description"`
}

// commands is process-wide immutable reference data, built once at startup.
var commands = func() map[string]CatalogEntry {
	m := make(map[string]CatalogEntry)
	if err := json.Unmarshal(apiJSON, &m); err != nil {
		panic("rexec: embedded api.json is broken: " + err.Error())
	}
	return m
}()

// Lookup returns the catalog entry for cmd.
func Lookup(cmd string) (CatalogEntry, bool) {
	e, ok := commands[cmd]
	return e, ok
}

// LogonRequired reports whether cmd needs a session token as its first
// parameter. Unknown commands are treated as session-free.
func LogonRequired(cmd string) bool {
	e, ok := commands[cmd]
	if !ok {
		slog.Debug("command not in catalog, assuming no session required", "cmd", cmd)
		return false
	}
	return e.LogonRequired
}

// CommandNames returns all catalog commands in sorted order.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
