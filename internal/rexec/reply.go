package rexec

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Status is one entry of the STATUS envelope field. STATUS is "S" on
// success, "E" on error, "W" on warning.
type Status struct {
	Status      string `json:"STATUS"`
	Code        int    `json:"Code"`
	Msg         string `json:"Msg"`
	Description string `json:"Description"`
}

// Reply is a decoded device answer. It keeps the raw bytes so field access
// stays cheap (gjson) and error reports can carry the original message.
type Reply struct {
	host string
	port int
	raw  []byte
}

// NewReply wraps raw reply bytes for the device at host:port.
func NewReply(host string, port int, raw []byte) *Reply {
	return &Reply{host: host, port: port, raw: raw}
}

// Raw returns the reply bytes as received (NUL stripped).
func (r *Reply) Raw() []byte { return r.raw }

// Field looks up a top-level field by name.
func (r *Reply) Field(name string) gjson.Result {
	return gjson.GetBytes(r.raw, name)
}

// Statuses decodes the STATUS envelope entries. A missing or non-list
// STATUS yields nil; Validate is the place that turns that into an error.
func (r *Reply) Statuses() []Status {
	field := r.Field("STATUS")
	if !field.IsArray() {
		return nil
	}
	var out []Status
	if err := json.Unmarshal([]byte(field.Raw), &out); err != nil {
		return nil
	}
	return out
}

// First returns STATUS[0], the entry that carries the status code.
func (r *Reply) First() (Status, bool) {
	st := r.Statuses()
	if len(st) == 0 {
		return Status{}, false
	}
	return st[0], true
}

// ID returns the top-level reply id.
func (r *Reply) ID() (int64, bool) {
	field := r.Field("id")
	if !field.Exists() {
		return 0, false
	}
	return field.Int(), true
}

// Map decodes the whole reply into a generic mapping, for callers that want
// to hand the result to JSON output or user routines.
func (r *Reply) Map() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(r.raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
