package rexec

import (
	"fmt"

	"github.com/luxops/luxfleet/pkg/models"
	"github.com/tidwall/gjson"
)

// Validate asserts the mandatory reply envelope: STATUS and id present.
func Validate(r *Reply) error {
	for _, key := range []string{"STATUS", "id"} {
		if !r.Field(key).Exists() {
			return models.NewMessageMalformed(r.host, r.port, "missing "+key, r.raw)
		}
	}
	return nil
}

// ValidateFields checks the envelope plus the cardinality of a list-valued
// field. Bounds are inclusive. An absent field is fine when min == 0 (the
// device convention for "empty POOLS") and an error otherwise. A reply whose
// STATUS[0].STATUS is "E" always fails, carrying the device message.
func ValidateFields(r *Reply, field string, min, max int) ([]gjson.Result, error) {
	if min > max {
		return nil, fmt.Errorf("impossible cardinality for %s: min %d > max %d", field, min, max)
	}
	if err := Validate(r); err != nil {
		return nil, err
	}

	if first, ok := r.First(); ok && first.Status == "E" {
		return nil, models.NewMessageError(r.host, r.port, first.Msg, r.raw)
	}

	f := r.Field(field)
	if !f.Exists() {
		if min == 0 {
			return nil, nil
		}
		return nil, models.NewMessageInvalid(r.host, r.port, field, 0, min, max, r.raw)
	}
	if !f.IsArray() {
		return nil, models.NewMessageMalformed(r.host, r.port, field+" is not a list", r.raw)
	}

	entries := f.Array()
	if n := len(entries); n < min || n > max {
		return nil, models.NewMessageInvalid(r.host, r.port, field, n, min, max, r.raw)
	}
	return entries, nil
}

// ValidateOne is the (1,1) cardinality convenience: it returns the single
// element itself, not a one-element list. Downstream callers rely on this.
func ValidateOne(r *Reply, field string) (gjson.Result, error) {
	entries, err := ValidateFields(r, field, 1, 1)
	if err != nil {
		return gjson.Result{}, err
	}
	return entries[0], nil
}
