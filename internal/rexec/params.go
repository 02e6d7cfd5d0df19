package rexec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParamsToList normalizes a caller-supplied parameter value into the ordered
// positional list the API expects. Accepted shapes: nil, a scalar, a slice
// of scalars, or a string-keyed map of scalars (emitted as "k=v" with keys
// sorted for determinism). Anything else is a programmer error, not a
// device error.
func ParamsToList(parameters any) ([]string, error) {
	switch p := parameters.(type) {
	case nil:
		return []string{}, nil
	case []string:
		out := make([]string, len(p))
		copy(out, p)
		return out, nil
	case []any:
		out := make([]string, 0, len(p))
		for _, v := range p {
			s, err := formatScalar(v)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case map[string]string:
		m := make(map[string]any, len(p))
		for k, v := range p {
			m[k] = v
		}
		return mapToList(m)
	case map[string]any:
		return mapToList(p)
	default:
		s, err := formatScalar(parameters)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func mapToList(m map[string]any) ([]string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(m))
	for _, k := range keys {
		v, err := formatScalar(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}

// formatScalar renders a scalar in the canonical wire form: JSON-style
// true/false/null and plain decimal numerics.
func formatScalar(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "null", nil
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case int:
		return strconv.Itoa(s), nil
	case int32:
		return strconv.FormatInt(int64(s), 10), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case uint:
		return strconv.FormatUint(uint64(s), 10), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported parameter type %T", v)
	}
}

// JoinParams produces the comma-joined "parameter" string. An empty list
// means the request carries no parameter key at all.
func JoinParams(params []string) string {
	return strings.Join(params, ",")
}
