// Package template expands {{var}} placeholders inside broadcast parameters
// so a single --params flag can produce per-device values (unique worker
// names, the target host, timestamps, generated strings).
package template

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucasjones/reggen"
)

const alphanum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// VariableProcessor handles the replacement of {{var}} in strings
type VariableProcessor struct {
	funcMap map[string]func([]string) string
}

// NewVariableProcessor creates a new processor with built-in functions
func NewVariableProcessor() *VariableProcessor {
	vp := &VariableProcessor{}
	vp.initFuncMap()
	return vp
}

func (vp *VariableProcessor) initFuncMap() {
	vp.funcMap = map[string]func([]string) string{
		"random_choice": func(args []string) string {
			if len(args) == 0 {
				return ""
			}
			return args[rand.IntN(len(args))]
		},
		"random_int_range": func(args []string) string {
			if len(args) != 2 {
				return "ERROR:random_int_range_needs_min_max"
			}
			min, _ := strconv.Atoi(strings.TrimSpace(args[0]))
			max, _ := strconv.Atoi(strings.TrimSpace(args[1]))
			if max <= min {
				return strconv.Itoa(min)
			}
			return strconv.Itoa(rand.IntN(max-min) + min)
		},
		"random_string": func(args []string) string {
			length := 10
			if len(args) >= 1 {
				if l, err := strconv.Atoi(args[0]); err == nil {
					length = l
				}
			}
			chars := alphanum
			if len(args) >= 2 {
				chars = args[1]
			}
			b := make([]byte, length)
			for i := range b {
				b[i] = chars[rand.IntN(len(chars))]
			}
			return string(b)
		},
		"regex_gen": func(args []string) string {
			if len(args) != 1 {
				return "ERROR:regex_gen_needs_pattern"
			}
			res, err := reggen.Generate(args[0], 10) // 10 is max length for repeats
			if err != nil {
				return "ERROR:regex_gen_failed"
			}
			return res
		},
		"time_future": func(args []string) string {
			if len(args) < 1 {
				return "ERROR:time_future_needs_duration"
			}
			dur, err := time.ParseDuration(args[0])
			if err != nil {
				return "ERROR:invalid_duration"
			}
			layout := time.RFC3339
			if len(args) >= 2 {
				layout = args[1]
			}
			return time.Now().Add(dur).Format(layout)
		},
	}
}

// Process replaces placeholders in the input string using the session map
// and dynamic generators. Session variables win over dynamic ones, so
// {{host}}/{{port}} set per device always take effect.
func (vp *VariableProcessor) Process(input string, session map[string]string) string {
	return Compile(input).Execute(vp, session)
}

func (vp *VariableProcessor) getValue(name string, session map[string]string) string {
	// 1. Check Session
	if val, ok := session[name]; ok {
		return val
	}

	// 2. Dynamic Generators
	switch name {
	case "uuid":
		return uuid.New().String()
	case "random_int":
		return fmt.Sprintf("%d", rand.IntN(100000))
	case "timestamp":
		return fmt.Sprintf("%d", time.Now().Unix())
	case "timestamp_ms":
		return fmt.Sprintf("%d", time.Now().UnixMilli())
	case "random_alphanum":
		b := make([]byte, 10)
		for i := range b {
			b[i] = alphanum[rand.IntN(len(alphanum))]
		}
		return string(b)
	case "random_bool":
		if rand.IntN(2) == 0 {
			return "false"
		}
		return "true"
	case "iso8601":
		return time.Now().UTC().Format(time.RFC3339)
	}

	// Fallback: keep placeholder for debugging
	return "{{" + name + "}}"
}

// parseArgs splits a string by comma, respecting quotes (simple implementation)
func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false

	for _, r := range s {
		switch r {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				args = append(args, strings.TrimSpace(current.String()))
				current.Reset()
				continue
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	for i, arg := range args {
		if strings.HasPrefix(arg, "\"") && strings.HasSuffix(arg, "\"") && len(arg) >= 2 {
			args[i] = arg[1 : len(arg)-1]
		}
	}
	return args
}

// DeviceSession builds the per-device session map handed to Execute.
func DeviceSession(host string, port int, index int) map[string]string {
	return map[string]string{
		"host":  host,
		"port":  strconv.Itoa(port),
		"index": strconv.Itoa(index),
	}
}
