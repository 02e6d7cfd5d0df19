package template

import "strings"

// templatePart is either a static literal or a variable/function reference.
type templatePart struct {
	isLiteral bool
	literal   string // set when isLiteral == true
	ref       string // content between {{ and }}, set when isLiteral == false
}

// Compiled is a pre-parsed template ready for fast per-device execution.
// Parsing happens once per parameter; only substitution runs per device.
type Compiled struct {
	parts   []templatePart
	hasVars bool // false → purely static string
}

// HasVars reports whether the template contains any placeholder at all.
func (ct *Compiled) HasVars() bool { return ct.hasVars }

// Compile parses a template string once.
func Compile(input string) *Compiled {
	// Fast-path: no placeholders at all.
	if strings.IndexByte(input, '{') == -1 || !strings.Contains(input, "{{") {
		return &Compiled{
			parts:   []templatePart{{isLiteral: true, literal: input}},
			hasVars: false,
		}
	}

	ct := &Compiled{hasVars: true}
	remaining := input
	for {
		start := strings.Index(remaining, "{{")
		if start == -1 {
			if remaining != "" {
				ct.parts = append(ct.parts, templatePart{isLiteral: true, literal: remaining})
			}
			break
		}
		if start > 0 {
			ct.parts = append(ct.parts, templatePart{isLiteral: true, literal: remaining[:start]})
		}
		afterOpen := remaining[start+2:]
		end := strings.Index(afterOpen, "}}")
		if end == -1 {
			// Unterminated — treat the rest as a literal.
			ct.parts = append(ct.parts, templatePart{isLiteral: true, literal: remaining[start:]})
			break
		}
		ref := strings.TrimSpace(afterOpen[:end])
		ct.parts = append(ct.parts, templatePart{isLiteral: false, ref: ref})
		remaining = afterOpen[end+2:]
	}
	return ct
}

// Execute renders the compiled template against a session map.
func (ct *Compiled) Execute(vp *VariableProcessor, session map[string]string) string {
	if !ct.hasVars {
		return ct.parts[0].literal
	}

	literalLen := 0
	for i := range ct.parts {
		if ct.parts[i].isLiteral {
			literalLen += len(ct.parts[i].literal)
		}
	}

	var sb strings.Builder
	sb.Grow(literalLen + 64)

	for i := range ct.parts {
		p := &ct.parts[i]
		if p.isLiteral {
			sb.WriteString(p.literal)
			continue
		}
		if idx := strings.IndexByte(p.ref, '('); idx != -1 && strings.HasSuffix(p.ref, ")") {
			funcName := strings.TrimSpace(p.ref[:idx])
			argStr := p.ref[idx+1 : len(p.ref)-1]
			if f, ok := vp.funcMap[funcName]; ok {
				sb.WriteString(f(parseArgs(argStr)))
			} else {
				// Unknown function — emit the original placeholder.
				sb.WriteString("{{")
				sb.WriteString(p.ref)
				sb.WriteString("}}")
			}
		} else {
			sb.WriteString(vp.getValue(p.ref, session))
		}
	}
	return sb.String()
}
