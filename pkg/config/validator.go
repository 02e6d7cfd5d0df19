package config

import (
	"fmt"
	"strings"

	"github.com/luxops/luxfleet/internal/rexec"
)

// ValidationError represents a single validation error with context and suggestions
type ValidationError struct {
	Field      string // Field path (e.g., "fleet.batch")
	Value      string // The actual value provided (if any)
	Message    string // Error description
	Expected   string // Expected format/type
	Hint       string // Helpful suggestion
	DidYouMean string // Typo correction suggestion
}

// ValidationResult holds all validation errors
type ValidationResult struct {
	Errors []ValidationError
}

// Add adds a new validation error
func (v *ValidationResult) Add(err ValidationError) {
	v.Errors = append(v.Errors, err)
}

// HasErrors returns true if there are validation errors
func (v *ValidationResult) HasErrors() bool {
	return len(v.Errors) > 0
}

// FormatErrors formats all errors into a user-friendly string
func (v *ValidationResult) FormatErrors() string {
	if !v.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n❌ Configuration Errors:\n")

	for i, err := range v.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %s\n", i+1, err.Field))

		if err.Value != "" {
			sb.WriteString(fmt.Sprintf("     ├─ Value: %q\n", truncate(err.Value, 50)))
		}

		sb.WriteString(fmt.Sprintf("     ├─ Error: %s\n", err.Message))

		if err.Expected != "" {
			sb.WriteString(fmt.Sprintf("     ├─ Expected: %s\n", err.Expected))
		}

		if err.DidYouMean != "" {
			sb.WriteString(fmt.Sprintf("     ├─ Did you mean: %q?\n", err.DidYouMean))
		}

		if err.Hint != "" {
			sb.WriteString(fmt.Sprintf("     └─ 💡 Hint: %s\n", err.Hint))
		}
	}

	return sb.String()
}

// Hints for common fields
var fieldHints = map[string]string{
	"command.cmd":      "API command to broadcast (e.g., version, profileset). See the embedded catalog.",
	"command.params":   "Positional parameters (all plain values, or all k=v pairs — never mixed)",
	"fleet.port":       "API port the miners listen on (default 4028)",
	"fleet.batch":      "How many devices run concurrently per batch (e.g., 100)",
	"fleet.rate":       "Cap on job starts per second; 0 disables pacing",
	"fleet.stop_if":    "Abort condition like 'errors > 25%' to stop a bad broadcast early",
	"rexec.timeout":    "Per-attempt timeout with unit (e.g., '3s', '500ms')",
	"rexec.retries":    "Extra attempts per command; 1 means up to two tries",
	"miners.ranges":    "Address expressions: 10.0.0.1, 10.0.0.1:4028, 10.0.0.1-10.0.0.9, comma-joined",
	"miners.ipfile":    "CSV (one segment per cell, '#' comments) or YAML miners file",
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create matrix
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	// Fill matrix
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min3(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// FindClosestMatch finds the closest matching name from valid options
func FindClosestMatch(input string, validOptions []string) string {
	if input == "" {
		return ""
	}

	bestMatch := ""
	bestDistance := 100 // arbitrary large number

	for _, option := range validOptions {
		distance := levenshteinDistance(input, option)
		// Only suggest if distance is reasonable (at most half the option's length plus one)
		if distance < bestDistance && distance <= len(option)/2+1 {
			bestDistance = distance
			bestMatch = option
		}
	}

	// Don't return exact matches as "did you mean"
	if strings.EqualFold(input, bestMatch) {
		return ""
	}

	return bestMatch
}

// GetHint returns a helpful hint for a field
func GetHint(field string) string {
	if hint, ok := fieldHints[field]; ok {
		return hint
	}
	return ""
}

// ValidateCommand checks cmd against the embedded catalog and suggests the
// nearest known command for typos. Unknown commands are allowed on the wire
// (the device answers with its own error), so this returns a suggestion,
// not a hard failure.
func ValidateCommand(cmd string) (bool, string) {
	if _, ok := rexec.Lookup(cmd); ok {
		return true, ""
	}
	return false, FindClosestMatch(cmd, rexec.CommandNames())
}

// ValidateParamsShape enforces "all positional or all k=v, never mixed".
func ValidateParamsShape(params []string) error {
	keyed := 0
	for _, p := range params {
		if strings.Contains(p, "=") {
			keyed++
		}
	}
	if keyed != 0 && keyed != len(params) {
		return fmt.Errorf("mixed parameter styles: use all positional values or all k=v pairs")
	}
	return nil
}

// truncate shortens a string for display
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// min3 returns the minimum of three integers
func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
