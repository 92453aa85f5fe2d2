package logger

import (
	"fmt"
	"runtime"
	"strings"
)

// FilenameValidationError reports characters that cannot appear in a log filename
type FilenameValidationError struct {
	Pattern      string
	InvalidChars []rune
	Platform     string
	Suggestion   string
}

func (e *FilenameValidationError) Error() string {
	quoted := make([]string, 0, len(e.InvalidChars))
	for _, r := range e.InvalidChars {
		quoted = append(quoted, describeChar(r))
	}
	msg := fmt.Sprintf("invalid filename pattern %q: contains %s (not allowed on %s)",
		e.Pattern, strings.Join(quoted, ", "), e.Platform)
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; try %q", e.Suggestion)
	}
	return msg
}

// windowsReserved are rejected only when running on Windows
var windowsReserved = map[rune]string{
	':': "colon",
	'|': "pipe",
	'*': "asterisk",
	'?': "question mark",
	'<': "angle brackets",
	'>': "angle brackets",
	'"': "quotes",
}

func describeChar(r rune) string {
	if name, ok := windowsReserved[r]; ok {
		return fmt.Sprintf("'%c' (%s)", r, name)
	}
	if r == 0 {
		return "NUL"
	}
	return fmt.Sprintf("'%c'", r)
}

// ValidateFilenamePattern checks that pattern is a bare filename valid on this platform.
// The directory belongs in the logging directory setting.
func ValidateFilenamePattern(pattern string) error {
	if pattern == "" {
		return nil
	}

	invalid := findInvalidChars(pattern)
	if len(invalid) == 0 {
		return nil
	}

	platform := "any platform"
	for _, r := range invalid {
		if _, ok := windowsReserved[r]; ok {
			platform = "Windows"
			break
		}
	}

	return &FilenameValidationError{
		Pattern:      pattern,
		InvalidChars: invalid,
		Platform:     platform,
		Suggestion:   suggestFilename(pattern, invalid),
	}
}

func findInvalidChars(name string) []rune {
	var out []rune
	seen := make(map[rune]bool)
	for _, r := range name {
		bad := r == '/' || r == '\\' || r == 0
		if _, ok := windowsReserved[r]; ok && runtime.GOOS == "windows" {
			bad = true
		}
		if bad && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func suggestFilename(pattern string, invalid []rune) string {
	out := pattern
	for _, r := range invalid {
		replacement := "-"
		if r == 0 || r == '"' || r == '<' || r == '>' {
			replacement = ""
		}
		out = strings.ReplaceAll(out, string(r), replacement)
	}
	return out
}
