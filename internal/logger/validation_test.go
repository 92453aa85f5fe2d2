package logger

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

// TestValidateFilenamePattern tests filename pattern validation
func TestValidateFilenamePattern(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		shouldError bool
		mention     string
	}{
		{name: "simple daily pattern", pattern: "farmersaid-YYYYMMDD.log"},
		{name: "pattern with dashes", pattern: "farmersaid-YYYY-MM-DD.log"},
		{name: "pattern with underscores", pattern: "farmersaid_YYYY_MM_DD.log"},
		{name: "empty pattern uses default", pattern: ""},
		{
			name:        "forward slashes",
			pattern:     "farmersaid-MM/DD/YYYY.log",
			shouldError: true,
			mention:     "'/'",
		},
		{
			name:        "backslashes",
			pattern:     `farmersaid\YYYY.log`,
			shouldError: true,
			mention:     `'\'`,
		},
		{
			name:        "colon",
			pattern:     "farmersaid-HH:MM.log",
			shouldError: runtime.GOOS == "windows",
			mention:     "colon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilenamePattern(tt.pattern)
			if (err != nil) != tt.shouldError {
				t.Fatalf("ValidateFilenamePattern(%q) error = %v, shouldError %v", tt.pattern, err, tt.shouldError)
			}
			if err == nil {
				return
			}

			var fve *FilenameValidationError
			if !errors.As(err, &fve) {
				t.Fatalf("Expected FilenameValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("Error message doesn't mention %s: %s", tt.mention, err.Error())
			}
		})
	}
}

func TestFilenameSuggestion(t *testing.T) {
	err := ValidateFilenamePattern("farmersaid-MM/DD/YYYY.log")

	var fve *FilenameValidationError
	if !errors.As(err, &fve) {
		t.Fatalf("Expected FilenameValidationError, got %v", err)
	}
	if fve.Suggestion != "farmersaid-MM-DD-YYYY.log" {
		t.Errorf("Unexpected suggestion %q", fve.Suggestion)
	}
	if ValidateFilenamePattern(fve.Suggestion) != nil {
		t.Errorf("Suggestion %q does not validate", fve.Suggestion)
	}
}
