package errorutil

import (
	"fmt"
	"log/slog"
)

// LogAndWrap logs an error with structured context and returns it wrapped
// with the operation name. With a nil logger the error is returned as is.
func LogAndWrap(logger *slog.Logger, operation string, err error, attrs ...slog.Attr) error {
	if logger == nil || err == nil {
		return err
	}

	logger.Error(operation+" failed", withError(err, attrs)...)
	return fmt.Errorf("%s: %w", operation, err)
}

// LogWarning logs a recoverable error without wrapping it
func LogWarning(logger *slog.Logger, operation string, err error, attrs ...slog.Attr) {
	if logger == nil || err == nil {
		return
	}

	logger.Warn("Non-fatal error in "+operation, withError(err, attrs)...)
}

func withError(err error, attrs []slog.Attr) []any {
	out := make([]any, 0, len(attrs)+1)
	out = append(out, slog.String("error", err.Error()))
	for _, attr := range attrs {
		out = append(out, attr)
	}
	return out
}

// LocationContext creates attributes describing the queried place. Empty
// values are left out.
func LocationContext(place, latitude, longitude string) []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if place != "" {
		attrs = append(attrs, slog.String("place", place))
	}
	if latitude != "" && longitude != "" {
		attrs = append(attrs, slog.String("latitude", latitude), slog.String("longitude", longitude))
	}
	return attrs
}

// SourceContext creates attributes for an upstream data source
func SourceContext(source, operation string) []slog.Attr {
	attrs := []slog.Attr{slog.String("source", source)}
	if operation != "" {
		attrs = append(attrs, slog.String("operation", operation))
	}
	return attrs
}

// FileContext creates context attributes for file operations
func FileContext(filePath string) []slog.Attr {
	if filePath == "" {
		return nil
	}
	return []slog.Attr{slog.String("file_path", filePath)}
}

// APIContext creates context attributes for language model calls
func APIContext(provider, model string) []slog.Attr {
	attrs := make([]slog.Attr, 0, 2)
	if provider != "" {
		attrs = append(attrs, slog.String("api_provider", provider))
	}
	if model != "" {
		attrs = append(attrs, slog.String("model", model))
	}
	return attrs
}
