package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// Returns an empty Attr for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// EventID records a provider event identifier.
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// SubjectID records the customer the log line is about.
func SubjectID(id string) slog.Attr {
	return slog.String("subject_id", id)
}

// Fingerprint records an idempotency fingerprint.
func Fingerprint(fp string) slog.Attr {
	return slog.String("fingerprint", fp)
}

// Component tags the emitting component (processor, sweeper, lock, ...).
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
