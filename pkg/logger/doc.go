// Package logger builds the process-wide slog.Logger: JSON or text handler,
// env-driven level, static attributes and per-record context extraction for
// request-scoped values like event and subject ids.
//
//	log := logger.New(
//		logger.WithLevel(slog.LevelDebug),
//		logger.WithAttr(slog.String("service", "subsync")),
//	)
//	logger.SetAsDefault(log)
package logger
