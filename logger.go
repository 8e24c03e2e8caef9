package batchworker

import (
	"errors"
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler and
// configures the log level from the BATCHWORKER_LOG_LEVEL environment
// variable, defaulting to Info. Call this once at process startup.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("BATCHWORKER_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel overrides the level configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// logFields builds the structured attributes every log line touching a file
// operation should carry, per §7.
func logFields(workerID, instanceID, fileID string, page int, cumulativeRows int64) []any {
	return []any{
		"workerId", workerID,
		"instanceId", instanceID,
		"fileId", fileID,
		"page", page,
		"cumulativeRows", cumulativeRows,
		"kind", Unknown.String(),
	}
}

// logRunError logs err's §7 structured fields at a level matching whether
// the run will retry: a *Error carries workerId/instanceId/fileId/page so
// the host's log aggregation can filter by any of them (§7 "user-visible
// failure ... structured logs carrying workerId, instanceId, fileId, page,
// cumulativeRows, and the error kind").
func logRunError(msg string, err error) {
	var e *Error
	if errors.As(err, &e) {
		fields := logFields(e.WorkerID, e.InstanceID, e.FileID, e.Page, e.CumulativeRows)
		fields[len(fields)-1] = e.Kind.String()
		fields = append(fields, "error", e.Err)
		if ShouldRetry(err) {
			slog.Warn(msg, fields...)
		} else {
			slog.Error(msg, fields...)
		}
		return
	}
	if ShouldRetry(err) {
		slog.Warn(msg, "error", err)
	} else {
		slog.Error(msg, "error", err)
	}
}
