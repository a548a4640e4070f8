package logger

import "context"

// Logger is the structured logger every agent component receives.
// Fields are attached to the single line produced by the call.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})

	// WithField returns a logger that adds key=value to every subsequent line.
	WithField(key string, value interface{}) Logger

	// WithFields returns a logger that adds all fields to every subsequent line.
	WithFields(fields map[string]interface{}) Logger
}
