package model

import (
	"context"
	"fmt"

	"github.com/hairizuan-noorazman/desktop-agent/logger"
)

// retryLogger adapts logger.Logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	log logger.Logger
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.log.Error(context.Background(), msg, kvFields(keysAndValues))
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.log.Warn(context.Background(), msg, kvFields(keysAndValues))
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.log.Debug(context.Background(), msg, kvFields(keysAndValues))
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.log.Debug(context.Background(), msg, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
