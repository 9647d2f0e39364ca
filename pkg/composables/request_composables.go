package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/territory/pkg/configuration"
	"github.com/iota-uz/territory/pkg/constants"
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the request-scoped logger. Outside a request it falls
// back to the process logger so callers never need a nil check.
func UseLogger(ctx context.Context) *logrus.Entry {
	logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry)
	if !ok {
		return logrus.NewEntry(configuration.Use().Logger())
	}
	return logger
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, requestID)
}

func UseRequestID(ctx context.Context) string {
	requestID, ok := ctx.Value(constants.RequestIDKey).(string)
	if !ok {
		return ""
	}
	return requestID
}
