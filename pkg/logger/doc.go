// Package logger builds configured slog.Logger instances for plankit based
// applications.
//
// The factory applies production-safe defaults (JSON output at info level)
// and exposes options for format, level, static attributes, and dynamic
// attributes extracted from context on every log call.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("billing"),
//	    logger.WithContextValue("request_id", requestIDKey),
//	)
//	logger.SetAsDefault(log)
//
// Pass the logger to the subscription engine:
//
//	svc := subscription.NewService(catalog, store, usage,
//	    subscription.WithLogger(log),
//	)
package logger
