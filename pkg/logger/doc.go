// Package logger builds *slog.Logger instances for the billing service.
//
// New applies functional options (format, level, output, static attributes)
// and wraps the resulting handler so that registered ContextExtractor
// callbacks can inject request-scoped values such as the request id:
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, cfg.Name),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "webhook applied", logger.Provider("stripe"), logger.EventID(id))
//
// The attribute helpers in attr.go keep key names consistent across packages.
// Helpers that take optional values return an empty slog.Attr, which slog
// drops, so callers never need a nil check.
package logger
