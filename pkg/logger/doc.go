// Package logger builds context-aware *slog.Logger instances for authflow
// services and provides attribute helpers that keep key names consistent
// across packages.
//
// New applies functional options on top of production defaults (JSON, INFO,
// stdout) and wraps the resulting handler with LogHandlerDecorator, which runs
// registered ContextExtractor callbacks on every record. This is how request
// identifiers and client identifiers reach log lines without being threaded
// through every call.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "authflow"),
//		logger.WithContextExtractors(requestid.LogExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "callback resolved",
//		logger.Component("resolver"),
//		logger.Provider("kakao"),
//		logger.UserID(identity.UserID),
//	)
//
// Helpers return an empty slog.Attr for nil/empty input, which slog drops, so
// they are safe to pass unconditionally.
package logger
