// Package httpserver runs an http.Handler with graceful shutdown.
//
// Run blocks until the context is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests within the shutdown timeout and runs the
// registered cleanup functions in reverse order:
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithCleanup(func(context.Context) error { pool.Close(); return nil }),
//	)
//	err := srv.Run(ctx, router)
//
// HealthCheckHandler serves liveness (no checks) and readiness (named checks)
// endpoints.
package httpserver
