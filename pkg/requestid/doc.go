// Package requestid tags every request with a correlation id.
//
// Middleware reuses a well-formed X-Request-ID header or generates a UUID,
// stores it in the request context and echoes it in the response.
// LoggerExtractor adds the id to every slog record written with that context,
// and AccessLog writes one record per request.
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware, requestid.AccessLog(log))
package requestid
