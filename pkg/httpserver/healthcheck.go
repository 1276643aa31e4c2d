package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/authflow/pkg/logger"
)

const defaultCheckTimeout = 3 * time.Second

// Check is a named readiness dependency.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler reports ALIVE when no checks are given. Otherwise each
// check runs with a short deadline and the handler answers READY or
// NOT_READY (503) with per-check results.
func HealthCheckHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ALIVE"}
		status := http.StatusOK

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), defaultCheckTimeout)
			defer cancel()

			report.Status, report.Checks = "READY", make(map[string]string, len(checks))
			for _, c := range checks {
				if err := c.Fn(ctx); err != nil {
					log.ErrorContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
					report.Checks[c.Name] = "fail"
					report.Status, status = "NOT_READY", http.StatusServiceUnavailable
					continue
				}
				report.Checks[c.Name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
