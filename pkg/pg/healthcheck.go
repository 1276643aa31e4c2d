package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const healthcheckTimeout = 2 * time.Second

// Healthcheck returns a readiness check for the pool. A pool whose
// connections are all acquired is reported unhealthy without pinging.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if st := pool.Stat(); st.MaxConns() > 0 && st.AcquiredConns() >= st.MaxConns() {
			return fmt.Errorf("%w: pool saturated (%d/%d)", ErrHealthcheckFailed, st.AcquiredConns(), st.MaxConns())
		}

		ctx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
