package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DatabaseChecker pings the database with a short deadline.
func DatabaseChecker(db *sql.DB) Checker {
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			return Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return Status{Name: "database", Healthy: true}
	}
}

// SnapshotChecker reports unhealthy when the price snapshot is older than
// maxAge. ageFn reports the current snapshot age.
func SnapshotChecker(ageFn func(now time.Time) time.Duration, maxAge time.Duration) Checker {
	return func(ctx context.Context) Status {
		age := ageFn(time.Now())
		if age > maxAge {
			return Status{
				Name:    "snapshot",
				Healthy: false,
				Detail:  fmt.Sprintf("snapshot stale: age %s exceeds %s", age.Round(time.Second), maxAge),
			}
		}
		return Status{Name: "snapshot", Healthy: true}
	}
}
