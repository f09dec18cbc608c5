package postgres

import (
	"net/http"

	"github.com/linnemanlabs/go-core/log"
)

// RequestStats attaches per-request query statistics and the HTTP method to the
// request context, and logs the totals once the handler returns.
func RequestStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := NewReqDBStatsContext(r.Context())
		ctx = WithHTTPMethod(ctx, r.Method)

		next.ServeHTTP(w, r.WithContext(ctx))

		stats, _ := ReqDBStatsFromContext(ctx)
		count, total, errs := stats.Snapshot()
		if count == 0 {
			return
		}
		log.FromContext(ctx).Info(ctx, "request db stats",
			"db.queries", count,
			"db.total_duration", total.Seconds(),
			"db.errors", errs,
		)
	})
}
