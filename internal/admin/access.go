package admin

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/middleware/metadata"
)

// AccessAudit publishes one access record per request in realm once the
// response has been written. Rejected requests are recorded too.
func AccessAudit(accessAuditor *audit.Auditor, realm string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !accessAuditor.IsAuditing(realm, audit.TopicAccess) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ctx := r.Context()
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			result := "SUCCESSFUL"
			if status >= http.StatusBadRequest {
				result = "FAILED"
			}

			b := accessAuditor.Event().
				Realm(realm).
				Time(start).
				EventName("AUDIT_ADMIN_ACCESS").
				Component(audit.ComponentAudit).
				HTTP(r.Method, r.URL.Path).
				Response(result, time.Since(start))
			if ip := metadata.ClientIP(ctx); ip != "" {
				b.Client(ip, metadata.UserAgent(ctx))
				b.Context(audit.ContextIP, ip)
			}
			if id := metadata.RequestID(ctx); id != "" {
				b.Context(audit.ContextRequest, id)
			}

			rec, err := b.Build()
			if err != nil {
				logger.ErrorContext(ctx, "failed to build admin access event", "error", err)
				return
			}
			accessAuditor.Publish(ctx, rec)
		})
	}
}
