package httpx

import (
	"context"
	"net/http"
	"sort"
	"strings"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Health returns {"status":"ok"} when every check passes, otherwise a 503
// problem naming the failing dependencies.
func Health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var failed []string
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(r.Context()); err != nil {
				failed = append(failed, name)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "unhealthy: "+strings.Join(failed, ", "))
			return
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
