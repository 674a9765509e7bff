package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the evaluation, trigger, regex cache and constraint health
// series of this collector. The monitor command mounts it at
// telemetry.metrics.path next to the liveness and readiness endpoints. A
// collector that fails during a scrape is skipped rather than failing the
// whole response.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
