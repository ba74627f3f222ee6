package metrics

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorsync_events_total",
			Help: "Change notifications processed by monitors",
		},
		[]string{"kind"},
	)

	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorsync_ops_total",
			Help: "Filesystem operations applied to destinations",
		},
		[]string{"op", "status"},
	)

	WatchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirrorsync_watches_active",
			Help: "Directories currently watched across all monitors",
		},
	)

	JobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirrorsync_jobs_active",
			Help: "Number of running sync jobs",
		},
	)

	RestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirrorsync_restore_duration_seconds",
			Help:    "Time to reconcile a backup onto a live directory",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrorsync_http_requests_total",
			Help: "Total control API requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		OpsTotal,
		WatchesActive,
		JobsActive,
		RestoreDuration,
		HTTPRequestsTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOp counts one destination operation.
func RecordOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OpsTotal.WithLabelValues(op, status).Inc()
}

func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()

			return err
		}
	}
}
