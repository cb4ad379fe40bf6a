package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/alumni/core/authz"
	"github.com/trezcool/alumni/core/user"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alumni",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alumni",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latencies by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// roleMiddleware fails fast when the authenticated user does not satisfy rule.
// Services check the same rule again before touching the store.
func roleMiddleware(svc user.ServiceInterface, rule func(authz.Subject) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if err = authz.Require(usr, rule); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func adminMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return roleMiddleware(svc, authz.CanAccessAdmin)
}

func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		if err != nil {
			ctx.Error(err)
		}

		route := ctx.Path()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request().Method
		httpRequests.WithLabelValues(route, method, strconv.Itoa(ctx.Response().Status)).Inc()
		httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		return nil
	}
}
