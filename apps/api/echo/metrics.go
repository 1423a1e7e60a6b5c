package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
)

type metricsApi struct {
	svc    attendance.Service
	poller *attendance.Poller
}

func registerMetricsAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc attendance.Service, poller *attendance.Poller) {
	api := metricsApi{svc: svc, poller: poller}

	mg := g.Group("/metrics", jwt)
	mg.GET("/today", api.today)
	mg.GET("/:date", api.forDate, staffMiddleware())
}

// today serves the poller's cached snapshot when one exists so dashboard
// refreshes do not hammer the store; it recomputes only on a cold cache.
func (api *metricsApi) today(ctx echo.Context) error {
	if api.poller != nil {
		if metrics, ok := api.poller.Latest(); ok {
			return ctx.JSON(http.StatusOK, metrics)
		}
	}
	metrics, err := api.svc.TodayMetrics()
	if err != nil {
		return errors.Wrap(err, "aggregating today's metrics")
	}
	return ctx.JSON(http.StatusOK, metrics)
}

func (api *metricsApi) forDate(ctx echo.Context) error {
	date, err := time.Parse(dateLayout, ctx.Param("date"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{
			Field: "date", Error: "must be formatted as " + dateLayout,
		})
	}
	metrics, err := api.svc.Metrics(date)
	if err != nil {
		return errors.Wrap(err, "aggregating metrics")
	}
	return ctx.JSON(http.StatusOK, metrics)
}
