package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// Recovery turns a panic into a 500 OperationOutcome. A panic raised after
// the response was committed is only logged.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("route", c.Request().Method+" "+c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome("internal server error"))
			}()
			return next(c)
		}
	}
}
