package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"FinSense/pkg/logger"
)

// Recover logs a handler panic with its stack and answers 500 if nothing
// was written yet.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				l.Error("http handler panicked",
					logger.String("method", c.Request().Method),
					logger.String("route", c.Path()),
					logger.String("panic", fmt.Sprint(r)),
					logger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				status := http.StatusInternalServerError
				err = c.JSON(status, echo.Map{"status": status, "message": http.StatusText(status)})
			}()
			return next(c)
		}
	}
}
