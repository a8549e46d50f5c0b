// routes.go - Route registration
package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, h *Handlers, uploadLimit string) {
	e.GET("/", h.HandleIndex)
	e.GET("/health", h.HandleHealth)

	api := e.Group("/api")
	api.GET("/state", h.HandleState)
	api.POST("/upload", h.HandleUpload, h.uploadLimit(uploadLimit))
	api.POST("/dismiss", h.HandleDismiss)
	api.POST("/drag", h.HandleDrag)
	api.GET("/ws", h.HandleWebSocket)
}

// uploadLimit wraps middleware.BodyLimit. A body cut off by the limit is
// rejected through the controller, so the view gets the same upload error
// as a file that failed the size check.
func (h *Handlers) uploadLimit(limit string) echo.MiddlewareFunc {
	bodyLimit := middleware.BodyLimit(limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := bodyLimit(next)
		return func(c echo.Context) error {
			err := limited(c)
			var he *echo.HTTPError
			if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
				return fromPipeline(h.ctrl.Reject("", c.Request().ContentLength, "upload"))
			}
			return err
		}
	}
}
