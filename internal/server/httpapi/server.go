// Package httpapi exposes the ThreadCraft operations over HTTP. The session
// handle travels in the X-Session-ID header; every response carries a
// success flag, and failures add an error code plus a user-facing message.
package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/orchestrator"
)

// An IOC is an Inversion Of Control pattern used to init the server package.
type IOC struct {
	Orchestrator *orchestrator.Service
	Logger       logging.Logger
}

const handleContextKey = "session-handle"

// EchoEngine instantiates the web server.
func EchoEngine(ctrl IOC) *echo.Echo {
	engine := echo.New()
	engine.HideBanner = true
	engine.Use(middleware.Recover())
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	engine.Use(requestLogger(ctrl.Logger))
	engine.HTTPErrorHandler = httpErrorHandler

	////////////
	// Router //
	////////////

	router := engine.Group("/api")
	restricted := router.Group("")
	restricted.Use(requireSession)

	router.GET("/health", func(c echo.Context) error {
		return ok(c, echo.Map{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	//
	// session handlers
	//
	session := &sessionHandler{orch: ctrl.Orchestrator}
	router.POST("/session/create", session.Create)
	router.GET("/session/validate", session.Validate)
	router.DELETE("/session/destroy", session.Destroy)
	restricted.GET("/user/info", session.UserInfo)

	//
	// progress and thread handlers
	//
	thread := &threadHandler{orch: ctrl.Orchestrator}
	restricted.GET("/progress", thread.Progress)
	restricted.POST("/progress/reset", thread.Reset)
	restricted.POST("/progress/day", thread.SetDay)
	restricted.POST("/thread/start", thread.Start)
	restricted.POST("/thread/continue", thread.Continue)
	restricted.POST("/post/next", thread.PostNext)
	restricted.POST("/post/preview", thread.Preview)

	return engine
}

// requestLogger records one line per request. Session handles never appear
// in the output; only method, path, status and latency do.
func requestLogger(logger logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info(c.Request().Context(), "request handled",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", c.Response().Status,
				"duration", time.Since(start).String(),
			)
			return nil
		}
	}
}

// requireSession rejects requests without a session header. The handle is
// validated downstream where it is actually used.
func requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		handle := c.Request().Header.Get(common.SessionHeaderName)
		if handle == "" {
			return fail(c, common.ErrNoCredentials)
		}
		c.Set(handleContextKey, handle)
		return next(c)
	}
}

func sessionHandle(c echo.Context) string {
	handle, _ := c.Get(handleContextKey).(string)
	return handle
}

func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusNotFound {
		_ = failWith(c, http.StatusNotFound, "NOT_FOUND", "The requested resource was not found.")
		return
	}
	_ = fail(c, err)
}
