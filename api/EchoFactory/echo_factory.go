// //////////////////////////////////////////////////////////////
// EchoFactory builds the echo server of the warehouse API: the
// middleware chain and the per-request logger.
// //////////////////////////////////////////////////////////////

package EchoFactory

import (
	"net/http"
	"time"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const loggerKey = "jimo_logger"

// NewEcho returns an echo instance with the middleware chain installed:
// recover, request id, per-request logger, access log, CORS, rate limit
// and request timeout. Routes are registered by the caller.
func NewEcho(config ApiTypes.ServerConfig, logger *loggerutil.JimoLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			GetLogger(c).Error("Panic recovered (DVW_ECF_031)", "error", err, "stack", string(stack))
			return err
		},
	}))

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, reqID string) {
			c.Set(ApiTypes.RequestIDKey, reqID)
			c.Set(loggerKey, logger.WithReqID(reqID))
		},
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			l := GetLogger(c)
			if v.Error != nil {
				l.Warn("Request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency", v.Latency,
					"remote_ip", v.RemoteIP,
					"error", v.Error)
				return nil
			}
			l.Info("Request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP)
			return nil
		},
	}))

	origins := config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = int(config.RateLimit) + 1
		}
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(config.RateLimit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				GetLogger(c).Warn("Rate limited", "remote_ip", identifier)
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			},
		}))
	}

	if timeout := config.RequestTimeout(); timeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: timeout,
		}))
	}

	return e
}

// GetLogger returns the request's logger, tagged with its request id.
func GetLogger(c echo.Context) *loggerutil.JimoLogger {
	if l, ok := c.Get(loggerKey).(*loggerutil.JimoLogger); ok && l != nil {
		return l
	}
	return loggerutil.CreateLogger(ApiTypes.LogFormatPretty)
}

// SetLogger attaches l to the request. Used by tests that bypass the
// middleware chain.
func SetLogger(c echo.Context, l *loggerutil.JimoLogger) {
	c.Set(loggerKey, l)
}
