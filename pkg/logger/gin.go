package logger

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ctxLoggerKey    = "logger"
)

// Middleware tags every request with a request id and logs one summary line
// when it finishes. Identity set by the auth middleware (gin keys "user_id"
// and "role") is included. quietPaths, e.g. health and metrics scrapes, are
// logged at debug level.
func Middleware(l *slog.Logger, quietPaths ...string) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set(ctxLoggerKey, reqLogger)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", float64(time.Since(start).Milliseconds()),
			"client_ip", c.ClientIP(),
		}
		if uid := c.GetString("user_id"); uid != "" {
			attrs = append(attrs, "user_id", uid, "role", c.GetString("role"))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		msg, level := "request", requestLevel(status, len(c.Errors) > 0)
		if isWebsocketUpgrade(c.Request) {
			// A hijacked upgrade leaves gin's status at 200.
			msg = "websocket upgraded"
			if status >= http.StatusBadRequest {
				msg = "websocket rejected"
			}
		} else if _, ok := quiet[path]; ok && level == slog.LevelInfo {
			level = slog.LevelDebug
		}
		reqLogger.Log(c.Request.Context(), level, msg, attrs...)
	}
}

func requestLevel(status int, hasErrors bool) slog.Level {
	switch {
	case hasErrors || status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// FromGin pulls the request-scoped logger from Gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ctxLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
