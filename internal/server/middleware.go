package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/strataops/atrium/internal/actorcontext"
	"github.com/strataops/atrium/internal/orgcontext"
	"github.com/strataops/atrium/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	HeaderOrg       = "X-Org-ID"
	HeaderActor     = "X-Actor"
	HeaderRequestID = "X-Request-Id"
)

// RequestContextMiddleware threads org, actor and correlation identity from
// the gateway's headers into the request context. Authentication itself
// happens upstream; these headers are trusted inputs here.
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			ctx, requestID = correlation.EnsureCorrelationID(ctx)
		} else {
			ctx = correlation.ContextWithCorrelationID(ctx, requestID)
		}
		c.Header(HeaderRequestID, requestID)
		ctx = actorcontext.WithRequestID(ctx, requestID)
		ctx = actorcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = actorcontext.WithUserAgent(ctx, c.Request.UserAgent())

		if raw := strings.TrimSpace(c.GetHeader(HeaderOrg)); raw != "" {
			if orgID, err := strconv.ParseInt(raw, 10, 64); err == nil && orgID != 0 {
				ctx = orgcontext.WithOrgID(ctx, snowflake.ID(orgID))
			}
		}

		if actor := parseActorHeader(c.GetHeader(HeaderActor)); actor.Type != "" {
			ctx = actorcontext.WithActor(ctx, actor)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseActorHeader(raw string) actorcontext.Actor {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return actorcontext.Actor{}
	}
	if raw == "system" {
		return actorcontext.Actor{Type: "system"}
	}
	kind, id, found := strings.Cut(raw, ":")
	if !found || strings.TrimSpace(id) == "" {
		return actorcontext.Actor{}
	}
	switch kind {
	case "user", "staff", "ai":
		return actorcontext.Actor{Type: kind, ID: strings.TrimSpace(id)}
	default:
		return actorcontext.Actor{}
	}
}

// actorString rebuilds the encoded caller identity services expect.
func actorString(c *gin.Context) string {
	actor, ok := actorcontext.ActorFromContext(c.Request.Context())
	if !ok {
		return ""
	}
	if actor.Type == "system" {
		return "system"
	}
	return actor.Type + ":" + actor.ID
}

// RequestLoggingMiddleware emits one structured line per request.
func RequestLoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if requestID := correlation.ExtractCorrelationID(c.Request.Context()); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.Error(lastErr.Err))
		}

		switch {
		case route == "/metrics" || route == "/health":
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}
