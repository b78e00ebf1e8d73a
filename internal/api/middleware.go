package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
)

type contextKey string

const callerKey contextKey = "caller"

// CallerFrom returns the authenticated caller stored by JWTAuthMiddleware
func CallerFrom(ctx context.Context) (models.Caller, bool) {
	c, ok := ctx.Value(callerKey).(models.Caller)
	return c, ok
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

// JWTAuthMiddleware verifies JWT tokens. Websocket clients that cannot set headers pass ?token=.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearer(r)
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			h.writeError(w, r, auctionerrors.ErrUnauthorized)
			return
		}

		caller, err := h.auth.ParseToken(tokenString)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CronAuthMiddleware admits only requests bearing the cron secret. An empty secret admits nobody.
func (h *Handler) CronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if h.cronSecret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) != 1 {
			h.writeError(w, r, auctionerrors.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request
func (h *Handler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		fields := logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		}
		entry := h.logger.WithFields(fields)
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			entry.Error("Request completed")
		case ww.Status() >= http.StatusBadRequest:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
