package server

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Governance observability headers stamped on every response.
const (
	headerGovernanceIP     = "X-Governance-IP"
	headerGovernanceTime   = "X-Governance-Time"
	headerGovernanceStatus = "X-Governance-Status"
	headerGovernanceAction = "X-Governance-Action"
)

// clientIP derives the caller identity: first X-Forwarded-For hop, then
// X-Real-IP, then the socket address. RealIP middleware already folds the
// first two into RemoteAddr; this keeps the chain explicit for direct calls.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// stampWriter injects the governance headers just before the first write,
// once the processing duration is known.
type stampWriter struct {
	http.ResponseWriter
	ip      string
	start   time.Time
	stamped bool
}

func (w *stampWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	h := w.Header()
	h.Set(headerGovernanceIP, w.ip)
	h.Set(headerGovernanceTime, fmt.Sprintf("%.1fms", float64(time.Since(w.start).Microseconds())/1000))
	if h.Get(headerGovernanceStatus) == "" {
		h.Set(headerGovernanceStatus, "allowed")
	}
}

func (w *stampWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *stampWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

// governanceStamp adds the identity echo and processing-time headers to
// every response.
func governanceStamp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&stampWriter{ResponseWriter: w, ip: clientIP(r), start: time.Now()}, r)
	})
}

// requestLogger logs each request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("ip", clientIP(r)),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// requireAdmin guards administrative endpoints with the configured bearer
// token. An unset token disables the endpoints entirely.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Admin.Token
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":   "forbidden",
				"message": "administrative endpoint requires a valid bearer token",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
