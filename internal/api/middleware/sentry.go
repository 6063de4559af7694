package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

// SentryMiddleware opens one transaction per request on a cloned hub. Once
// routing is done the transaction is renamed to the route pattern and tagged
// with the document or conversation ID it addressed. Without an initialized
// Sentry client every call is a no-op.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		options := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}
		if sentryTrace := r.Header.Get("sentry-trace"); sentryTrace != "" {
			options = append(options, sentry.ContinueFromHeaders(sentryTrace, r.Header.Get("baggage")))
		}

		transaction := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, options...)
		defer transaction.Finish()

		r = r.WithContext(sentry.SetHubOnContext(transaction.Context(), hub))

		scope := hub.Scope()
		scope.SetContext("request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       r.URL.RawQuery,
			"remote_addr": clientIP(r),
		})
		if requestID := GetRequestID(r.Context()); requestID != "" {
			scope.SetTag("request_id", requestID)
			transaction.SetTag("request_id", requestID)
		}

		defer func() {
			if err := recover(); err != nil {
				transaction.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), err)
				panic(err)
			}
		}()

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		transaction.Status = spanStatus(status)
		transaction.SetData("http.response.status_code", status)

		if pattern := routePattern(r); pattern != "" {
			transaction.Name = r.Method + " " + pattern
			transaction.Source = sentry.SourceRoute
		}
		if id := routeID(r); id != "" {
			scope.SetTag("resource_id", id)
			transaction.SetTag("resource_id", id)
		}

		if status >= http.StatusInternalServerError {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s %s", status, r.Method, r.URL.Path))
		}
	})
}

var statusSpans = map[int]sentry.SpanStatus{
	http.StatusBadRequest:            sentry.SpanStatusInvalidArgument,
	http.StatusNotFound:              sentry.SpanStatusNotFound,
	http.StatusRequestEntityTooLarge: sentry.SpanStatusResourceExhausted,
	http.StatusUnprocessableEntity:   sentry.SpanStatusFailedPrecondition,
	http.StatusTooManyRequests:       sentry.SpanStatusResourceExhausted,
	499:                              sentry.SpanStatusCanceled,
	http.StatusNotImplemented:        sentry.SpanStatusUnimplemented,
	http.StatusBadGateway:            sentry.SpanStatusUnavailable,
	http.StatusServiceUnavailable:    sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:        sentry.SpanStatusDeadlineExceeded,
}

func spanStatus(status int) sentry.SpanStatus {
	if s, ok := statusSpans[status]; ok {
		return s
	}
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	default:
		return sentry.SpanStatusInternalError
	}
}

func routeID(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.URLParam("id")
}
