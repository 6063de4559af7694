// Package telemetry wraps Sentry tracing for the ingestion and chat paths.
package telemetry

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const serviceName = "citadoc"

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init initializes Sentry with tracing enabled and returns a flush function.
// With an empty DSN tracing stays off and the flush is a no-op.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			return sampleRate(ctx.Span, cfg.TracesSampleRate)
		}),
	})
	if err != nil {
		log.Printf("sentry: failed to initialize (continuing without tracing): %v", err)
		return func() {}, nil
	}

	log.Printf("sentry: tracing initialized (environment: %s, sample_rate: %.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// sampleRate drops health probes and static file downloads, and keeps child
// spans consistent with their parent.
func sampleRate(span *sentry.Span, rate float64) float64 {
	name := strings.TrimPrefix(span.Name, "http.server ")
	if name == "GET /health" || strings.HasPrefix(name, "GET /files/") {
		return 0
	}

	var emptySpanID sentry.SpanID
	if span.ParentSpanID != emptySpanID {
		if span.Sampled.Bool() {
			return 1
		}
		return 0
	}
	return rate
}

// SpanAttributes tags a service span. Empty fields are left off.
type SpanAttributes struct {
	DocumentID     string
	ConversationID string
	FileName       string
	Operation      string
}

// Span wraps sentry.Span so callers never deal with a nil span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetCount records a numeric result such as the number of chunks written.
func (s *Span) SetCount(key string, n int) {
	if s.inner != nil {
		s.inner.SetData(key, n)
	}
}

// Fail marks the span as errored. A nil err leaves the span untouched.
func (s *Span) Fail(err error) {
	if s.inner != nil && err != nil {
		s.inner.Status = sentry.SpanStatusInternalError
		s.inner.SetData("error", err.Error())
	}
}

// Context returns the span's context.
func (s *Span) Context() context.Context {
	if s.inner != nil {
		return s.inner.Context()
	}
	return context.Background()
}

func setAttributes(span *sentry.Span, attrs SpanAttributes) {
	if span == nil {
		return
	}

	if attrs.DocumentID != "" {
		span.SetTag("document_id", attrs.DocumentID)
	}
	if attrs.ConversationID != "" {
		span.SetTag("conversation_id", attrs.ConversationID)
	}
	if attrs.FileName != "" {
		span.SetData("file_name", attrs.FileName)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
}

// StartSpan starts a child of the span already in ctx, or a new transaction
// when there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	setAttributes(span, attrs)

	return span.Context(), &Span{inner: span}
}

// CaptureError reports err through the hub bound to ctx, if any.
func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
}
