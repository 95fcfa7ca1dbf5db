package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/authward/authward/internal/config"
	"github.com/authward/authward/internal/middleware/statuswriter"
)

var (
	counter metric.Int64Counter
	hist    metric.Int64Histogram
)

func initMeters(ctx context.Context, cfg *config.Config) error {
	meter := otel.Meter(
		"authward/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
	)

	var err error

	counter, err = meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err = meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return nil
}

// newTraceMiddleware stamps every request with an id, opens a span and
// records the request metrics.
func newTraceMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	tracer := otel.Tracer(cfg.Application.Name)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Request id is propagated through all method calls of this request
		ctx := slogctx.With(r.Context(), "requestID", uuid.NewString())

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(parentCtx, r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()

		recorder := statuswriter.Wrap(w)
		requestStartTime := time.Now()

		defer func() {
			elapsedTime := time.Since(requestStartTime)

			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.status", strconv.Itoa(recorder.Status())),
			)

			counter.Add(ctx, 1, attrs)
			hist.Record(ctx, elapsedTime.Milliseconds(), attrs)
		}()

		next.ServeHTTP(recorder, r.WithContext(ctx))
	})
}
