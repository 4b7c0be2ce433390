package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rschio/billing/internal/web"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// middlewareWeb starts the request span, stores the request values in the
// context, logs the request and turns panics into 500s.
func middlewareWeb(log *slog.Logger, tracer trace.Tracer, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "web",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		v := web.Values{
			TraceID: span.SpanContext().TraceID().String(),
			Tracer:  tracer,
			Now:     time.Now().UTC(),
		}
		ctx = web.SetValues(ctx, &v)
		r = r.WithContext(ctx)

		log.InfoContext(ctx, "request started", "method", r.Method, "path", r.URL.Path, "remoteaddr", r.RemoteAddr)

		defer func() {
			if rec := recover(); rec != nil {
				log.ErrorContext(ctx, "panic", "ERROR", fmt.Sprint(rec), "stack", string(debug.Stack()))
				v.StatusCode = http.StatusInternalServerError
				http.Error(w, "internal error", http.StatusInternalServerError)
			}

			span.SetAttributes(attribute.Int("http.status_code", v.StatusCode))
			log.InfoContext(ctx, "request completed", "method", r.Method, "path", r.URL.Path,
				"statuscode", v.StatusCode, "since", time.Since(v.Now).String())
		}()

		h(w, r)
	})
}
