package baserepo

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "baserepo"

// Metrics tracks repository operations.
//
// Metrics:
//   - <namespace>_operations_total: operations by entity, op and status (ok, error, not_found)
//   - <namespace>_operation_duration_seconds: operation latency by entity and op
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics creates repository metrics and registers them with registerer.
// An empty namespace defaults to "baserepo".
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "baserepo"
	}
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of repository operations",
			},
			[]string{"entity", "op", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Repository operation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity", "op"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(m.operationsTotal, m.operationDuration)
	}
	return m
}

func (m *Metrics) observe(entity, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case IsNotFoundError(err):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	m.operationsTotal.WithLabelValues(entity, op, status).Inc()
	m.operationDuration.WithLabelValues(entity, op).Observe(time.Since(started).Seconds())
}

// instrument wraps one repository operation with a span and metrics. The
// returned function must be called with the operation's final error.
func instrument(ctx context.Context, tracer trace.Tracer, m *Metrics, entity, op string) (context.Context, func(error)) {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	ctx, span := tracer.Start(ctx, entity+"."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("db.entity", entity),
			attribute.String("db.operation", op),
		),
	)
	started := time.Now()
	return ctx, func(err error) {
		if err != nil && !IsNotFoundError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		m.observe(entity, op, started, err)
	}
}
