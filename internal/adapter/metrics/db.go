package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// DBMetrics implements pgx.QueryTracer to collect query duration and error counts.
type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

var _ pgx.QueryTracer = (*DBMetrics)(nil)

func NewDBMetrics(reg prometheus.Registerer) *DBMetrics {
	m := &DBMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of PostgreSQL queries in seconds, by statement kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"statement"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of failed PostgreSQL queries, by statement kind.",
		}, []string{"statement"}),
	}

	reg.MustRegister(m.QueryDuration, m.QueryErrors)
	return m
}

type queryContextKey struct{}

type queryContext struct {
	start     time.Time
	statement string
}

func (m *DBMetrics) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		start:     time.Now(),
		statement: statementKind(data.SQL),
	})
}

func (m *DBMetrics) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	m.QueryDuration.WithLabelValues(qctx.statement).Observe(time.Since(qctx.start).Seconds())
	if data.Err != nil {
		m.QueryErrors.WithLabelValues(qctx.statement).Inc()
	}
}

// statementKind keeps label cardinality low by using only the leading keyword.
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}
