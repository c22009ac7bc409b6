package retrieval

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	walkerMetricsOnce sync.Once
	queriesCounter    otelmetric.Int64Counter
	shrinksCounter    otelmetric.Int64Counter
	recordsCounter    otelmetric.Int64Counter
	sessionsCounter   otelmetric.Int64Counter
)

func initWalkerMetrics() {
	meter := otel.Meter("archivist/retrieval")
	var err error
	queriesCounter, err = meter.Int64Counter(
		"retrieval_queries_total",
		otelmetric.WithDescription("Sub-queries issued to the remote archive, by outcome"),
	)
	if err != nil {
		log.Printf("retrieval metrics init: retrieval_queries_total: %v", err)
	}
	shrinksCounter, err = meter.Int64Counter(
		"retrieval_shrinks_total",
		otelmetric.WithDescription("Window reductions caused by suspected truncation"),
	)
	if err != nil {
		log.Printf("retrieval metrics init: retrieval_shrinks_total: %v", err)
	}
	recordsCounter, err = meter.Int64Counter(
		"retrieval_records_total",
		otelmetric.WithDescription("Records returned by successful sessions"),
	)
	if err != nil {
		log.Printf("retrieval metrics init: retrieval_records_total: %v", err)
	}
	sessionsCounter, err = meter.Int64Counter(
		"retrieval_sessions_total",
		otelmetric.WithDescription("Retrieval sessions, by terminal status"),
	)
	if err != nil {
		log.Printf("retrieval metrics init: retrieval_sessions_total: %v", err)
	}
}

func recordQuery(ctx context.Context, outcome string) {
	walkerMetricsOnce.Do(initWalkerMetrics)
	if queriesCounter != nil {
		queriesCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if outcome == OutcomeOverflow.String() && shrinksCounter != nil {
		shrinksCounter.Add(ctx, 1)
	}
}

func recordSession(ctx context.Context, status string, records int) {
	walkerMetricsOnce.Do(initWalkerMetrics)
	if sessionsCounter != nil {
		sessionsCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
	if records > 0 && recordsCounter != nil {
		recordsCounter.Add(ctx, int64(records))
	}
}
