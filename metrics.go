package depman

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/junioryono/depman"

// Lookup outcomes recorded on the depman.registry.lookups counter.
const (
	outcomeHit         = "hit"
	outcomeMiss        = "miss"
	outcomeMismatch    = "mismatch"
	outcomeConstructed = "constructed"
	outcomeUnavailable = "unavailable"
)

type metrics struct {
	lookups  metric.Int64Counter
	stores   metric.Int64Counter
	releases metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	meter := mp.Meter(meterName)
	fallback := noop.Meter{}

	lookups, err := meter.Int64Counter("depman.registry.lookups",
		metric.WithDescription("Object lookups by policy and outcome"))
	if err != nil {
		lookups, _ = fallback.Int64Counter("depman.registry.lookups")
	}

	stores, err := meter.Int64Counter("depman.registry.stores",
		metric.WithDescription("Objects stored explicitly"))
	if err != nil {
		stores, _ = fallback.Int64Counter("depman.registry.stores")
	}

	releases, err := meter.Int64Counter("depman.registry.releases",
		metric.WithDescription("Objects released on overwrite or teardown"))
	if err != nil {
		releases, _ = fallback.Int64Counter("depman.registry.releases")
	}

	return &metrics{
		lookups:  lookups,
		stores:   stores,
		releases: releases,
	}
}

func (m *metrics) lookup(ctx context.Context, policy ThreadingPolicy, outcome string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy.String()),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) store(ctx context.Context, policy ThreadingPolicy) {
	m.stores.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy.String()),
	))
}

func (m *metrics) release(ctx context.Context) {
	m.releases.Add(ctx, 1)
}
