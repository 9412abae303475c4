package storage

import (
	"context"
	"time"

	"github.com/jwalitptl/retina-api/pkg/metrics"
)

// Instrumented records operation counts and latency per backend.
type Instrumented struct {
	next    KV
	metrics *metrics.Metrics
}

func NewInstrumented(next KV, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	backend := i.next.Backend()
	status := "success"
	if err != nil {
		status = "error"
	}
	i.metrics.StorageOperations.WithLabelValues(backend, op, status).Inc()
	i.metrics.StorageLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := i.next.Get(ctx, key)
	i.observe("get", start, err)
	return v, ok, err
}

func (i *Instrumented) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value)
	i.observe("set", start, err)
	return err
}

func (i *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, key)
	i.observe("delete", start, err)
	return err
}

func (i *Instrumented) Ping(ctx context.Context) error {
	return i.next.Ping(ctx)
}

func (i *Instrumented) Close() error {
	return i.next.Close()
}

func (i *Instrumented) Backend() string { return i.next.Backend() }
