package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes must stay low cardinality: operation names, outcome labels, client types.
// Share keys, remote paths and save paths belong in logs, never in attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// Outcome labels recorded on spans and counters.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusOf maps an operation error to an outcome label. Errors exposing an Outcome label
// (password outcomes) are reported under that label instead of as failures.
func StatusOf(err error) string {
	if err == nil {
		return StatusSuccess
	}

	var labeled interface{ Outcome() string }
	if errors.As(err, &labeled) {
		return labeled.Outcome()
	}

	return StatusError
}

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	status := StatusOf(err)

	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(operation, StatusOf(err), time.Since(start))

	return err
}

// InstrumentClientOperation instruments share client operations.
func (t *Telemetry) InstrumentClientOperation(ctx context.Context, client, operation string, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "client_"+operation, "share_client", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "client_"+operation)
		defer span.End()

		span.SetAttributes(
			attribute.String("client.type", client),
			attribute.String("client.operation", operation),
		)

		return fn(ctx)
	})

	t.RecordClientOperation(client, operation, StatusOf(err))

	return err
}

// InstrumentDownload instruments a single file download including its retries.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveDownloads()
	defer t.DecrementActiveDownloads()

	err := t.InstrumentOperation(ctx, "download", "downloader", fn)

	t.RecordDownload(ctx, StatusOf(err), time.Since(start))

	return err
}

// InstrumentTreeDiscovery instruments a full tree walk.
func (t *Telemetry) InstrumentTreeDiscovery(ctx context.Context, fn InstrumentedFunc) error {
	if !t.Enabled() {
		return fn(ctx)
	}

	return t.InstrumentOperation(ctx, "discover_tree", "tree", fn)
}
