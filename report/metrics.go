package report

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"display-rpc/codec"
	"display-rpc/message"
)

const instrumentationName = "display-rpc/report"

// MetricsReport counts reports with OpenTelemetry instruments.
type MetricsReport struct {
	invocations metric.Int64Counter // display_rpc.invocations{method,outcome}
	failures    metric.Int64Counter // display_rpc.failures{kind}
	descriptors metric.Int64Counter // display_rpc.descriptors{shape}
}

// NewMetricsReport creates the instruments on a meter from mp.
func NewMetricsReport(mp metric.MeterProvider) (*MetricsReport, error) {
	meter := mp.Meter(instrumentationName)

	invocations, err := meter.Int64Counter("display_rpc.invocations",
		metric.WithDescription("Invocations written to the transport"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("display_rpc.failures",
		metric.WithDescription("Channel failures by kind"))
	if err != nil {
		return nil, err
	}
	descriptors, err := meter.Int64Counter("display_rpc.descriptors",
		metric.WithDescription("Descriptors received on the side channel"))
	if err != nil {
		return nil, err
	}
	return &MetricsReport{invocations: invocations, failures: failures, descriptors: descriptors}, nil
}

func (r *MetricsReport) InvocationSucceeded(inv *message.Invocation) {
	r.invocations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("method", inv.MethodName), attribute.String("outcome", "ok")))
}

func (r *MetricsReport) InvocationFailed(inv *message.Invocation, _ error) {
	r.invocations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("method", inv.MethodName), attribute.String("outcome", "error")))
}

func (r *MetricsReport) ResultReceiptFailed(error) { r.failure("result_receipt") }
func (r *MetricsReport) OrphanedResult(uint64)     { r.failure("orphaned_result") }
func (r *MetricsReport) EventParsingFailed(error)  { r.failure("event_parsing") }
func (r *MetricsReport) ConnectionFailure(error)   { r.failure("connection") }

func (r *MetricsReport) DescriptorsReceived(shape codec.Shape, fds []int) {
	r.descriptors.Add(context.Background(), int64(len(fds)), metric.WithAttributes(
		attribute.String("shape", string(shape))))
}

func (r *MetricsReport) DescriptorWaitFailed(codec.Shape, error) {
	r.failure("descriptor_wait")
}

func (r *MetricsReport) DescriptorsDiscarded(uint64, int) {
	r.failure("descriptors_discarded")
}

func (r *MetricsReport) failure(kind string) {
	r.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}
