package netnode

import (
	"github.com/hashicorp/go-metrics"
	"github.com/kaspanet/netnode/infrastructure/network/netnode/server"
)

// Metric keys emitted by a NetworkNode
var (
	MetricNetnodeConnectionCreatedCount    = []string{"netnode", "connection", "created", "count"}
	MetricNetnodeConnectionAcceptedCount   = []string{"netnode", "connection", "accepted", "count"}
	MetricNetnodeConnectionDisconnectCount = []string{"netnode", "connection", "disconnect", "count"}
	MetricNetnodeConnectionsInbound        = []string{"netnode", "connections", "inbound"}
	MetricNetnodeConnectionsOutbound       = []string{"netnode", "connections", "outbound"}
	MetricNetnodeSendCount                 = []string{"netnode", "send", "count"}
	MetricNetnodeSendErrorCount            = []string{"netnode", "send", "error", "count"}
)

// TelemetryLabel is the name of a label attached to node metrics
type TelemetryLabel string

// Labels attached to node metrics
var (
	LabelReason    TelemetryLabel = "reason"
	LabelErrorKind TelemetryLabel = "error_kind"
)

// M returns the metric label with the given value
func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

const (
	errorKindExpected   = "expected"
	errorKindUnexpected = "unexpected"
)

type nodeMetrics struct {
	sink   metrics.MetricSink
	labels []metrics.Label
}

func newNodeMetrics(sink metrics.MetricSink, labels []metrics.Label) *nodeMetrics {
	if sink == nil {
		sink = metrics.Default()
	}
	return &nodeMetrics{sink: sink, labels: labels}
}

// withLabels returns the static labels followed by extra, never sharing
// the backing array of the static labels.
func (m *nodeMetrics) withLabels(extra ...metrics.Label) []metrics.Label {
	labels := make([]metrics.Label, 0, len(m.labels)+len(extra))
	labels = append(labels, m.labels...)
	return append(labels, extra...)
}

func (m *nodeMetrics) connectionCreated() {
	m.sink.IncrCounterWithLabels(MetricNetnodeConnectionCreatedCount, 1, m.labels)
}

func (m *nodeMetrics) connectionAccepted() {
	m.sink.IncrCounterWithLabels(MetricNetnodeConnectionAcceptedCount, 1, m.labels)
}

func (m *nodeMetrics) disconnected(reason server.DisconnectReason) {
	m.sink.IncrCounterWithLabels(MetricNetnodeConnectionDisconnectCount, 1,
		m.withLabels(LabelReason.M(reason.String())))
}

func (m *nodeMetrics) messageSent() {
	m.sink.IncrCounterWithLabels(MetricNetnodeSendCount, 1, m.labels)
}

func (m *nodeMetrics) sendFailed(isExpected bool) {
	errorKind := errorKindUnexpected
	if isExpected {
		errorKind = errorKindExpected
	}
	m.sink.IncrCounterWithLabels(MetricNetnodeSendErrorCount, 1, m.withLabels(LabelErrorKind.M(errorKind)))
}

func (m *nodeMetrics) updateConnectionGauges(registry *connectionRegistry) {
	inbound, outbound := registry.counts()
	m.sink.SetGaugeWithLabels(MetricNetnodeConnectionsInbound, float32(inbound), m.labels)
	m.sink.SetGaugeWithLabels(MetricNetnodeConnectionsOutbound, float32(outbound), m.labels)
}
