package netnode

import (
	"github.com/hashicorp/go-metrics"
)

type options struct {
	metricSink   metrics.MetricSink
	metricLabels []metrics.Label
}

// Option to pass to New
type Option func(*options) error

// WithMetricSink chooses where the metrics of the node are emitted.
// By default they go to the global go-metrics sink.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(o *options) error {
		if sink == nil {
			sink = &metrics.BlackholeSink{}
		}
		o.metricSink = sink
		return nil
	}
}

// WithMetricLabels adds static labels to all metrics produced by the node.
func WithMetricLabels(labels []metrics.Label) Option {
	return func(o *options) error {
		o.metricLabels = labels
		return nil
	}
}
