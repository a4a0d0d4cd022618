package extension

import (
	"github.com/xraph/forge"

	"github.com/xraph/fundme/observability"
)

// forgeMetrics exposes the app's metrics as an observability.MetricFactory.
type forgeMetrics struct {
	m forge.Metrics
}

var _ observability.MetricFactory = forgeMetrics{}

func (f forgeMetrics) Counter(name string) observability.Counter {
	return f.m.Counter(name)
}

func (f forgeMetrics) Histogram(name string) observability.Histogram {
	return f.m.Histogram(name)
}
