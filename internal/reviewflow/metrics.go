package reviewflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

const metricNamespace = "reviewflow"

const eventsMetricName = "github_events_total"

const (
	eventTypeLabel   = "event_type"
	eventActionLabel = "action"
	resultLabel      = "result"
)

type eventResult string

const (
	eventResultProcessed eventResult = "processed"
	eventResultIgnored   eventResult = "ignored"
	eventResultFailed    eventResult = "failed"
)

type metricCollector struct {
	logger *zap.Logger
	events *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		events: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      eventsMetricName,
				Help:      "count of processed github webhook events",
			},
			[]string{eventTypeLabel, eventActionLabel, resultLabel},
		),
	}
}

func (m *metricCollector) eventInc(typ, action string, result eventResult) {
	if m == nil {
		return
	}

	cnt, err := m.events.GetMetricWith(prometheus.Labels{
		eventTypeLabel:   typ,
		eventActionLabel: action,
		resultLabel:      string(result),
	})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", eventsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)
		return
	}

	cnt.Inc()
}
