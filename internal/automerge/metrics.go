package automerge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/mergequeue"
)

const metricNamespace = "reviewflow_automerge"

const decisionsMetricName = "decisions_total"

const (
	repositoryLabel = "repository"
	typeLabel       = "type"
	actionLabel     = "action"
)

type metricCollector struct {
	logger    *zap.Logger
	decisions *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      decisionsMetricName,
				Help:      "count of automerge decisions",
			},
			[]string{repositoryLabel, typeLabel, actionLabel},
		),
	}
}

func (m *metricCollector) decisionInc(repo mergequeue.RepositoryID, typ string, action auditlog.Action) {
	if m == nil {
		return
	}

	cnt, err := m.decisions.GetMetricWith(prometheus.Labels{
		repositoryLabel: repo.String(),
		typeLabel:       typ,
		actionLabel:     string(action),
	})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", decisionsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)
		return
	}

	cnt.Inc()
}
