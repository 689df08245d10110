package mergequeue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

const metricNamespace = "reviewflow_mergequeue"

const (
	queueOperationsMetricName = "operations_total"
	overflowSizeMetricName    = "overflow_size"
	slotOccupiedMetricName    = "slot_occupied"
)

const (
	repositoryLabel = "repository"
	operationLabel  = "operation"
)

type operationLabelVal string

const (
	operationAcquire    operationLabelVal = "acquire"
	operationRelease    operationLabelVal = "release"
	operationEnqueue    operationLabelVal = "enqueue"
	operationPromote    operationLabelVal = "promote"
	operationReschedule operationLabelVal = "reschedule"
)

type metricCollector struct {
	logger       *zap.Logger
	queueOps     *prometheus.CounterVec
	overflowSize *prometheus.GaugeVec
	slotOccupied *prometheus.GaugeVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		queueOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      queueOperationsMetricName,
				Help:      "count of merge queue operations",
			},
			[]string{repositoryLabel, operationLabel},
		),
		overflowSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      overflowSizeMetricName,
				Help:      "number of pull requests waiting for the merge slot",
			},
			[]string{repositoryLabel},
		),
		slotOccupied: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      slotOccupiedMetricName,
				Help:      "1 if a pull request holds the merge slot, otherwise 0",
			},
			[]string{repositoryLabel},
		),
	}
}

// queueMetrics are the metrics of a single queue.
// All methods are no-ops on a nil queueMetrics.
type queueMetrics struct {
	repository   string
	overflowSize prometheus.Gauge
	slotOccupied prometheus.Gauge
}

func newQueueMetrics(repo RepositoryID) (*queueMetrics, error) {
	labels := prometheus.Labels{repositoryLabel: repo.String()}

	overflowSize, err := metrics.overflowSize.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}

	slotOccupied, err := metrics.slotOccupied.GetMetricWith(labels)
	if err != nil {
		return nil, err
	}

	return &queueMetrics{
		repository:   repo.String(),
		overflowSize: overflowSize,
		slotOccupied: slotOccupied,
	}, nil
}

func (m *queueMetrics) OpsInc(op operationLabelVal) {
	if m == nil {
		return
	}

	cnt, err := metrics.queueOps.GetMetricWith(prometheus.Labels{
		repositoryLabel: m.repository,
		operationLabel:  string(op),
	})
	if err != nil {
		metrics.logger.Warn(
			"could not record metric",
			zap.String("metric", queueOperationsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)
		return
	}

	cnt.Inc()
}

func (m *queueMetrics) SetState(slotOccupied bool, overflowLen int) {
	if m == nil {
		return
	}

	if slotOccupied {
		m.slotOccupied.Set(1)
	} else {
		m.slotOccupied.Set(0)
	}

	m.overflowSize.Set(float64(overflowLen))
}
