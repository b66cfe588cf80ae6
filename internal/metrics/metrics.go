// Package metrics 감시 실행의 동작 지표를 Prometheus 형식으로 수집합니다.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/darkkaiser/openbar-notifier/internal/runner"
)

// Metrics 감시 실행 지표의 묶음
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	runDuration     prometheus.Histogram
	lastRunAt       prometheus.Gauge
}

// New 지표를 생성하고 지정된 레지스트리에 등록합니다.
// registerer가 nil이면 기본 레지스트리를 사용합니다.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openbar_notifier",
			Name:      "runs_total",
			Help:      "감시 실행 횟수 (결과별)",
		}, []string{"result"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openbar_notifier",
			Name:      "events_total",
			Help:      "감지된 변경 이벤트 수 (종류별)",
		}, []string{"kind"}),

		deliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openbar_notifier",
			Name:      "deliveries_total",
			Help:      "알림 전달 결과 수 (상태별)",
		}, []string{"status"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "openbar_notifier",
			Name:      "run_duration_seconds",
			Help:      "감시 실행 소요 시간",
			Buckets:   prometheus.DefBuckets,
		}),

		lastRunAt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "openbar_notifier",
			Name:      "last_run_timestamp_seconds",
			Help:      "마지막 감시 실행이 끝난 시각 (Unix 타임스탬프)",
		}),
	}
}

// ObserveRun 한 번의 실행 결과를 지표에 반영합니다.
func (m *Metrics) ObserveRun(report runner.Report) {
	result := "done"
	if report.Failed() {
		result = "aborted"
	}
	m.runsTotal.WithLabelValues(result).Inc()

	for kind, count := range report.EventCounts {
		m.eventsTotal.WithLabelValues(string(kind)).Add(float64(count))
	}
	for status, count := range report.OutcomeCounts {
		m.deliveriesTotal.WithLabelValues(string(status)).Add(float64(count))
	}

	if !report.FinishedAt.IsZero() {
		m.lastRunAt.Set(float64(report.FinishedAt.Unix()))
		if !report.StartedAt.IsZero() {
			m.runDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
		}
	}
}
