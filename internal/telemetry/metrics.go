package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики воркера. Экспортируются на /metrics через promhttp.
var (
	// StepAttempts — попытки выполнения шагов по типу действия и результату (ok, error).
	StepAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_step_attempts_total",
		Help: "Step execution attempts by action kind and result.",
	}, []string{"action", "result"})

	// StepRetries — повторные попытки после ошибки.
	StepRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_step_retries_total",
		Help: "Step retries after a failed attempt.",
	}, []string{"action"})

	// DeviceRuns — завершённые выполнения на устройствах по итогу.
	DeviceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_device_runs_total",
		Help: "Finished device workflow runs by outcome.",
	}, []string{"outcome"})

	// DeviceQuarantines — переводы устройств в карантин.
	DeviceQuarantines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_device_quarantines_total",
		Help: "Devices moved to quarantine.",
	})

	// Jobs — обработанные job'ы по итоговому статусу.
	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_jobs_total",
		Help: "Processed jobs by final status.",
	}, []string{"status"})

	// JobDuration — длительность выполнения job'а.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_job_duration_seconds",
		Help:    "Job execution duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// Messages — сообщения из очередей по решению consumer'а (ack, requeue, dead_letter).
	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_mq_messages_total",
		Help: "Consumed queue messages by settlement.",
	}, []string{"queue", "decision"})

	// HTTPRequests — запросы к status API по маршруту и статусу ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_http_requests_total",
		Help: "Status API requests by route and response status.",
	}, []string{"route", "status"})
)

// Значения label "result" и "outcome".
const (
	ResultOK    = "ok"
	ResultError = "error"

	OutcomeSucceeded   = "succeeded"
	OutcomeFailed      = "failed"
	OutcomeQuarantined = "quarantined"
	OutcomeInterrupted = "interrupted"
)
