package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики системы. Регистрируются в default registry через promauto,
// экспортируются каждым сервисом на /metrics.
var (
	// SlotsActive — количество активных слотов в пуле.
	SlotsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concierge_slots_active",
		Help: "Number of slots currently assigned to tenants",
	})

	// AllocationConflicts — проигранные гонки за слот-кандидат.
	AllocationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_allocation_conflicts_total",
		Help: "Slot candidates lost to a concurrent acquirer",
	})

	// CapacityExceeded — запросы, не нашедшие ни одного кандидата.
	CapacityExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_capacity_exceeded_total",
		Help: "Acquire requests that exhausted the slot pool",
	})

	// ConsistencyWarnings — срабатывания проверок L2-L4 аллокатора.
	ConsistencyWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_consistency_warnings_total",
		Help: "Slot candidates rejected by a verification layer",
	}, []string{"layer"})

	// Deployments — деплои по исходу: deployed, rejected, failed.
	Deployments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_deployments_total",
		Help: "Workflow deployments by outcome",
	}, []string{"outcome"})

	// EngineRetries — повторные попытки вызова execution engine.
	EngineRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_engine_retries_total",
		Help: "Retried calls to the execution engine",
	})

	// SessionsAdvanced — обработанные реплики по итоговой фазе.
	SessionsAdvanced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_sessions_advanced_total",
		Help: "Conversation turns processed, by resulting phase",
	}, []string{"phase"})

	// ReconcilerCorrections — автоисправления статусов слотов.
	ReconcilerCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_reconciler_corrections_total",
		Help: "Slot statuses corrected by the reconciliation sweep",
	})

	// EventsConsumed — события, обработанные notifier'ом.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_events_consumed_total",
		Help: "Event stream messages consumed, by type",
	}, []string{"type"})
)
