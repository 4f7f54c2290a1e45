package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		schedulerRunsTotal,
		schedulerErrorsTotal,
		groupSyncFailuresTotal,
	)
}

var (
	schedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Scheduler task ticks, labeled by task name.",
		},
		[]string{"task"},
	)

	schedulerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_errors_total",
			Help: "Errors caught inside scheduler task ticks, labeled by task name.",
		},
		[]string{"task"},
	)

	groupSyncFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "group_sync_failures_total",
			Help: "Failed group membership actions, labeled by action (grant/revoke/unban).",
		},
		[]string{"action"},
	)
)

func IncSchedulerRun(task string) { schedulerRunsTotal.WithLabelValues(norm(task)).Inc() }
func IncSchedulerError(task string) { schedulerErrorsTotal.WithLabelValues(norm(task)).Inc() }
func IncGroupSyncFailure(action string) { groupSyncFailuresTotal.WithLabelValues(norm(action)).Inc() }
