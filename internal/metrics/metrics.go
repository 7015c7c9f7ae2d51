// Package metrics provides Prometheus metrics for supervised actions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/actiond/internal/events"
)

const namespace = "actiond"

// States reported by the action_state gauge.
var states = []string{"pending", "running", "crashed", "disabled", "stopped"}

var (
	actionCrashes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "action",
		Name:      "crashes_total",
		Help:      "Failures attributed to an action",
	}, []string{"action"})

	actionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "action",
		Name:      "restarts_total",
		Help:      "Relaunches after a crash",
	}, []string{"action"})

	actionLaunchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "action",
		Name:      "launch_failures_total",
		Help:      "Launches the runner could not start",
	}, []string{"action"})

	actionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "action",
		Name:      "state",
		Help:      "1 for the current supervision state of an action, 0 otherwise",
	}, []string{"action", "state"})

	unattributedFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unattributed_failures_total",
		Help:      "Failures no action could be blamed for",
	})

	rejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejections_total",
		Help:      "Unhandled asynchronous rejections",
	})

	payloadReloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payload_reloads_total",
		Help:      "Accepted configuration payload changes",
	})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetActionState marks state as the current one for action.
func SetActionState(action, state string) {
	for _, s := range states {
		value := 0.0
		if s == state {
			value = 1
		}
		actionState.WithLabelValues(action, s).Set(value)
	}
}

// RecordCrash counts an attributed failure and the decision taken for it.
func RecordCrash(action, decision string) {
	actionCrashes.WithLabelValues(action).Inc()
	if decision == "restart" {
		actionRestarts.WithLabelValues(action).Inc()
	}
}

// DeleteActionMetrics removes all series for an action.
func DeleteActionMetrics(action string) {
	actionCrashes.DeleteLabelValues(action)
	actionRestarts.DeleteLabelValues(action)
	actionLaunchFailures.DeleteLabelValues(action)
	for _, s := range states {
		actionState.DeleteLabelValues(action, s)
	}
}

// Attach feeds the metrics from lifecycle events on bus.
// The returned function detaches every subscription.
func Attach(bus *events.Bus) func() {
	unsubs := []func(){
		events.Subscribe(bus, func(e events.ActionStateChangedEvent) {
			SetActionState(e.Action, e.To)
		}),
		events.Subscribe(bus, func(e events.ActionCrashedEvent) {
			RecordCrash(e.Action, e.Decision)
		}),
		events.Subscribe(bus, func(e events.ActionLaunchFailedEvent) {
			actionLaunchFailures.WithLabelValues(e.Action).Inc()
		}),
		events.Subscribe(bus, func(events.FailureUnattributedEvent) {
			unattributedFailures.Inc()
		}),
		events.Subscribe(bus, func(events.RejectionEvent) {
			rejections.Inc()
		}),
		events.Subscribe(bus, func(events.PayloadReloadedEvent) {
			payloadReloads.Inc()
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
