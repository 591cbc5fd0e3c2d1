package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubdesk",
		Name:      "member_transitions_total",
		Help:      "Member lifecycle actions by outcome.",
	}, []string{"action", "result"})

	transitionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clubdesk",
		Name:      "member_transition_seconds",
		Help:      "Time spent applying a member lifecycle action.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clubdesk",
		Name:      "pin_lockouts_total",
		Help:      "PIN verifications that started a cooldown.",
	})

	digests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubdesk",
		Name:      "expiry_digests_total",
		Help:      "Expiring-members digests by outcome.",
	}, []string{"result"})
)

// Result buckets an action outcome for the result label.
type Result string

const (
	ResultOK       Result = "ok"
	ResultRejected Result = "rejected"
	ResultConflict Result = "conflict"
	ResultError    Result = "error"
	ResultSkipped  Result = "skipped"
)

func ObserveTransition(action string, result Result, took time.Duration) {
	transitions.WithLabelValues(action, string(result)).Inc()
	transitionSeconds.WithLabelValues(action).Observe(took.Seconds())
}

func IncLockout() { lockouts.Inc() }

func ObserveDigest(result Result) { digests.WithLabelValues(string(result)).Inc() }
