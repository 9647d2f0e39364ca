package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "territory",
		Subsystem: "assignments",
		Name:      "total",
		Help:      "Total number of assignment mutations broken down by method and result.",
	}, []string{"method", "result"})

	ruleEvalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "territory",
		Subsystem: "rules",
		Name:      "eval_failures_total",
		Help:      "Total number of rules skipped at evaluation time broken down by reason.",
	}, []string{"reason"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "territory",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of write conflicts broken down by kind.",
	}, []string{"kind"})
)

func recordAssignment(method string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	assignmentsTotal.WithLabelValues(method, result).Inc()
}

func recordRuleEvalFailure(reason string) {
	if reason == "" {
		reason = "other"
	}
	ruleEvalFailures.WithLabelValues(reason).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}
