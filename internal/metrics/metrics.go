package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ScanDecisions counts admission outcomes by tag.
var ScanDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classattend_scan_decisions_total",
	Help: "Admission decisions by outcome.",
}, []string{"outcome"})

// PendingSynced counts pending events the worker managed to persist.
var PendingSynced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "classattend_pending_synced_total",
	Help: "Locally recorded attendance events synced to the store.",
})

// PendingRetries counts sync attempts that failed and were re-queued.
var PendingRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "classattend_pending_retries_total",
	Help: "Pending attendance sync attempts that failed.",
})
