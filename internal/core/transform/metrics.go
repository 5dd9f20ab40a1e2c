package transform

import (
	"github.com/zeusync/cubesync/internal/core/metrics"
)

const subsystem = "transform"

var (
	writes = metrics.NewCounter(
		"writes_total",
		subsystem,
		"number of accepted writes by origin",
		[]string{"origin"},
	)
	localWrites   = writes.WithLabelValues(OriginLocal.String())
	remoteApplied = writes.WithLabelValues(OriginRemote.String())

	remoteDiscarded = metrics.NewCounter(
		"remote_discarded_total",
		subsystem,
		"number of remote writes that lost last-writer-wins",
		[]string{},
	).WithLabelValues()

	rejected = metrics.NewCounter(
		"rejected_total",
		subsystem,
		"number of writes rejected as invalid",
		[]string{"origin"},
	)
	rejectedLocal  = rejected.WithLabelValues(OriginLocal.String())
	rejectedRemote = rejected.WithLabelValues(OriginRemote.String())
)
