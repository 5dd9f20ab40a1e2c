package replication

import (
	"github.com/zeusync/cubesync/internal/core/metrics"
)

const subsystem = "replication"

var (
	envelopes = metrics.NewCounter(
		"envelopes_total",
		subsystem,
		"number of envelopes by direction and type",
		[]string{"direction", "type"},
	)

	duplicates = metrics.NewCounter(
		"duplicate_envelopes_total",
		subsystem,
		"number of received envelopes dropped as already seen",
		[]string{},
	).WithLabelValues()

	malformed = metrics.NewCounter(
		"malformed_total",
		subsystem,
		"number of received envelopes or updates that failed validation",
		[]string{"reason"},
	)
	malformedEnvelope = malformed.WithLabelValues("envelope")
	malformedUpdate   = malformed.WithLabelValues("update")

	envelopeBytes = metrics.NewHistogramWithBuckets(
		"envelope_bytes",
		subsystem,
		"encoded envelope size in bytes",
		[]string{"direction"},
		[]float64{64, 128, 256, 512, 1024, 4096, 16384},
	)
	envelopeBytesIn  = envelopeBytes.WithLabelValues("in")
	envelopeBytesOut = envelopeBytes.WithLabelValues("out")

	pendingUpdates = metrics.NewGauge(
		"pending_updates",
		subsystem,
		"number of local writes waiting for the transport",
		[]string{},
	).WithLabelValues()
)
