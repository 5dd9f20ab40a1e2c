package server

import (
	"github.com/zeusync/cubesync/internal/core/metrics"
)

const subsystem = "relay"

var (
	roomsActive = metrics.NewGauge(
		"rooms",
		subsystem,
		"number of rooms with at least one member",
		[]string{},
	).WithLabelValues()

	membersActive = metrics.NewGauge(
		"members",
		subsystem,
		"number of connected members across all rooms",
		[]string{},
	).WithLabelValues()

	framesReceived = metrics.NewCounter(
		"frames_received_total",
		subsystem,
		"number of frames read from members",
		[]string{},
	).WithLabelValues()

	framesForwarded = metrics.NewCounter(
		"frames_forwarded_total",
		subsystem,
		"number of frames written to members",
		[]string{},
	).WithLabelValues()

	forwardErrors = metrics.NewCounter(
		"forward_errors_total",
		subsystem,
		"number of failed writes to members",
		[]string{},
	).WithLabelValues()

	upgradeErrors = metrics.NewCounter(
		"upgrade_errors_total",
		subsystem,
		"number of rejected websocket upgrades",
		[]string{},
	).WithLabelValues()
)
