// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayConnections is the number of streaming websocket clients.
	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "botbridge",
		Subsystem: "gateway",
		Name:      "connections",
		Help:      "Currently streaming websocket connections.",
	})

	// SnapshotPushes counts gateway ticks by outcome (update, error, skipped or
	// discarded after the client left).
	SnapshotPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "botbridge",
		Subsystem: "gateway",
		Name:      "snapshot_pushes_total",
		Help:      "Snapshot ticks by outcome.",
	}, []string{"result"})

	// HandshakeRejections counts websocket handshakes closed with policy violation.
	HandshakeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "botbridge",
		Subsystem: "gateway",
		Name:      "handshake_rejections_total",
		Help:      "Websocket handshakes rejected, by reason.",
	}, []string{"reason"})

	// CASConflicts counts optimistic-lock conflicts.
	CASConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "botbridge",
		Subsystem: "store",
		Name:      "cas_conflicts_total",
		Help:      "WATCH/EXEC conflicts retried, by operation.",
	}, []string{"op"})

	// StoreErrors counts store failures by error kind.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "botbridge",
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Store operation failures by kind.",
	}, []string{"kind"})

	// StoreReady is 1 while the key-value backend answers pings.
	StoreReady = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "botbridge",
		Subsystem: "store",
		Name:      "ready",
		Help:      "1 when the key-value backend is reachable.",
	})

	// StaleTickets is the number of deletion tickets older than the stale
	// threshold at the last reconcile pass.
	StaleTickets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "botbridge",
		Subsystem: "queue",
		Name:      "stale_tickets",
		Help:      "Deletion/close tickets not consumed within the stale threshold.",
	})
)
