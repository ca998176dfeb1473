package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	emitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vichat_ws_emit_total",
		Help: "Events emitted to the server, by event name.",
	}, []string{"event"})

	emitDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vichat_ws_emit_dropped_total",
		Help: "Emit attempts dropped because no connection was live.",
	}, []string{"event"})

	recvTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vichat_ws_recv_total",
		Help: "Events received from the server, by event name.",
	}, []string{"event"})

	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vichat_ws_reconnect_total",
		Help: "Automatic reconnect attempts.",
	})
)
