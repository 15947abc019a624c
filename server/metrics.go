package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 服务端运行指标，注册到注入的 Registerer
type Metrics struct {
	Connections      prometheus.Gauge
	Rooms            prometheus.Gauge
	Packets          *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	Moves            *prometheus.CounterVec
	OutboundDrops    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mazearena",
			Name:      "connections",
			Help:      "Currently open client connections",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mazearena",
			Name:      "rooms",
			Help:      "Rooms currently registered",
		}),
		Packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mazearena",
			Name:      "packets_total",
			Help:      "Dispatched request packets by id and result",
		}, []string{"packet", "result"}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mazearena",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one request packet",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"packet"}),
		Moves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mazearena",
			Name:      "moves_total",
			Help:      "Move requests by outcome",
		}, []string{"result"}),
		OutboundDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mazearena",
			Name:      "outbound_overflow_total",
			Help:      "Connections closed because their send queue was full",
		}),
	}
}
