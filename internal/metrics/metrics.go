package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "votem"

var (
	Registry = prometheus.NewRegistry()

	TransactionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_accepted_total",
		Help:      "number of vote transactions accepted into the mempool",
	})

	TransactionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_rejected_total",
		Help:      "number of vote transactions rejected",
	}, []string{"reason"})

	BlocksMined = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_mined_total",
		Help:      "number of blocks mined locally",
	})

	BlocksAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_accepted_total",
		Help:      "number of blocks accepted from peers",
	})

	MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "number of protocol messages received",
	}, []string{"type"})

	ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_height",
		Help:      "number of blocks in the local chain",
	})

	Peers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "peers",
		Help:      "number of live peer connections",
	})
)

func init() {
	Registry.MustRegister(
		TransactionsAccepted,
		TransactionsRejected,
		BlocksMined,
		BlocksAccepted,
		MessagesReceived,
		ChainHeight,
		Peers,
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
