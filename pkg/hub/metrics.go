package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gopad_ot_documents_open",
		Help: "Documents with a running hub loop",
	})

	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gopad_ot_clients_connected",
		Help: "Websocket clients attached to a document",
	})

	resyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gopad_ot_resyncs_total",
		Help: "Snapshots re-sent to clients, by cause",
	}, []string{"cause"})
)
