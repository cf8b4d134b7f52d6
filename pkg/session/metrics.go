package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shiftregister-vg/gopad-ot/pkg/codec"
	"github.com/shiftregister-vg/gopad-ot/pkg/ot"
)

var (
	opsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gopad_ot_operations_accepted_total",
		Help: "Operations accepted into a document history",
	}, []string{"kind"})

	opsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gopad_ot_operations_rejected_total",
		Help: "Operations rejected, by reason",
	}, []string{"kind", "reason"})

	transformsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gopad_ot_transforms_total",
		Help: "Transforms of submitted operations against concurrent history",
	}, []string{"kind"})

	historyLength = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gopad_ot_transform_depth",
		Help:    "Number of history entries a submitted operation was transformed against",
		Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500},
	}, []string{"kind"})
)

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrRevision):
		return "revision"
	case errors.Is(err, ErrKind), errors.Is(err, codec.ErrUnknownType):
		return "kind"
	case errors.Is(err, ot.ErrTransform):
		return "transform"
	case errors.Is(err, ot.ErrApply):
		return "apply"
	case errors.Is(err, ot.ErrCompose):
		return "compose"
	}
	return "decode"
}
