package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload parts larger than this are spooled to temporary files
const maxUploadMemory = 32 * 1024 * 1024

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected" // the user made a mistake, and got the form back
	outcomeError    = "error"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiondemo_uploads_total",
		Help: "Upload requests by page and outcome",
	}, []string{"page", "outcome"})

	imagesClassified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visiondemo_images_classified_total",
		Help: "Images classified",
	})

	chartsRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiondemo_charts_rendered_total",
		Help: "Summary charts rendered, by granularity",
	}, []string{"granularity"})
)

func countRequest(page, outcome string) {
	requestsTotal.WithLabelValues(page, outcome).Inc()
}
