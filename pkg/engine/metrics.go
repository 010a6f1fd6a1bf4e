package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineRuns = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visiondemo_engine_run_seconds",
		Help:    "Duration of inference engine jobs",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"task", "model", "outcome"})

	framesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visiondemo_engine_frames_total",
		Help: "Video frames processed by the detection engine",
	}, []string{"model"})
)
