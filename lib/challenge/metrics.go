package challenge

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "abacus_challenges_issued_total",
		Help: "The total number of challenges stored for verification",
	})

	consumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abacus_challenges_consumed_total",
		Help: "The total number of consume attempts by outcome",
	}, []string{"outcome"})

	TimeTaken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "abacus_time_taken",
		Help:    "The time between issuing a challenge and its first verify attempt (milliseconds)",
		Buckets: prometheus.ExponentialBucketsRange(100, math.Pow(2, 19), 20),
	})
)
