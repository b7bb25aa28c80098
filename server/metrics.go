package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	errorCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inzoned_server",
		Name:      "error_total",
		Help:      "The total number of errors occurring",
	})

	zoneHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inzoned_server",
		Name:      "zone_cache_hit_total",
		Help:      "Zone responses served from cache",
	})

	zoneMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inzoned_server",
		Name:      "zone_cache_miss_total",
		Help:      "Zone responses built from the engine",
	})
)
