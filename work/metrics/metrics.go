package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ActiveSessions tracks the number of active delivery sessions per mode
// (proxy, transcode, passthrough, webm). Gauge: rises on connect, falls on
// disconnect.
var ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "sokol_active_sessions",
	Help: "Number of active delivery sessions",
}, []string{"mode"})

// BytesDelivered counts bytes streamed to clients per delivery mode.
var BytesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sokol_bytes_delivered_total",
	Help: "Total bytes delivered to clients",
}, []string{"mode"})

// DeliveryErrors counts delivery failures per mode. The "stage" label
// distinguishes request validation, upstream dial, mid-stream and subprocess
// spawn failures.
var DeliveryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sokol_delivery_errors_total",
	Help: "Number of delivery errors",
}, []string{"mode", "stage"})

// CatalogQueries counts catalog reads per operation (categories, items,
// shows). Every query re-parses the backing file, so this also approximates
// parse volume.
var CatalogQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sokol_catalog_queries_total",
	Help: "Number of catalog queries served",
}, []string{"op"})
