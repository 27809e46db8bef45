package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweepRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "certmirror_sync_running",
	Help: "1 while a sweep worker is active, 0 otherwise",
})

var pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "certmirror_sync_pages_total",
	Help: "counter of upstream pages fetched and persisted by the sweep",
})

var recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "certmirror_sync_records_total",
	Help: "counter of certificate records returned by the upstream inventory",
})

var errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "certmirror_sync_errors_total",
	Help: "counter of sweeps terminated by a client or store error",
})

var windowStartSeconds = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "certmirror_sync_window_start_seconds",
	Help: "unix timestamp of the window the sweep is currently paging through",
})
