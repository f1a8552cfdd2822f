package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "echo"

// Metric names registered by the server.
const (
	MessagesSent      = "messages_sent_total"
	Polls             = "polls_total"
	ActiveSignalPeers = "active_signal_peers"
	SweepRuns         = "sweep_runs_total"
	SweepRowsDeleted  = "sweep_rows_deleted_total"
	SweepErrors       = "sweep_errors_total"
	RateLimited       = "rate_limited_total"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	Add(name string, value int64)
}

type metric interface {
	prometheus.Collector
	Add(float64)
}

type StatsUpdater struct {
	registry   *prometheus.Registry
	metrics    map[string]metric
	updateChan chan *metricsUpdateReq
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	value int64
}

// NewStatsUpdater creates a stats updater backed by its own registry and
// exposes it on GET /metrics.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry:   prometheus.NewRegistry(),
		metrics:    make(map[string]metric),
		updateChan: make(chan *metricsUpdateReq, 512),
		done:       make(chan struct{}),
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started.",
		}, func() float64 {
			return time.Since(startTime).Seconds()
		}),
	)
}

// RegisterCounter registers a monotonically increasing metric.
func (su *StatsUpdater) RegisterCounter(name, help string) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	su.registry.MustRegister(c)
	su.metrics[name] = c
}

// RegisterMetric registers a metric that can go up and down.
func (su *StatsUpdater) RegisterMetric(name, help string) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	su.registry.MustRegister(g)
	su.metrics[name] = g
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)
	for req := range su.updateChan {
		m, ok := su.metrics[req.name]
		if !ok {
			panic("metric not found: " + req.name)
		}

		m.Add(float64(req.value))
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updateChan <- &metricsUpdateReq{name: name, value: -1}
}

func (su *StatsUpdater) Add(name string, value int64) {
	if value == 0 {
		return
	}
	su.updateChan <- &metricsUpdateReq{name: name, value: value}
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop drains pending updates and stops the updater. Metrics must not be
// updated after Stop is called.
func (su *StatsUpdater) Stop() {
	close(su.updateChan)
	<-su.done
}

// RegisterDefaults registers every metric the server updates.
func (su *StatsUpdater) RegisterDefaults() {
	su.RegisterCounter(MessagesSent, "Room messages accepted.")
	su.RegisterCounter(Polls, "Poll requests served.")
	su.RegisterMetric(ActiveSignalPeers, "Connected signaling peers.")
	su.RegisterCounter(SweepRuns, "Cleanup sweeps run.")
	su.RegisterCounter(SweepRowsDeleted, "Rows removed or updated by cleanup sweeps.")
	su.RegisterCounter(SweepErrors, "Failed cleanup sweep steps.")
	su.RegisterCounter(RateLimited, "Write requests rejected by the rate limiter.")
}
