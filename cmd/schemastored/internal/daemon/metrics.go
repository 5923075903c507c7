package daemon

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/config"
)

const prometheusNamespace = "schemastore"

func (d *Daemon) registerMetrics() {
	buildInfoGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: prometheusNamespace, Subsystem: "build", Name: "info"},
		[]string{"version", "goversion", "commit", "branch", "build_timestamp"},
	)
	buildInfoGauge.With(prometheus.Labels{
		"version":         config.Version,
		"commit":          config.CommitHash,
		"branch":          config.Branch,
		"build_timestamp": config.BuildTimestamp,
		"goversion":       runtime.Version(),
	}).Inc()

	d.registry.MustRegister(prometheus.NewGoCollector())
	d.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	d.registry.MustRegister(buildInfoGauge)
}
