// Package metrics exposes kernel-internal counters and gauges over
// Prometheus, independent of any end-user application-level telemetry a
// task might emit on its own. One Registry is created per kernel
// instance so a multi-tile simulator can register each tile under its
// own address label without colliding with prometheus's default global
// registry.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pucrs-maestro/maestro/wire"
)

// Registry bundles every kernel metric for one tile. Grounded on the
// custom-collector-per-instance pattern the pack's sockstats exporter
// uses (prometheus.NewRegistry per collector owner rather than relying
// on the global DefaultRegisterer), since a mesh simulator runs many
// Kernel instances in one process and each needs its own label set.
type Registry struct {
	reg *prometheus.Registry

	KPipeDepth      prometheus.Gauge
	PendingDepth    prometheus.Gauge
	MigTableSize    prometheus.Gauge
	TCBCount        prometheus.Gauge
	HermesSent      *prometheus.CounterVec
	HermesRecv      *prometheus.CounterVec
	MigrationsOut   prometheus.Counter
	MigrationsIn    prometheus.Counter
	ISRTicks        prometheus.Counter
	HaltAttempts    prometheus.Counter
	PEHalted        prometheus.Gauge
}

// NewRegistry builds and registers every kernel metric, labeled with the
// owning tile's address so one process can host an entire mesh without
// metric name collisions.
func NewRegistry(addr wire.TileAddr) *Registry {
	reg := prometheus.NewRegistry()
	tile := strconv.Itoa(int(addr))

	constLabels := prometheus.Labels{"tile": tile}
	r := &Registry{
		reg: reg,
		KPipeDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maestro", Subsystem: "kernel", Name: "kpipe_depth",
			Help: "Number of messages currently queued in the kernel pipe.",
			ConstLabels: constLabels,
		}),
		PendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maestro", Subsystem: "kernel", Name: "pending_depth",
			Help: "Number of DATA_AV/MESSAGE_REQUEST handshakes deferred in the pending FIFO.",
			ConstLabels: constLabels,
		}),
		MigTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maestro", Subsystem: "kernel", Name: "migration_table_size",
			Help: "Number of tasks this tile is currently forwarding for after migrating away.",
			ConstLabels: constLabels,
		}),
		TCBCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maestro", Subsystem: "kernel", Name: "tcb_count",
			Help: "Number of TCBs resident on this tile.",
			ConstLabels: constLabels,
		}),
		HermesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro", Subsystem: "hermes", Name: "packets_sent_total",
			Help: "Hermes packets sent, by service code.",
			ConstLabels: constLabels,
		}, []string{"service"}),
		HermesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro", Subsystem: "hermes", Name: "packets_received_total",
			Help: "Hermes packets received, by service code.",
			ConstLabels: constLabels,
		}, []string{"service"}),
		MigrationsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro", Subsystem: "migration", Name: "sent_total",
			Help: "Tasks migrated away from this tile.",
			ConstLabels: constLabels,
		}),
		MigrationsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro", Subsystem: "migration", Name: "received_total",
			Help: "Tasks migrated onto this tile.",
			ConstLabels: constLabels,
		}),
		ISRTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro", Subsystem: "kernel", Name: "isr_ticks_total",
			Help: "Number of times the interrupt dispatcher has run.",
			ConstLabels: constLabels,
		}),
		HaltAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro", Subsystem: "kernel", Name: "halt_attempts_total",
			Help: "Number of HaltTry invocations, successful or not.",
			ConstLabels: constLabels,
		}),
		PEHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maestro", Subsystem: "kernel", Name: "pe_halted",
			Help: "1 once this tile has reached PE_HALTED, 0 until then.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(
		r.KPipeDepth, r.PendingDepth, r.MigTableSize, r.TCBCount,
		r.HermesSent, r.HermesRecv, r.MigrationsOut, r.MigrationsIn,
		r.ISRTicks, r.HaltAttempts, r.PEHalted,
	)
	return r
}

// Gatherer exposes the underlying registry for an HTTP handler to serve.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveSent and ObserveRecv increment the sent/received counter for
// svc, used by the kernel's send/dispatch paths to track traffic by
// service code.
func (r *Registry) ObserveSent(svc wire.Service) {
	r.HermesSent.WithLabelValues(serviceLabel(svc)).Inc()
}

func (r *Registry) ObserveRecv(svc wire.Service) {
	r.HermesRecv.WithLabelValues(serviceLabel(svc)).Inc()
}

func serviceLabel(svc wire.Service) string {
	return "0x" + strconv.FormatUint(uint64(svc), 16)
}
