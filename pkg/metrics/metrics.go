// Package metrics exposes the monitor's gauges through the teacher's
// generic metrics Driver/Adapter (core/pkg/adapters/metrics), so swapping
// the backing driver (in-memory, Prometheus, statsd, ...) never touches
// the membership package.
package metrics

import (
	"github.com/flux-framework/flux-core/core/pkg/adapters/metrics"
	"github.com/flux-framework/flux-core/core/pkg/contracts"
	"github.com/flux-framework/flux-core/pkg/membership"
)

// Gauges holds the four gauges SPEC_FULL.md names for the Monitor.
type Gauges struct {
	Up            contracts.Gauge
	Torpid        contracts.Gauge
	Lost          contracts.Gauge
	WaitupPending contracts.Gauge
}

// New builds Gauges on top of adapter, namespaced "resource".
func New(adapter *metrics.Adapter) *Gauges {
	a := adapter.WithNamespace("resource")
	return &Gauges{
		Up:            a.Gauge("up_count"),
		Torpid:        a.Gauge("torpid_count"),
		Lost:          a.Gauge("lost_count"),
		WaitupPending: a.Gauge("waitup_pending"),
	}
}

// Sample records one StatSnapshot's counts onto the gauges.
func (g *Gauges) Sample(stats membership.StatSnapshot) {
	g.Up.Set(float64(stats.Up))
	g.Torpid.Set(float64(stats.Torpid))
	g.Lost.Set(float64(stats.Lost))
	g.WaitupPending.Set(float64(stats.WaitupPending))
}
