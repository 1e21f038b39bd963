package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"influxpool"
)

const namespace = "influxpool"

// PoolCollector exports the state of one or more pools, labelled by pool ID.
type PoolCollector struct {
	states func() map[string]influxpool.State

	connections         *prometheus.Desc
	idleConnections     *prometheus.Desc
	acquiredConnections *prometheus.Desc
	maxConnections      *prometheus.Desc
	acquireTotal        *prometheus.Desc
	emptyAcquireTotal   *prometheus.Desc
	canceledAcquire     *prometheus.Desc
	acquireDuration     *prometheus.Desc
	validationFailures  *prometheus.Desc
	expiredClosed       *prometheus.Desc
}

// NewPoolCollector reads pool states from states on every scrape, typically
// PoolFacade.StatsOfAllPools.
func NewPoolCollector(states func() map[string]influxpool.State) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"pool"}, nil)
	}

	return &PoolCollector{
		states:              states,
		connections:         desc("connections", "Number of connections, idle, in use and being created."),
		idleConnections:     desc("idle_connections", "Number of idle connections."),
		acquiredConnections: desc("acquired_connections", "Number of checked out connections."),
		maxConnections:      desc("max_connections", "Maximum number of connections."),
		acquireTotal:        desc("acquire_total", "Total number of successful checkouts."),
		emptyAcquireTotal:   desc("empty_acquire_total", "Total number of checkouts that found no idle connection."),
		canceledAcquire:     desc("canceled_acquire_total", "Total number of checkouts abandoned by their context."),
		acquireDuration:     desc("acquire_duration_seconds_total", "Total time spent waiting for connections."),
		validationFailures:  desc("validation_failures_total", "Total number of connections dropped after failed validation."),
		expiredClosed:       desc("expired_connections_closed_total", "Total number of connections closed for idle timeout or max lifetime."),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.idleConnections
	ch <- c.acquiredConnections
	ch <- c.maxConnections
	ch <- c.acquireTotal
	ch <- c.emptyAcquireTotal
	ch <- c.canceledAcquire
	ch <- c.acquireDuration
	ch <- c.validationFailures
	ch <- c.expiredClosed
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for id, state := range c.states() {
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(state.Connections), id)
		ch <- prometheus.MustNewConstMetric(c.idleConnections, prometheus.GaugeValue, float64(state.IdleConnections), id)
		ch <- prometheus.MustNewConstMetric(c.acquiredConnections, prometheus.GaugeValue, float64(state.AcquiredConnections), id)
		ch <- prometheus.MustNewConstMetric(c.maxConnections, prometheus.GaugeValue, float64(state.MaxConnections), id)
		ch <- prometheus.MustNewConstMetric(c.acquireTotal, prometheus.CounterValue, float64(state.AcquireCount), id)
		ch <- prometheus.MustNewConstMetric(c.emptyAcquireTotal, prometheus.CounterValue, float64(state.EmptyAcquireCount), id)
		ch <- prometheus.MustNewConstMetric(c.canceledAcquire, prometheus.CounterValue, float64(state.CanceledAcquireCount), id)
		ch <- prometheus.MustNewConstMetric(c.acquireDuration, prometheus.CounterValue, state.AcquireDuration.Seconds(), id)
		ch <- prometheus.MustNewConstMetric(c.validationFailures, prometheus.CounterValue, float64(state.ValidationFailures), id)
		ch <- prometheus.MustNewConstMetric(c.expiredClosed, prometheus.CounterValue, float64(state.ExpiredClosed), id)
	}
}
