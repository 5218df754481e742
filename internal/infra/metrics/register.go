// Package metrics holds the broker's prometheus collectors, one file per
// concern: job lifecycle (jobs.go), account balancing (balancer.go) and
// upstream AI calls (ai.go). Collectors are queued at init time and published
// together via MustRegister so cmd binaries that never scrape (e.g. the
// seeder) can skip registration entirely.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once
	pending      []prometheus.Collector
)

// register queues collectors; each file in this package calls it from init().
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister publishes every queued collector on the default registry.
// Safe to call more than once; only the first call registers.
func MustRegister() {
	registerOnce.Do(func() {
		if len(pending) > 0 {
			prometheus.MustRegister(pending...)
		}
	})
}
