package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// Each metrics file enqueues its collectors from init() via register.
// MustRegister flushes the queue to the default registry exactly once, so
// main can call it unconditionally.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

func MustRegister() {
	once.Do(func() {
		if len(collectors) > 0 {
			prometheus.MustRegister(collectors...)
		}
	})
}

// norm keeps label values lowercase so "Completed" and "completed" count as
// one series.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
