package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsTerminalTotal, jobsSwept) }

var jobsTerminalTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_terminal_total",
		Help: "Total number of generation jobs reaching a terminal state, labeled by status.",
	},
	[]string{"status"}, // 'done', 'error', 'stopped'
)

var jobsSwept = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "generation_jobs_swept_total",
		Help: "Jobs force-closed by the startup crash-recovery sweep.",
	},
)

func IncJobTerminal(status string) {
	jobsTerminalTotal.WithLabelValues(norm(status)).Inc()
}

func IncJobSwept() { jobsSwept.Inc() }

func norm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}
