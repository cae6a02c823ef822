// Package metrics counts what a release run did against the hosting API and
// exports the counters in the Prometheus text format. CI runners pick the
// file up through a textfile collector; nothing is served over HTTP.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry with the run's counters. A nil *Recorder
// is a valid no-op recorder.
type Recorder struct {
	registry       *prometheus.Registry
	apiRequests    *prometheus.CounterVec
	rateLimitRetry *prometheus.CounterVec
	proposals      *prometheus.CounterVec
	releases       *prometheus.CounterVec
	toolRuns       *prometheus.CounterVec
}

// New creates a Recorder with all counters registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comet",
			Name:      "api_requests_total",
			Help:      "Hosting API requests by backend, operation, and outcome.",
		}, []string{"backend", "op", "outcome"}),
		rateLimitRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comet",
			Name:      "rate_limit_retries_total",
			Help:      "Retries performed after a rate-limit response, by category.",
		}, []string{"category"}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comet",
			Name:      "proposals_total",
			Help:      "Version proposals reconciled, by action (created, updated).",
		}, []string{"action"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comet",
			Name:      "releases_total",
			Help:      "Release records by outcome (created, skipped, existing).",
		}, []string{"outcome"}),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comet",
			Name:      "tool_runs_total",
			Help:      "Version and publish tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
	r.registry.MustRegister(r.apiRequests, r.rateLimitRetry, r.proposals, r.releases, r.toolRuns)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// APIRequest counts one hosting API call.
func (r *Recorder) APIRequest(backend, op string, err error) {
	if r == nil {
		return
	}
	r.apiRequests.WithLabelValues(backend, op, outcome(err)).Inc()
}

// RateLimitRetry counts one retry after a rate-limit response.
func (r *Recorder) RateLimitRetry(category string) {
	if r == nil {
		return
	}
	r.rateLimitRetry.WithLabelValues(category).Inc()
}

// Proposal counts a reconciled proposal.
func (r *Recorder) Proposal(action string) {
	if r == nil {
		return
	}
	r.proposals.WithLabelValues(action).Inc()
}

// Release counts a release outcome.
func (r *Recorder) Release(outcome string) {
	if r == nil {
		return
	}
	r.releases.WithLabelValues(outcome).Inc()
}

// ToolRun counts a subprocess invocation.
func (r *Recorder) ToolRun(tool string, err error) {
	if r == nil {
		return
	}
	r.toolRuns.WithLabelValues(tool, outcome(err)).Inc()
}

// WriteTextfile writes every counter to path in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
