// Copyright 2025 The Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus metrics for pipeline execution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayci/relay/pkg/pipeline"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_runs_total",
			Help: "Total pipeline runs by final status",
		},
		[]string{"status"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_jobs_total",
			Help: "Total job executions by final status",
		},
		[]string{"status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"job"},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_steps_total",
			Help: "Total step executions by final status",
		},
		[]string{"status"},
	)

	artifactBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_artifact_bytes_total",
			Help: "Total bytes archived as run artifacts",
		},
	)
)

// ObserveArtifactBytes records an uploaded artifact's archive size.
func ObserveArtifactBytes(n int64) {
	if n > 0 {
		artifactBytes.Add(float64(n))
	}
}

// Attach registers event listeners that translate execution events
// into metrics.
func Attach(emitter *pipeline.EventEmitter) {
	emitter.On(func(ev pipeline.Event) {
		switch ev.Type {
		case pipeline.EventRunFinished:
			runsTotal.WithLabelValues(string(ev.Status)).Inc()
		case pipeline.EventJobFinished:
			jobsTotal.WithLabelValues(string(ev.Status)).Inc()
			jobDuration.WithLabelValues(ev.JobID).Observe(ev.Duration.Seconds())
		case pipeline.EventStepFinished:
			stepsTotal.WithLabelValues(string(ev.Status)).Inc()
		}
	})
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
