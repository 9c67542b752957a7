// Package metrics exposes Prometheus counters for the agent core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ModelRequests counts generation requests by provider and outcome.
	ModelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "builder6_model_requests_total",
		Help: "Model generation requests partitioned by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ModelRetries counts transient-failure retries by provider.
	ModelRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "builder6_model_retries_total",
		Help: "Retries issued for transient model upstream failures.",
	}, []string{"provider"})

	// ToolExecutions counts tool dispatches by tool name and outcome.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "builder6_tool_executions_total",
		Help: "Tool dispatches partitioned by tool name and outcome.",
	}, []string{"tool", "outcome"})

	// ContainersCreated counts containers started by the supervisor.
	ContainersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "builder6_containers_created_total",
		Help: "Containers created by the sandbox supervisor.",
	})

	// ContainersReaped counts containers destroyed by idle cleanup.
	ContainersReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "builder6_containers_reaped_total",
		Help: "Containers destroyed because they exceeded the idle timeout.",
	})
)
