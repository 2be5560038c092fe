package runtime

import (
	"sync"
	"time"

	"github.com/quarryhq/quarry/internal/observability"
)

// metricsObserver bridges tool lifecycle notifications into the
// prometheus collectors. It must tolerate concurrent calls; parallel
// tool calls within one turn all report through it.
type metricsObserver struct {
	metrics *observability.Metrics

	mu      sync.Mutex
	started map[string]time.Time // call id -> start
}

func (o *metricsObserver) OnToolStart(name, id string, _ map[string]any) {
	o.mu.Lock()
	if o.started == nil {
		o.started = make(map[string]time.Time)
	}
	o.started[id] = time.Now()
	o.mu.Unlock()
}

func (o *metricsObserver) OnToolResult(name, id, _ string) {
	o.metrics.ToolExecutions.WithLabelValues(name, "success").Inc()
	o.observeDuration(name, id)
}

func (o *metricsObserver) OnToolError(name, id, _ string) {
	o.metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
	o.observeDuration(name, id)
}

func (o *metricsObserver) OnCacheHit(name, _ string) {
	o.metrics.CacheHits.WithLabelValues(name).Inc()
}

func (o *metricsObserver) observeDuration(name, id string) {
	o.mu.Lock()
	start, ok := o.started[id]
	if ok {
		delete(o.started, id)
	}
	o.mu.Unlock()
	if ok {
		o.metrics.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}
