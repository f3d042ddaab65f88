package telemetry

// This file pre-declares metric definitions so Initialize picks them up
// regardless of init() ordering between packages. Initialize pre-creates
// the counter and histogram instruments; gauge entries, Help, Labels and
// Buckets are not applied to the instruments.

func init() {
	// Memory/state management metrics, emitted by core.MemoryStore (the
	// backing store behind locationhint.MemoryStore) via the core metrics
	// bridge.
	DeclareMetrics("memory", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "memory.operations",
				Type:   "counter",
				Help:   "Memory operations",
				Labels: []string{"operation", "memory_type"},
			},
			{
				Name:   "memory.size_bytes",
				Type:   "gauge",
				Help:   "Memory size in bytes",
				Labels: []string{"memory_type"},
			},
			{
				Name:   "memory.evictions",
				Type:   "counter",
				Help:   "Memory evictions",
				Labels: []string{"memory_type", "reason"},
			},
			{
				Name:   "memory.cache.hits",
				Type:   "counter",
				Help:   "Memory cache hits",
				Labels: []string{"memory_type"},
			},
			{
				Name:   "memory.cache.misses",
				Type:   "counter",
				Help:   "Memory cache misses",
				Labels: []string{"memory_type"},
			},
		},
	})

	// Edge dispatch/queue metrics, emitted directly by dispatch.Core and
	// queue.Worker.
	DeclareMetrics("edge", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "edge.dispatch.batch_enqueued",
				Type:   "counter",
				Help:   "Hit batches enqueued for delivery, by outcome",
				Labels: []string{"status"},
			},
			{
				Name:   "edge.dispatch.batch_size",
				Type:   "gauge",
				Help:   "Event count of the most recently enqueued batch",
			},
			{
				Name:   "edge.dispatch.response_parsed",
				Type:   "counter",
				Help:   "Edge Network response parse attempts, by outcome",
				Labels: []string{"status"},
			},
			{
				Name:   "edge.queue.hit_retried",
				Type:   "counter",
				Help:   "Hits sent back for retry, by response status",
				Labels: []string{"status"},
			},
			{
				Name:   "edge.queue.hit_completed",
				Type:   "counter",
				Help:   "Hits reaching a terminal classification",
				Labels: []string{"class"},
			},
			{
				Name:    "edge.queue.hit_attempts",
				Type:    "histogram",
				Help:    "Attempts taken before a hit reached a terminal classification",
				Labels:  []string{"class"},
				Buckets: []float64{1, 2, 3, 5, 8, 13},
			},
		},
	})
}
