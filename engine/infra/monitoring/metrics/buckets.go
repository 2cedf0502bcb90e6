package metrics

// LatencyBuckets are histogram boundaries in seconds for store and provider calls.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// CountBuckets are histogram boundaries for per-operation item counts.
var CountBuckets = []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000}
