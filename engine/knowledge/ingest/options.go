package ingest

import "time"

const (
	DefaultBatchSize     = 100
	DefaultConcurrency   = 2
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 200 * time.Millisecond
	DefaultSampleSize    = 10
)

// Options controls batching, retries, and reporting for one pipeline.
type Options struct {
	// EmbeddingModel is reported in the result.
	EmbeddingModel string
	BatchSize      int
	Concurrency    int
	// RetryAttempts counts total embedding attempts per batch, including the first.
	RetryAttempts int
	RetryBackoff  time.Duration
	// SampleSize caps Result.SampleIDs. Zero uses the default; negative disables samples.
	SampleSize int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.SampleSize < 0 {
		o.SampleSize = 0
	} else if o.SampleSize == 0 {
		o.SampleSize = DefaultSampleSize
	}
	return o
}
