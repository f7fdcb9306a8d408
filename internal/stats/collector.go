// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the module.
const (
	// Coordinator metrics.
	MetricBatches         = "movegrade_batches_total"
	MetricGamesClaimed    = "movegrade_games_claimed_total"
	MetricGamesAnalyzed   = "movegrade_games_analyzed_total"
	MetricGamesFailed     = "movegrade_games_failed_total"
	MetricGamesDeferred   = "movegrade_games_deferred_total"
	MetricCommitFailures  = "movegrade_commit_failures_total"
	MetricClaimFailures   = "movegrade_claim_failures_total"
	MetricAnalysisSeconds = "movegrade_game_analysis_seconds"

	// Engine pool metrics.
	MetricEngineWaitSeconds = "movegrade_engine_wait_seconds"
	MetricEnginesInUse      = "movegrade_engines_in_use"
	MetricEnginesDiscarded  = "movegrade_engines_discarded_total"

	// Sweeper metrics.
	MetricStaleSwept = "movegrade_stale_games_swept_total"

	// Cache metrics.
	MetricCacheHits   = "movegrade_cache_hits_total"
	MetricCacheMisses = "movegrade_cache_misses_total"
	MetricCacheSize   = "movegrade_cache_size"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
