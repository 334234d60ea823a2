package messaging

// Topic suffixes. The full topic is "<prefix>.<suffix>", e.g. genesis.results.
const (
	TopicAttempts = "attempts" // a new header candidate is being searched
	TopicProgress = "progress" // per-worker telemetry ticks
	TopicResults  = "results"  // a candidate was exhausted or solved
)

// Topic joins prefix and suffix. An empty prefix leaves the suffix alone.
func Topic(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}
