package config

// DedupConfig configures the duplicate detection engine.
type DedupConfig struct {
	FuzzyThreshold     float64
	EmbeddingThreshold float64
	BackfillLimit      int
}

func loadDedupConfig() DedupConfig {
	return DedupConfig{
		FuzzyThreshold:     getEnvFloat("DEDUP_FUZZY_THRESHOLD", 0.90),
		EmbeddingThreshold: getEnvFloat("DEDUP_EMBEDDING_THRESHOLD", 0.85),
		BackfillLimit:      getEnvInt("DEDUP_BACKFILL_LIMIT", 0),
	}
}
