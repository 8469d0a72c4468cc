package history

import (
	"time"

	"github.com/nikogura/cv-tailor/pkg/llm"
)

// IndexVersion is written into every usage index.
const IndexVersion = "1.0.0"

// IndexFileName is the index file kept at the root of the output directory.
const IndexFileName = ".usage-index.json"

// LedgerSuffix identifies ledger files written by the generate command.
const LedgerSuffix = ".ledger.yaml"

// UsageIndex is the index of all generation runs under an output directory.
type UsageIndex struct {
	Runs      []IndexedRun `json:"runs"`
	UpdatedAt time.Time    `json:"updated_at"`
	Version   string       `json:"version"`
}

// IndexedRun summarizes one ledger file.
type IndexedRun struct {
	RunID           string    `json:"run_id"`
	JobTitle        string    `json:"job_title"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	StartedAt       time.Time `json:"started_at"`
	Sections        int       `json:"sections"`
	Usage           llm.Usage `json:"usage"`
	Recommendations []string  `json:"recommendations"`
	Path            string    `json:"path"`
}

// Summary aggregates usage across runs.
type Summary struct {
	Runs                int                  `json:"runs"`
	Total               llm.Usage            `json:"total"`
	ByProvider          map[string]llm.Usage `json:"by_provider"`
	RecurringAdvice     []Recommendation     `json:"recurring_advice"`
	CacheHitPercent     float64              `json:"cache_hit_percent"`
	LatestRun           time.Time            `json:"latest_run"`
	AverageTokensPerRun int                  `json:"average_tokens_per_run"`
}

// Recommendation is a piece of advice and how many runs produced it.
type Recommendation struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}
