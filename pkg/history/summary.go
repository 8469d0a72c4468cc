package history

import (
	"sort"
	"strings"

	"github.com/nikogura/cv-tailor/pkg/llm"
)

// maxRecurringAdvice caps the advice list in a summary.
const maxRecurringAdvice = 5

// Summarize aggregates usage and recurring recommendations across runs.
func Summarize(index UsageIndex) (summary Summary) {
	summary = Summary{
		Runs:            len(index.Runs),
		ByProvider:      make(map[string]llm.Usage),
		RecurringAdvice: []Recommendation{},
	}

	// Count each recommendation once per run.
	counts := make(map[string]int)
	display := make(map[string]string)

	for _, run := range index.Runs {
		summary.Total = summary.Total.Add(run.Usage)

		provider := run.Provider
		if provider == "" {
			provider = "unknown"
		}
		summary.ByProvider[provider] = summary.ByProvider[provider].Add(run.Usage)

		if run.StartedAt.After(summary.LatestRun) {
			summary.LatestRun = run.StartedAt
		}

		seen := make(map[string]bool)
		for _, text := range run.Recommendations {
			key := strings.ToLower(strings.TrimSpace(text))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			counts[key]++
			if _, ok := display[key]; !ok {
				display[key] = strings.TrimSpace(text)
			}
		}
	}

	if summary.Runs > 0 {
		summary.AverageTokensPerRun = summary.Total.TotalTokens / summary.Runs
	}

	if summary.Total.PromptTokens > 0 {
		summary.CacheHitPercent = float64(summary.Total.CachedPromptTokens) * 100 / float64(summary.Total.PromptTokens)
	}

	// Advice given in a single run is not recurring.
	for key, count := range counts {
		if count > 1 {
			summary.RecurringAdvice = append(summary.RecurringAdvice, Recommendation{Text: display[key], Count: count})
		}
	}

	sort.Slice(summary.RecurringAdvice, func(i, j int) bool {
		a, b := summary.RecurringAdvice[i], summary.RecurringAdvice[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Text < b.Text
	})

	if len(summary.RecurringAdvice) > maxRecurringAdvice {
		summary.RecurringAdvice = summary.RecurringAdvice[:maxRecurringAdvice]
	}

	return summary
}
