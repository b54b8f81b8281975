package insights

import (
	"sort"
	"time"

	"github.com/fortuna/pomona/internal/cache"
	"github.com/fortuna/pomona/internal/store"
)

// DefaultTopN is the size of the ranked slice
const DefaultTopN = 20

// Headlines
const (
	SummaryHighConfidence = "High confidence day with multiple strong plays available"
	SummaryTrendingUp     = "Market trending upward with several improving players"
	SummaryMixed          = "Mixed signals today - proceed with caution"
)

const highConfidenceScore = 80

// homeTimeLayout renders the generation time in the home zone
const homeTimeLayout = "1/2/2006, 3:04:05 PM"

// BuildOptions parameterize a bundle
type BuildOptions struct {
	TopN     int
	Date     time.Time
	Sport    store.Sport
	Final    bool
	Now      time.Time
	Location *time.Location
}

// Build ranks projections by fruit score and summarizes the top slice. The
// input slice is not modified.
func Build(projections []*store.Projection, opts BuildOptions) *store.InsightBundle {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	ranked := make([]*store.Projection, len(projections))
	copy(ranked, projections)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FruitScore > ranked[j].FruitScore
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	return &store.InsightBundle{
		Date:        cache.DateKey(opts.Date.In(loc)),
		Sport:       opts.Sport,
		TopFruit:    ranked,
		Insights:    Summarize(ranked),
		GeneratedAt: opts.Now,
		IsFinal:     opts.Final,
		HomeTime:    opts.Now.In(loc).Format(homeTimeLayout),
	}
}

// Summarize counts signals over a ranked slice and picks a headline
func Summarize(top []*store.Projection) store.InsightSummary {
	s := store.InsightSummary{TotalAnalyzed: len(top)}
	for _, p := range top {
		if p.FruitScore >= highConfidenceScore {
			s.HighConfidence++
		}
		switch p.Trend.Direction {
		case store.TrendImproving:
			s.Improving++
		case store.TrendDeclining:
			s.Declining++
		}
	}

	switch {
	case s.HighConfidence > 10:
		s.Summary = SummaryHighConfidence
	case s.Improving > s.Declining:
		s.Summary = SummaryTrendingUp
	default:
		s.Summary = SummaryMixed
	}
	return s
}
