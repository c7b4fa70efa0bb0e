package analyzer

import (
	"math"

	"github.com/FranksOps/nichescout/internal/model"
)

const (
	// OutlierFactor is the multiple of the mean view count an item must
	// strictly exceed to be flagged as an outlier.
	OutlierFactor = 1.5
	// SummaryBigrams is how many title bigrams a summary carries.
	SummaryBigrams = 5
)

// Analyze derives the engagement summary for one account's items and returns
// enriched copies with outlier flags and like/comment ratios set. The input
// slice is left untouched. An empty input yields a zero summary and an empty
// slice.
func Analyze(items []model.AnalyzedItem) (model.AnalyticsSummary, []model.AnalyzedItem) {
	if len(items) == 0 {
		return model.AnalyticsSummary{TopBigrams: []model.Bigram{}}, []model.AnalyzedItem{}
	}

	var views, likes, comments float64
	for _, it := range items {
		views += float64(it.Views)
		likes += float64(it.Likes)
		comments += float64(it.Comments)
	}
	n := float64(len(items))
	meanViews := views / n
	threshold := OutlierFactor * meanViews

	enriched := make([]model.AnalyzedItem, len(items))
	titles := make([]string, len(items))
	outliers := 0
	for i, it := range items {
		it.IsOutlier = float64(it.Views) > threshold
		it.LikeRatio = ratio(it.Likes, it.Views)
		it.CommentRatio = ratio(it.Comments, it.Views)
		if it.IsOutlier {
			outliers++
		}
		enriched[i] = it
		titles[i] = it.Title
	}

	summary := model.AnalyticsSummary{
		ItemCount:        len(items),
		MeanViews:        round2(meanViews),
		MeanLikes:        round2(likes / n),
		MeanComments:     round2(comments / n),
		OutlierThreshold: round2(threshold),
		OutlierCount:     outliers,
		TopBigrams:       TopBigrams(titles, SummaryBigrams),
	}
	return summary, enriched
}

func ratio(part, views int64) float64 {
	if views == 0 {
		return 0
	}
	return float64(part) / float64(views)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
