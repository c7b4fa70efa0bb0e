// Package storagetest provides report fixtures shared by backend tests.
package storagetest

import (
	"time"

	"github.com/FranksOps/nichescout/internal/model"
)

// Report returns a two-channel report for runID finished at finishedAt.
// UCa ranks first with analyzed items; UCb ranks second without items.
func Report(runID string, finishedAt time.Time) *model.Report {
	return &model.Report{
		RunID:              runID,
		StartedAt:          finishedAt.Add(-time.Second),
		FinishedAt:         finishedAt,
		RankBy:             "subscribers",
		TotalAccountsFound: 2,
		TopAccounts: []model.AccountRecord{
			{AccountID: "UCa", Title: "Stellar, \"Tales\"", Subscribers: 1500, TotalViews: 90000, TotalItems: 40},
			{AccountID: "UCb", Title: "Quiet Channel", Subscribers: 20},
		},
		PerAccount: map[string]model.AccountReport{
			"UCa": {
				Status: model.StatusOK,
				Summary: model.AnalyticsSummary{
					ItemCount:        3,
					MeanViews:        1333.33,
					OutlierThreshold: 2000,
					OutlierCount:     1,
					TopBigrams:       []model.Bigram{{Pair: [2]string{"space", "orcs"}, Count: 2}},
				},
			},
			"UCb": {Status: model.StatusNoItems},
		},
	}
}
