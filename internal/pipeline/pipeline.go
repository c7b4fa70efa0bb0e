// Package pipeline sequences niche discovery: keyword fan-out, account
// dedup and enrichment, top-K selection and per-account engagement analysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/nichescout/internal/analyzer"
	"github.com/FranksOps/nichescout/internal/metrics"
	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/rank"
	"github.com/FranksOps/nichescout/internal/registry"
	"github.com/FranksOps/nichescout/internal/serp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNoKeywords is returned when Run gets no usable keyword.
	ErrNoKeywords = errors.New("pipeline: no keywords")
	// ErrEmptyDiscovery is returned, together with the partial report, when
	// no keyword produced a single account.
	ErrEmptyDiscovery = errors.New("pipeline: no accounts discovered")
)

// Bounds and defaults of the run options.
const (
	DefaultPerKeyword = 15
	MinPerKeyword     = 5
	MaxPerKeyword     = 50

	DefaultItemsPerAccount = 5
	MinItemsPerAccount     = 5
	MaxItemsPerAccount     = 20

	DefaultTopK   = 5
	DefaultRankBy = "subscribers"
)

// Options tunes a run. Zero values select the defaults; out-of-range
// limits are clamped.
type Options struct {
	// PerKeyword caps the hits requested for each keyword.
	PerKeyword int
	// ItemsPerAccount caps the recent items analyzed for each top account.
	ItemsPerAccount int
	// TopK is how many accounts get the deep analysis.
	TopK int
	// RankBy names the ranking key: subscribers, views or items.
	RankBy string
}

func (o Options) normalized() Options {
	if o.PerKeyword == 0 {
		o.PerKeyword = DefaultPerKeyword
	}
	o.PerKeyword = Clamp(o.PerKeyword, MinPerKeyword, MaxPerKeyword)
	if o.ItemsPerAccount == 0 {
		o.ItemsPerAccount = DefaultItemsPerAccount
	}
	o.ItemsPerAccount = Clamp(o.ItemsPerAccount, MinItemsPerAccount, MaxItemsPerAccount)
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if strings.TrimSpace(o.RankBy) == "" {
		o.RankBy = DefaultRankBy
	}
	return o
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Pipeline drives one provider through a discovery run. Calls are issued
// one at a time; a Pipeline may be reused but not shared across goroutines.
type Pipeline struct {
	provider serp.Provider
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a Pipeline over provider.
func New(provider serp.Provider, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		provider: provider,
		opts:     opts.normalized(),
		logger:   logger,
		tracer:   otel.Tracer("nichescout/pipeline"),
		now:      time.Now,
	}
}

// Options returns the effective options after defaults and clamps.
func (p *Pipeline) Options() Options { return p.opts }

// Run executes a full discovery over keywords. Provider failures are logged
// and degrade to empty or zero values. When no account is found the partial
// report is returned with ErrEmptyDiscovery. Cancellation aborts the run
// between provider calls.
func (p *Pipeline) Run(ctx context.Context, keywords []string) (*model.Report, error) {
	kws := cleanKeywords(keywords)
	if len(kws) == 0 {
		return nil, ErrNoKeywords
	}
	key, err := rank.KeyByName(p.opts.RankBy)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("run.keywords", len(kws)),
		attribute.String("run.rank_by", p.opts.RankBy),
	))
	defer span.End()

	report := &model.Report{
		RunID:       uuid.NewString(),
		StartedAt:   p.now().UTC(),
		RankBy:      strings.ToLower(strings.TrimSpace(p.opts.RankBy)),
		Keywords:    make([]model.KeywordStat, 0, len(kws)),
		TopAccounts: []model.AccountRecord{},
		PerAccount:  make(map[string]model.AccountReport),
	}
	logger := p.logger.With("run_id", report.RunID)
	logger.Info("run started", "keywords", len(kws), "per_keyword", p.opts.PerKeyword, "top_k", p.opts.TopK, "rank_by", report.RankBy)

	finish := func(result string, err error) (*model.Report, error) {
		report.FinishedAt = p.now().UTC()
		metrics.RecordReport(report, result)
		span.SetAttributes(attribute.String("run.result", result))
		if err != nil && result != "empty" {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		return report, err
	}

	reg := registry.New()
	if err := p.discover(ctx, logger, kws, reg, report); err != nil {
		return finish("canceled", err)
	}
	report.TotalAccountsFound = reg.Len()
	span.SetAttributes(attribute.Int("run.accounts", reg.Len()))
	if reg.Len() == 0 {
		logger.Warn("no accounts discovered")
		return finish("empty", ErrEmptyDiscovery)
	}

	if err := p.enrich(ctx, logger, reg); err != nil {
		return finish("canceled", err)
	}

	report.TopAccounts = rank.TopK(reg.Records(), key, p.opts.TopK)
	for _, acc := range report.TopAccounts {
		ar, err := p.analyzeAccount(ctx, logger, acc, kws)
		if err != nil {
			return finish("canceled", err)
		}
		report.PerAccount[acc.AccountID] = ar
	}

	logger.Info("run finished",
		"accounts", report.TotalAccountsFound,
		"top", len(report.TopAccounts),
		"duration", p.now().UTC().Sub(report.StartedAt),
	)
	return finish("ok", nil)
}

// discover fans the keywords out to the provider and registers every
// account sighting.
func (p *Pipeline) discover(ctx context.Context, logger *slog.Logger, kws []string, reg *registry.Registry, report *model.Report) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.discover")
	defer span.End()

	for _, kw := range kws {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}

		stat := model.KeywordStat{Keyword: kw}
		hits, err := p.provider.Search(ctx, serp.Query{Text: kw, Mode: serp.ModeAccount, Limit: p.opts.PerKeyword})
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("pipeline: %w", cerr)
			}
			logger.Warn("keyword search failed", "keyword", kw, "err", err)
			stat.Failed = true
		}

		seen := make(map[string]bool)
		for _, h := range hits {
			if h.AccountID == "" {
				continue
			}
			stat.Hits++
			if !seen[h.AccountID] {
				seen[h.AccountID] = true
				stat.Accounts++
			}
			if reg.Register(h.Sighting()) {
				stat.NewAccounts++
			}
		}
		report.Keywords = append(report.Keywords, stat)
		logger.Debug("keyword searched", "keyword", kw, "hits", stat.Hits, "new_accounts", stat.NewAccounts)
	}
	return nil
}

// enrich fetches the reach statistics of every registered account.
func (p *Pipeline) enrich(ctx context.Context, logger *slog.Logger, reg *registry.Registry) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.enrich", trace.WithAttributes(
		attribute.Int("accounts", reg.Len()),
	))
	defer span.End()

	for _, id := range reg.IDs() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		stats, err := p.provider.AccountStats(ctx, id)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("pipeline: %w", cerr)
			}
			logger.Warn("account stats failed", "account_id", id, "err", err)
			stats = model.AccountStats{}
		}
		reg.Enrich(id, stats)
	}
	return nil
}

// analyzeAccount fetches the recent items of acc, joins their statistics
// and computes the engagement analytics. Items without statistics are
// dropped.
func (p *Pipeline) analyzeAccount(ctx context.Context, logger *slog.Logger, acc model.AccountRecord, kws []string) (model.AccountReport, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.analyze_account", trace.WithAttributes(
		attribute.String("account.id", acc.AccountID),
	))
	defer span.End()

	logger = logger.With("account_id", acc.AccountID)
	empty, _ := analyzer.Analyze(nil)

	if err := ctx.Err(); err != nil {
		return model.AccountReport{}, fmt.Errorf("pipeline: %w", err)
	}
	hits, err := p.provider.Search(ctx, serp.Query{AccountID: acc.AccountID, Mode: serp.ModeItem, Limit: p.opts.ItemsPerAccount})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return model.AccountReport{}, fmt.Errorf("pipeline: %w", cerr)
		}
		logger.Warn("recent items search failed", "err", err)
		hits = nil
	}
	if len(hits) == 0 {
		logger.Info("no recent items found")
		return model.AccountReport{Status: model.StatusNoItems, Items: []model.AnalyzedItem{}, Summary: empty}, nil
	}

	items := make([]model.AnalyzedItem, 0, len(hits))
	for _, h := range hits {
		if h.ItemID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return model.AccountReport{}, fmt.Errorf("pipeline: %w", err)
		}
		stats, ok, err := p.provider.ItemStats(ctx, h.ItemID)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return model.AccountReport{}, fmt.Errorf("pipeline: %w", cerr)
			}
			logger.Warn("item stats failed", "item_id", h.ItemID, "err", err)
			continue
		}
		if !ok {
			logger.Debug("item has no stats, dropped", "item_id", h.ItemID)
			continue
		}
		items = append(items, model.Join(h.Item(), stats))
	}
	if len(items) == 0 {
		logger.Info("could not fetch item stats")
		return model.AccountReport{Status: model.StatusNoItemStats, Items: []model.AnalyzedItem{}, Summary: empty}, nil
	}

	summary, analyzed := analyzer.Analyze(items)
	span.SetAttributes(
		attribute.Int("items", summary.ItemCount),
		attribute.Int("outliers", summary.OutlierCount),
	)
	return model.AccountReport{
		Status:         model.StatusOK,
		Items:          analyzed,
		Summary:        summary,
		KeywordMatches: analyzer.MatchKeywords(analyzed, kws),
	}, nil
}

// cleanKeywords trims keywords and drops blanks, keeping order.
func cleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
