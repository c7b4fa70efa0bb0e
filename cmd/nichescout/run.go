package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/nichescout/internal/config"
	"github.com/FranksOps/nichescout/internal/export"
	"github.com/FranksOps/nichescout/internal/fingerprint"
	"github.com/FranksOps/nichescout/internal/metrics"
	"github.com/FranksOps/nichescout/internal/model"
	"github.com/FranksOps/nichescout/internal/observability"
	"github.com/FranksOps/nichescout/internal/pipeline"
	"github.com/FranksOps/nichescout/internal/report"
	"github.com/FranksOps/nichescout/internal/scraper"
	"github.com/FranksOps/nichescout/internal/serp"
	"github.com/FranksOps/nichescout/pkg/proxy"
	"github.com/FranksOps/nichescout/pkg/ratelimit"
	"github.com/FranksOps/nichescout/pkg/useragent"
	"github.com/spf13/cobra"
)

// emptyDiscoveryMsg is printed when no keyword produced a channel.
const emptyDiscoveryMsg = "No channels found. Try adjusting keywords or the per-keyword search cap."

// exitEmptyDiscovery is the exit code of a run that found no channel.
const exitEmptyDiscovery = 2

// consentCookie skips the EU consent interstitial on result pages.
const consentCookie = "CONSENT=YES+cb; SOCS=CAI"

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search the keywords, rank the channels found and analyze the top ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd)
		},
	}

	f := cmd.Flags()
	f.Int("per-keyword", pipeline.DefaultPerKeyword, "search hits per keyword (5..50)")
	f.Int("items", pipeline.DefaultItemsPerAccount, "recent videos analyzed per channel (5..20)")
	f.Int("top", pipeline.DefaultTopK, "channels that get the deep analysis")
	f.String("rank-by", pipeline.DefaultRankBy, "ranking key: subscribers, views, items")
	f.StringP("format", "f", string(report.FormatText), "report format: text, json, html")
	f.StringP("output", "o", "", "report file (default stdout)")
	f.Bool("html-fallback", false, "scrape result pages when no API key is set or the quota is spent")
	f.String("fingerprint", string(fingerprint.ProfileGo), "TLS fingerprint: go, chrome, firefox, safari, random")
	f.String("proxies", "", "file with one proxy URL per line")
	f.Float64("rps", 5, "provider requests per second (0 disables limiting)")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	f.Bool("tracing", false, "export OpenTelemetry spans over OTLP gRPC")
	a.bind(f, map[string]string{
		"search.per_keyword":       "per-keyword",
		"search.items_per_account": "items",
		"search.top_k":             "top",
		"search.rank_by":           "rank-by",
		"output.format":            "format",
		"output.file":              "output",
		"provider.html_fallback":   "html-fallback",
		"provider.fingerprint":     "fingerprint",
		"provider.proxies_file":    "proxies",
		"provider.rps":             "rps",
		"metrics.port":             "metrics-port",
		"tracing.enabled":          "tracing",
	})
	return cmd
}

func (a *app) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, logger := a.cfg, a.logger
	if err := cfg.ValidateProvider(); err != nil {
		return err
	}

	shutdown, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Version:  version,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("tracer shutdown failed", "err", err)
		}
	}()

	if cfg.Metrics.Port > 0 {
		srv, err := metrics.Start(cfg.Metrics.Port, logger)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(sctx)
		}()
	}

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	p := pipeline.New(provider, cfg.PipelineOptions(), logger)
	rep, err := p.Run(ctx, cfg.Keywords)
	if errors.Is(err, pipeline.ErrEmptyDiscovery) {
		fmt.Fprintln(cmd.ErrOrStderr(), emptyDiscoveryMsg)
		return &exitError{code: exitEmptyDiscovery, err: err}
	}
	if err != nil {
		return err
	}

	if err := writeReport(cfg, rep, cmd); err != nil {
		return err
	}
	return saveSnapshots(ctx, cfg, rep, logger)
}

// newProvider assembles the fetch stack and the YouTube adapter.
func newProvider(cfg *config.Config, logger *slog.Logger) (*serp.YouTube, error) {
	profile, err := fingerprint.ParseProfile(cfg.Provider.Fingerprint)
	if err != nil {
		return nil, err
	}

	fc := scraper.FetchConfig{
		Timeout:      cfg.Provider.Timeout,
		UseCookieJar: true,
		UAPool:       useragent.NewPool(cfg.Provider.UserAgents),
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(cfg.Provider.RPS, cfg.Provider.Burst, cfg.Provider.Jitter),
	}
	if cfg.Provider.HTMLFallback {
		fc.Headers = map[string]string{"Cookie": consentCookie}
	}
	if cfg.Provider.ProxiesFile != "" {
		pool := proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.Provider.ProxiesFile); err != nil {
			return nil, err
		}
		logger.Info("proxy rotation enabled", "proxies", pool.Len())
		fc.ProxyPool = pool
	}

	fetcher, err := scraper.NewFetcher(fc)
	if err != nil {
		return nil, err
	}
	return serp.NewYouTube(serp.YouTubeConfig{
		APIKey:        cfg.Provider.APIKey,
		APIBase:       cfg.Provider.APIBase,
		WebBase:       cfg.Provider.WebBase,
		HTMLFallback:  cfg.Provider.HTMLFallback,
		RespectRobots: cfg.Provider.RespectRobots,
	}, fetcher, logger)
}

func writeReport(cfg *config.Config, rep *model.Report, cmd *cobra.Command) error {
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	w, closeFn, err := openFileOrStdout(cfg.Output.File, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := report.Write(w, format, rep); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

func saveSnapshots(ctx context.Context, cfg *config.Config, rep *model.Report, logger *slog.Logger) error {
	backend, err := export.ParseBackend(cfg.Export.Backend)
	if err != nil || backend == export.None {
		return err
	}
	store, err := export.Open(ctx, backend, cfg.Export.Target)
	if err != nil {
		return fmt.Errorf("open %s export: %w", backend, err)
	}
	defer store.Close()

	if err := store.Save(ctx, rep); err != nil {
		return fmt.Errorf("save %s export: %w", backend, err)
	}
	logger.Info("snapshots exported", "backend", backend, "channels", len(rep.TopAccounts), "run_id", rep.RunID)
	return nil
}
