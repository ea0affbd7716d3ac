package pipeline

import (
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/scanforge/scanforge/pkg/config"
	"github.com/scanforge/scanforge/pkg/enrich"
	"github.com/scanforge/scanforge/pkg/epss"
	"github.com/scanforge/scanforge/pkg/falsepositive"
	"github.com/scanforge/scanforge/pkg/feedcache"
	"github.com/scanforge/scanforge/pkg/httpclient"
	"github.com/scanforge/scanforge/pkg/kev"
	"github.com/scanforge/scanforge/pkg/metrics"
	"github.com/scanforge/scanforge/pkg/reachability"
	"github.com/scanforge/scanforge/pkg/retry"
)

// Enrichers builds the configured enrichers in their fixed order: kev,
// epss, reachability, false_positive. Reachability needs a source tree
// and is left out when root is empty.
func Enrichers(cfg config.Config, root string, logger *slog.Logger, rec *metrics.Recorder) ([]enrich.Enricher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := cfg.Enrich

	client, err := httpclient.New(cfg.HTTP.Client())
	if err != nil {
		return nil, fmt.Errorf("%w: http: %w", config.ErrInvalidConfig, err)
	}
	if e.Offline {
		client = httpclient.Offline()
		logger.Info("offline mode: feeds served from cache only", slog.String("cache_dir", cfg.CacheDir()))
	}
	cacheOpts := func(name string) feedcache.Options {
		return feedcache.Options{
			Name:       name,
			TTL:        e.FeedTTL.Std(),
			StaleGrace: e.StaleGrace.Std(),
			Dir:        cfg.CacheDir(),
			Logger:     logger,
			Metrics:    rec,
		}
	}

	var out []enrich.Enricher
	if e.KEV.Enabled {
		out = append(out, kev.New(kev.Options{
			URL:    e.KEV.URL,
			Client: client,
			Retry:  retry.FeedConfig(),
			Cache:  feedcache.New[kev.Catalog](cacheOpts(kev.Name)),
			Logger: logger,
		}))
	}
	if e.EPSS.Enabled {
		out = append(out, epss.New(epss.Options{
			URL:       e.EPSS.URL,
			BatchSize: e.EPSS.BatchSize,
			Limiter:   rate.NewLimiter(rate.Limit(e.EPSS.RequestsPerSecond), 1),
			Client:    client,
			Retry:     retry.FeedConfig(),
			Cache:     feedcache.New[*epss.Score](cacheOpts(epss.Name)),
			Logger:    logger,
		}))
	}
	if e.Reachability.Enabled && root != "" {
		out = append(out, reachability.New(reachability.Options{
			Root:        root,
			Concurrency: e.Reachability.Concurrency,
			Logger:      logger,
		}))
	}
	if e.FalsePositive.Enabled {
		d, err := falsepositive.NewDetector(falsepositive.Options{
			UserFile: e.FalsePositive.RulesFile,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: enrich.false_positive: %w", config.ErrInvalidConfig, err)
		}
		out = append(out, d)
	}
	return out, nil
}
