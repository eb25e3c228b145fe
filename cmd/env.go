package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/violation-cli/internal/acquire"
	"github.com/sells-group/violation-cli/internal/browser"
	"github.com/sells-group/violation-cli/internal/captcha"
	"github.com/sells-group/violation-cli/internal/fetcher"
	"github.com/sells-group/violation-cli/internal/monitoring"
	"github.com/sells-group/violation-cli/internal/resilience"
	"github.com/sells-group/violation-cli/internal/scrape"
	"github.com/sells-group/violation-cli/internal/store"
	"github.com/sells-group/violation-cli/internal/structured"
	"github.com/sells-group/violation-cli/pkg/opendata"
	"github.com/sells-group/violation-cli/pkg/twocaptcha"
)

// lookupEnv holds everything the lookup and serve commands share.
type lookupEnv struct {
	Store        store.RecordStore
	Orchestrator *acquire.Orchestrator
	Solver       *captcha.Solver // nil without an API key
	Breakers     *resilience.ServiceBreakers
	Metrics      *monitoring.Metrics
	Registry     *prometheus.Registry

	redis *redis.Client
}

// Close releases resources held by the environment.
func (e *lookupEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.RecordStore, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newSolver() *captcha.Solver {
	if cfg.Captcha.Key == "" {
		return nil
	}
	client := twocaptcha.NewClient(cfg.Captcha.Key,
		twocaptcha.WithBaseURL(cfg.Captcha.BaseURL),
		twocaptcha.WithJSONMode(cfg.Captcha.JSONMode),
	)
	poll := time.Duration(cfg.Captcha.PollIntervalSecs) * time.Second
	return captcha.NewSolver(client, captcha.Config{
		WidgetPollInterval: poll,
		ImagePollInterval:  2 * poll,
		WidgetTimeout:      cfg.Captcha.CaptchaTimeout(),
		ImageTimeout:       cfg.Captcha.CaptchaTimeout(),
	})
}

// initLookup wires the structured source, the optional browser path,
// artifact downloads and the record store into an Orchestrator. Callers
// should defer env.Close().
func initLookup(ctx context.Context, useBrowser bool) (*lookupEnv, error) {
	if err := cfg.Validate("lookup"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &lookupEnv{Store: st}

	env.Registry = prometheus.NewRegistry()
	env.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env.Metrics = monitoring.NewMetrics(env.Registry)

	retryCfg := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	env.Breakers = resilience.NewServiceBreakers(
		resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs),
	)

	odOpts := []opendata.Option{
		opendata.WithBaseURL(cfg.OpenData.BaseURL),
		opendata.WithDataset(cfg.OpenData.Dataset),
		opendata.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.OpenData.TimeoutSecs) * time.Second}),
	}
	if cfg.OpenData.AppToken != "" {
		odOpts = append(odOpts, opendata.WithAppToken(cfg.OpenData.AppToken))
	}
	var source structured.Source = structured.NewOpenData(
		opendata.NewClient(odOpts...),
		retryCfg,
		env.Breakers.Get(structured.ServiceName),
	)

	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zap.L().Warn("redis unreachable, structured cache disabled",
				zap.String("addr", cfg.Cache.RedisAddr),
				zap.Error(err),
			)
			_ = rdb.Close()
		} else {
			env.redis = rdb
			source = structured.NewCache(source, rdb, cfg.Cache.CacheTTL())
		}
	}

	profile, err := scrape.LoadProfile(cfg.Browser.Profile)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Solver = newSolver()

	opts := []acquire.Option{
		acquire.WithRecordStore(st),
		acquire.WithMetrics(env.Metrics),
	}

	if useBrowser && cfg.Browser.Enabled {
		launcher := browser.NewLauncher(browser.Config{
			Headless:       cfg.Browser.Headless,
			ExecutablePath: cfg.Browser.ExecutablePath,
			Proxies:        cfg.Browser.Proxies,
			UserAgent:      profile.Browser.UserAgent,
			Headers:        profile.Browser.Headers,
			ViewportWidth:  profile.Browser.Viewport.Width,
			ViewportHeight: profile.Browser.Viewport.Height,
		})
		var solver scrape.Solver
		if env.Solver != nil {
			solver = env.Solver
		} else {
			zap.L().Info("captcha.key not set, challenges will abort the browser path")
		}
		opts = append(opts, acquire.WithBrowser(launcher, scrape.NewInteractor(profile, solver)))
	}

	if cfg.Artifacts.MaxPerRequest > 0 {
		artifacts, err := store.NewFileArtifactStore(cfg.Artifacts.Dir)
		if err != nil {
			env.Close()
			return nil, err
		}
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: profile.Browser.UserAgent,
			Timeout:   time.Duration(cfg.Artifacts.TimeoutSecs) * time.Second,
			MaxBytes:  cfg.Artifacts.MaxBytes,
			Retry:     retryCfg,
		})
		opts = append(opts, acquire.WithArtifacts(f, artifacts))
	}

	env.Orchestrator = acquire.New(source, acquire.Config{
		MaxArtifacts:        cfg.Artifacts.MaxPerRequest,
		ArtifactConcurrency: cfg.Artifacts.Concurrency,
		BrowserTimeout:      cfg.Browser.Timeout(),
	}, opts...)

	return env, nil
}
