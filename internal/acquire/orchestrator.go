// Package acquire coordinates one plate lookup: the structured source first,
// browser enhancement or fallback when needed, reconciliation, artifact
// downloads and persistence.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/violation-cli/internal/browser"
	"github.com/sells-group/violation-cli/internal/extract"
	"github.com/sells-group/violation-cli/internal/fetcher"
	"github.com/sells-group/violation-cli/internal/model"
	"github.com/sells-group/violation-cli/internal/monitoring"
	"github.com/sells-group/violation-cli/internal/reconcile"
	"github.com/sells-group/violation-cli/internal/scrape"
	"github.com/sells-group/violation-cli/internal/store"
	"github.com/sells-group/violation-cli/internal/structured"
)

// DefaultState is assumed when a lookup names no state.
const DefaultState = "NY"

var (
	// ErrSourceUnavailable wraps a structured-source failure. It surfaces only
	// when the browser fallback also fails.
	ErrSourceUnavailable = eris.New("acquire: structured source unavailable")

	errBrowserDisabled = eris.New("acquire: browser path not configured")
)

// SessionOpener provisions one browser session per call.
type SessionOpener interface {
	Open(ctx context.Context) (browser.Session, error)
}

// Searcher drives the search form on an exclusively owned page.
type Searcher interface {
	Search(ctx context.Context, page browser.Page, plate, state string) (*scrape.RawResultPage, error)
}

// Config bounds the work of one lookup.
type Config struct {
	MaxArtifacts        int
	ArtifactConcurrency int
	// BrowserTimeout bounds the whole browser path. Zero means no bound
	// beyond the caller's context.
	BrowserTimeout time.Duration
	SaveTimeout    time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBrowser enables the browser path.
func WithBrowser(opener SessionOpener, searcher Searcher) Option {
	return func(o *Orchestrator) {
		o.opener = opener
		o.searcher = searcher
	}
}

// WithArtifacts enables artifact downloads into s.
func WithArtifacts(f fetcher.Fetcher, s store.ArtifactStore) Option {
	return func(o *Orchestrator) {
		o.fetcher = f
		o.artifacts = s
	}
}

// WithRecordStore saves every finished result to rs.
func WithRecordStore(rs store.RecordStore) Option {
	return func(o *Orchestrator) {
		o.records = rs
	}
}

// WithMetrics records results in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator runs plate lookups. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	source    structured.Source
	opener    SessionOpener
	searcher  Searcher
	fetcher   fetcher.Fetcher
	artifacts store.ArtifactStore
	records   store.RecordStore
	metrics   *monitoring.Metrics
	cfg       Config

	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator over source.
func New(source structured.Source, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ArtifactConcurrency <= 0 {
		cfg.ArtifactConcurrency = 3
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	o := &Orchestrator{
		source: source,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Acquire looks up plate in state. The result is always non-nil. The error
// is non-nil only when no acquisition path produced data, in which case it
// wraps ErrSourceUnavailable and result.Error carries its message.
func (o *Orchestrator) Acquire(ctx context.Context, plate, state string) (*model.AcquisitionResult, error) {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	state = strings.ToUpper(strings.TrimSpace(state))
	if state == "" {
		state = DefaultState
	}

	res := &model.AcquisitionResult{
		ID:         o.newID(),
		Plate:      plate,
		State:      state,
		Violations: []model.Violation{},
		Sources:    []model.SourceTag{},
		StartedAt:  o.now().UTC(),
	}
	log := zap.L().With(
		zap.String("acquisition_id", res.ID),
		zap.String("plate", plate),
		zap.String("state", state),
	)

	if plate == "" {
		err := eris.New("acquire: plate is required")
		res.Error = err.Error()
		o.finish(ctx, log, res)
		return res, err
	}

	err := o.run(ctx, log, res)
	if err != nil {
		res.Error = err.Error()
	}
	o.finish(ctx, log, res)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, res *model.AcquisitionResult) error {
	base, serr := o.source.Fetch(ctx, res.Plate, res.State)

	var scraped []model.Violation
	if serr != nil {
		o.metrics.PathFailed("structured")
		serr = fmt.Errorf("%w: %w", ErrSourceUnavailable, serr)
		log.Warn("acquire: structured source failed, falling back to browser", zap.Error(serr))

		page, berr := o.browse(ctx, log, res)
		if berr != nil {
			if !errors.Is(berr, errBrowserDisabled) {
				o.metrics.PathFailed("browser")
			}
			res.Warn("browser fallback failed: " + berr.Error())
			return serr
		}
		scraped = extract.Extract(page.HTML)
		// An empty page only proves a clean record when the site says so.
		if len(scraped) == 0 && !page.NoViolations {
			o.metrics.PathFailed("browser")
			res.Warn("browser fallback found no violations and no no-violations message")
			return serr
		}
		res.AddSource(model.SourceScraped)
		base = nil
	} else {
		res.AddSource(model.SourceStructured)
		missing := 0
		for i := range base {
			if base[i].MissingEnhancementData() {
				missing++
			}
		}
		log.Info("acquire: structured source returned",
			zap.Int("violations", len(base)),
			zap.Int("missing_data", missing),
		)

		if missing > 0 && o.opener != nil {
			page, berr := o.browse(ctx, log, res)
			if berr != nil {
				o.metrics.PathFailed("browser")
				log.Warn("acquire: enhancement failed, keeping structured data", zap.Error(berr))
				res.Warn("enhancement failed: " + berr.Error())
			} else {
				scraped = extract.Extract(page.HTML)
				if len(scraped) > 0 {
					res.AddSource(model.SourceScraped)
				}
			}
		}
	}

	res.Violations, res.Completeness = reconcile.Merge(base, scraped)
	if res.Violations == nil {
		res.Violations = []model.Violation{}
	}
	o.downloadArtifacts(ctx, log, res)
	return nil
}

// browse provisions a session, runs the search and releases the session on
// every exit path, including cancellation.
func (o *Orchestrator) browse(ctx context.Context, log *zap.Logger, res *model.AcquisitionResult) (*scrape.RawResultPage, error) {
	if o.opener == nil || o.searcher == nil {
		return nil, errBrowserDisabled
	}
	if o.cfg.BrowserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.BrowserTimeout)
		defer cancel()
	}

	session, err := o.opener.Open(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "acquire: open browser session")
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Debug("acquire: close browser session", zap.Error(cerr))
		}
	}()
	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	defer stop()

	page, err := o.searcher.Search(ctx, session.Page(), res.Plate, res.State)
	if err != nil {
		var abort *scrape.AbortError
		if errors.As(err, &abort) {
			debug := abort.Debug
			res.Debug = &debug
		}
		return nil, eris.Wrap(err, "acquire: browser search")
	}

	debug := page.Debug
	res.Debug = &debug
	if page.Debug.TimedOut {
		res.Warn("result page did not stabilize before the timeout")
	}
	if page.Blocked != scrape.BlockNone && !page.NoViolations {
		res.Warn(fmt.Sprintf("result page looks blocked (%s)", page.Blocked))
	}
	return page, nil
}

func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, res *model.AcquisitionResult) {
	res.Summary = model.Summarize(res.Violations)
	res.Elapsed = o.now().UTC().Sub(res.StartedAt)
	o.metrics.ObserveResult(res)

	if o.records != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SaveTimeout)
		defer cancel()
		if err := o.records.SaveResult(sctx, res); err != nil {
			log.Warn("acquire: failed to save result", zap.Error(err))
		}
	}

	log.Info("acquire: complete",
		zap.Int("violations", len(res.Violations)),
		zap.Any("sources", res.Sources),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", res.Elapsed),
		zap.Bool("failed", res.Error != ""),
	)
}
