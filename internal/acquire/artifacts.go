package acquire

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/violation-cli/internal/model"
)

// downloadArtifacts fetches up to MaxArtifacts summons documents with a
// bounded worker pool. Failures are recorded per item and never returned.
func (o *Orchestrator) downloadArtifacts(ctx context.Context, log *zap.Logger, res *model.AcquisitionResult) {
	if o.fetcher == nil || o.artifacts == nil || o.cfg.MaxArtifacts <= 0 {
		return
	}

	var targets []int
	withURL := 0
	for i := range res.Violations {
		if res.Violations[i].ArtifactURL == "" {
			continue
		}
		withURL++
		if len(targets) < o.cfg.MaxArtifacts {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return
	}
	if withURL > len(targets) {
		log.Info("acquire: artifact cap reached",
			zap.Int("available", withURL),
			zap.Int("cap", o.cfg.MaxArtifacts),
		)
	}

	outcomes := make([]model.ArtifactOutcome, len(targets))
	var g errgroup.Group
	g.SetLimit(o.cfg.ArtifactConcurrency)
	for n, i := range targets {
		key, url := res.Violations[i].IdentityKey, res.Violations[i].ArtifactURL
		g.Go(func() error {
			outcomes[n] = o.downloadOne(ctx, key, url)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for n, i := range targets {
		if outcomes[n].Success {
			res.Violations[i].LocalArtifactPath = outcomes[n].LocalPath
		} else {
			failed++
		}
	}
	res.Artifacts = outcomes
	if failed > 0 {
		res.Warn(fmt.Sprintf("%d of %d artifact downloads failed", failed, len(targets)))
	}
}

func (o *Orchestrator) downloadOne(ctx context.Context, key, url string) model.ArtifactOutcome {
	out := model.ArtifactOutcome{IdentityKey: key, URL: url}

	data, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		out.Error = err.Error()
		zap.L().Debug("acquire: artifact download failed", zap.String("identity_key", key), zap.Error(err))
		return out
	}
	path, err := o.artifacts.PutArtifact(ctx, key, data)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.LocalPath = path
	out.Size = int64(len(data))
	out.Success = true
	return out
}
