// Package captcha turns a detected challenge into a response token by
// submitting it to the solving service and polling until it is solved.
package captcha

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/violation-cli/internal/model"
	"github.com/sells-group/violation-cli/pkg/twocaptcha"
)

var (
	// ErrSubmissionRejected means the service did not accept the challenge.
	ErrSubmissionRejected = eris.New("captcha: submission rejected")
	// ErrSolveRejected means the service reported a terminal error for the job.
	ErrSolveRejected = eris.New("captcha: solve rejected")
	// ErrSolveTimeout means no outcome arrived before the deadline.
	ErrSolveTimeout = eris.New("captcha: solve timed out")
)

// Config holds poll cadence and deadlines per challenge kind.
type Config struct {
	WidgetPollInterval time.Duration
	ImagePollInterval  time.Duration
	WidgetTimeout      time.Duration
	ImageTimeout       time.Duration
}

// DefaultConfig returns the service's recommended cadence.
func DefaultConfig() Config {
	return Config{
		WidgetPollInterval: 5 * time.Second,
		ImagePollInterval:  10 * time.Second,
		WidgetTimeout:      5 * time.Minute,
		ImageTimeout:       3 * time.Minute,
	}
}

// Solver resolves challenges through a twocaptcha.Client.
type Solver struct {
	client twocaptcha.Client
	cfg    Config
}

// NewSolver creates a Solver. Zero durations in cfg fall back to defaults.
func NewSolver(client twocaptcha.Client, cfg Config) *Solver {
	def := DefaultConfig()
	if cfg.WidgetPollInterval <= 0 {
		cfg.WidgetPollInterval = def.WidgetPollInterval
	}
	if cfg.ImagePollInterval <= 0 {
		cfg.ImagePollInterval = def.ImagePollInterval
	}
	if cfg.WidgetTimeout <= 0 {
		cfg.WidgetTimeout = def.WidgetTimeout
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = def.ImageTimeout
	}
	return &Solver{client: client, cfg: cfg}
}

// Solve submits ch and polls for its token. A zero deadline uses the
// configured timeout for the challenge kind. Solving is all-or-nothing:
// either a token is returned or one of the package errors wraps the cause.
// Cancelling ctx returns its error rather than ErrSolveTimeout.
func (s *Solver) Solve(ctx context.Context, ch model.CaptchaChallenge, deadline time.Duration) (*model.CaptchaSolution, error) {
	req, interval, timeout := s.plan(ch)
	if deadline > 0 {
		timeout = deadline
	}
	log := zap.L().With(zap.String("kind", string(ch.Kind)))

	id, err := s.client.Submit(ctx, req)
	if err != nil {
		var se *twocaptcha.ServiceError
		if errors.As(err, &se) {
			return nil, eris.Wrapf(ErrSubmissionRejected, "captcha: submit: %s", se.Code)
		}
		return nil, eris.Wrap(err, "captcha: submit")
	}
	log = log.With(zap.String("job_id", id))
	log.Info("captcha: submitted", zap.Duration("deadline", timeout))

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				log.Info("captcha: cancelled", zap.Int("polls", polls))
				return nil, eris.Wrapf(err, "captcha: job %s cancelled after %d polls", id, polls)
			}
			log.Warn("captcha: no solution before deadline", zap.Int("polls", polls))
			return nil, eris.Wrapf(ErrSolveTimeout, "captcha: job %s after %d polls", id, polls)
		case <-time.After(interval):
		}

		polls++
		res, err := s.client.Result(ctx, id)
		if err != nil {
			var se *twocaptcha.ServiceError
			if errors.As(err, &se) {
				return nil, eris.Wrapf(ErrSolveRejected, "captcha: job %s: %s", id, se.Code)
			}
			log.Debug("captcha: poll failed", zap.Int("poll", polls), zap.Error(err))
			continue
		}
		if !res.Ready {
			continue
		}

		log.Info("captcha: solved", zap.Int("polls", polls))
		return &model.CaptchaSolution{Token: res.Token, JobID: id, SolvedAt: time.Now()}, nil
	}
}

// Balance returns the remaining account balance.
func (s *Solver) Balance(ctx context.Context) (float64, error) {
	bal, err := s.client.Balance(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "captcha: balance")
	}
	return bal, nil
}

func (s *Solver) plan(ch model.CaptchaChallenge) (twocaptcha.SubmitRequest, time.Duration, time.Duration) {
	if ch.Kind == model.ChallengeImage {
		return twocaptcha.SubmitRequest{Method: twocaptcha.MethodBase64, Image: ch.Image},
			s.cfg.ImagePollInterval, s.cfg.ImageTimeout
	}
	return twocaptcha.SubmitRequest{
		Method:    twocaptcha.MethodReCaptcha,
		GoogleKey: ch.SiteKey,
		PageURL:   ch.PageURL,
	}, s.cfg.WidgetPollInterval, s.cfg.WidgetTimeout
}
