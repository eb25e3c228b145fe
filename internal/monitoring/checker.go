package monitoring

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/violation-cli/internal/resilience"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BalanceSource reports the solving-service balance.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// BreakerSource snapshots circuit breaker states.
type BreakerSource interface {
	States() map[string]resilience.CircuitState
}

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status         string            `json:"status"`
	Store          string            `json:"store"`
	CaptchaBalance *float64          `json:"captcha_balance,omitempty"`
	CaptchaError   string            `json:"captcha_error,omitempty"`
	Breakers       map[string]string `json:"breakers,omitempty"`
	OpenBreakers   []string          `json:"open_breakers,omitempty"`
	CheckedAt      time.Time         `json:"checked_at"`
}

// Checker reports dependency health. Any field may be nil.
type Checker struct {
	store    Pinger
	solver   BalanceSource
	breakers BreakerSource
	metrics  *Metrics
	timeout  time.Duration
}

// NewChecker creates a health checker.
func NewChecker(store Pinger, solver BalanceSource, breakers BreakerSource, metrics *Metrics) *Checker {
	return &Checker{
		store:    store,
		solver:   solver,
		breakers: breakers,
		metrics:  metrics,
		timeout:  5 * time.Second,
	}
}

// Check pings every dependency. A failing store is down; a failing solver
// or an open breaker is degraded.
func (c *Checker) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rep := HealthReport{Status: StatusOK, Store: "unconfigured", CheckedAt: time.Now().UTC()}

	if c.store != nil {
		if err := c.store.Ping(ctx); err != nil {
			rep.Store = err.Error()
			rep.Status = StatusDown
		} else {
			rep.Store = StatusOK
		}
	}

	if c.solver != nil {
		bal, err := c.solver.Balance(ctx)
		if err != nil {
			rep.CaptchaError = err.Error()
			rep.degrade()
		} else {
			rep.CaptchaBalance = &bal
			if c.metrics != nil {
				c.metrics.CaptchaBalance.Set(bal)
			}
		}
	}

	if c.breakers != nil {
		states := c.breakers.States()
		rep.Breakers = make(map[string]string, len(states))
		for name, st := range states {
			rep.Breakers[name] = st.String()
			if st == resilience.CircuitOpen {
				rep.OpenBreakers = append(rep.OpenBreakers, name)
			}
		}
		sort.Strings(rep.OpenBreakers)
		if len(rep.OpenBreakers) > 0 {
			rep.degrade()
		}
	}
	return rep
}

func (r *HealthReport) degrade() {
	if r.Status == StatusOK {
		r.Status = StatusDegraded
	}
}

// Run checks health every interval and logs anything other than ok. It
// blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			rep := c.Check(ctx)
			if rep.Status != StatusOK {
				log.Warn("monitoring: unhealthy",
					zap.String("status", rep.Status),
					zap.String("store", rep.Store),
					zap.String("captcha_error", rep.CaptchaError),
					zap.Strings("open_breakers", rep.OpenBreakers),
				)
			}
		}
	}
}
