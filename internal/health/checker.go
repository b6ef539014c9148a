package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const checkTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool, *jsonfile.Store and *scheduler.Scheduler.
type Pinger interface {
	Ping(ctx context.Context) error
}

type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type dependency struct {
	name   string
	pinger Pinger
}

// Checker reports readiness as the conjunction of its named dependencies.
type Checker struct {
	deps   []dependency
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker registers the health gauge on reg. Dependencies are added with Add.
func NewChecker(logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

// Add must be called before the checker serves requests.
func (c *Checker) Add(name string, p Pinger) *Checker {
	c.deps = append(c.deps, dependency{name: name, pinger: p})
	return c
}

func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency, each under its own timeout.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult, len(c.deps)),
	}

	for _, d := range c.deps {
		if err := c.ping(ctx, d.pinger); err != nil {
			c.logger.WarnContext(ctx, "health check failed", "dependency", d.name, "error", err)
			result.Status = "down"
			result.Checks[d.name] = CheckResult{Status: "down", Error: err.Error()}
			c.gauge.WithLabelValues(d.name).Set(0)
			continue
		}
		result.Checks[d.name] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues(d.name).Set(1)
	}

	return result
}

func (c *Checker) ping(ctx context.Context, p Pinger) error {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return p.Ping(checkCtx)
}
