package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/config"
)

// CircuitSource reports which upstream circuits are open.
type CircuitSource interface {
	OpenCircuits() []string
}

// Sweeper drops expired entries from a store.
type Sweeper interface {
	CleanupExpired() int
}

// Checker runs periodic alert checks and expiry sweeps in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	circuits  CircuitSource
	sweepers  []Sweeper
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker. circuits may be nil.
func NewChecker(collector *Collector, alerter *Alerter, circuits CircuitSource, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		circuits:  circuits,
		cfg:       cfg,
	}
}

// AddSweepers registers stores swept on every tick. Call before Run.
func (c *Checker) AddSweepers(s ...Sweeper) {
	c.sweepers = append(c.sweepers, s...)
}

// Sweep drops expired entries from every registered store and returns the
// total removed.
func (c *Checker) Sweep() int {
	removed := 0
	for _, s := range c.sweepers {
		removed += s.CleanupExpired()
	}
	if removed > 0 {
		zap.L().Debug("monitoring: expired cache entries swept", zap.Int("removed", removed))
	}
	return removed
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Sweep()
			c.Check(ctx)
		}
	}
}

// Alerts evaluates the current metrics without sending anything.
func (c *Checker) Alerts() []Alert {
	var open []string
	if c.circuits != nil {
		open = c.circuits.OpenCircuits()
	}
	return c.alerter.Evaluate(c.collector.Collect(), open)
}

// Check evaluates the current metrics and sends any alerts. It returns the
// alerts that fired.
func (c *Checker) Check(ctx context.Context) []Alert {
	alerts := c.Alerts()
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: no alerts triggered")
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
