package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/answer-router/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLatency     AlertType = "latency_p95"
	AlertErrorRate   AlertType = "error_rate"
	AlertCircuitOpen AlertType = "circuit_open"
)

// minSamplesForErrorRate keeps a single early failure from alerting.
const minSamplesForErrorRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Operation string         `json:"operation,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot and the currently open circuits against
// thresholds and returns any alerts, ordered by operation name.
func (a *Alerter) Evaluate(snap *MetricsSnapshot, openCircuits []string) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	ops := slices.Sorted(maps.Keys(snap.Operations))
	for _, op := range ops {
		st := snap.Operations[op]

		if limit := a.cfg.LatencyP95ThresholdMs; limit > 0 && st.P95Ms > limit {
			severity := "warning"
			if st.P95Ms > 2*limit {
				severity = "critical"
			}
			alerts = append(alerts, Alert{
				Type:      AlertLatency,
				Severity:  severity,
				Operation: op,
				Message:   fmt.Sprintf("%s p95 latency (%.0fms) exceeds threshold (%.0fms)", op, st.P95Ms, limit),
				Details: map[string]any{
					"p95_ms":       st.P95Ms,
					"threshold_ms": limit,
					"count":        st.Count,
				},
				Timestamp: now,
			})
		}

		if limit := a.cfg.ErrorRateThreshold; limit > 0 && st.Count >= minSamplesForErrorRate && st.ErrorRate > limit {
			alerts = append(alerts, Alert{
				Type:      AlertErrorRate,
				Severity:  "high",
				Operation: op,
				Message: fmt.Sprintf("%s error rate %.1f%% exceeds threshold %.1f%% (%d failed / %d calls)",
					op, st.ErrorRate*100, limit*100, st.Errors, st.Count),
				Details: map[string]any{
					"error_rate": st.ErrorRate,
					"threshold":  limit,
					"errors":     st.Errors,
					"count":      st.Count,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.OpenCircuitAlert {
		for _, name := range openCircuits {
			alerts = append(alerts, Alert{
				Type:      AlertCircuitOpen,
				Severity:  "high",
				Operation: name,
				Message:   fmt.Sprintf("circuit breaker for %s is open", name),
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
