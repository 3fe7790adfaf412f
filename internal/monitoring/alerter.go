package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/shapelet-cli/internal/config"
	"github.com/sells-group/shapelet-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRecordErrorRate AlertType = "record_error_rate"
	AlertRunFailure      AlertType = "ingest_run_failure"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// webhookBurst is how many alerts may be posted back to back before the
// configured rate applies.
const webhookBurst = 3

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	clock   clockwork.Clock
	retry   resilience.Policy
	limiter *rate.Limiter
}

// NewAlerter creates a new Alerter with the given monitoring config. A nil
// clock uses real time.
func NewAlerter(cfg config.MonitoringConfig, clock clockwork.Clock) *Alerter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	retry := resilience.DefaultPolicy("monitoring.webhook")
	if cfg.WebhookAttempts > 0 {
		retry.Attempts = cfg.WebhookAttempts
	}
	limit := rate.Limit(cfg.WebhookRatePerSec)
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		clock:   clock,
		retry:   retry,
		limiter: rate.NewLimiter(limit, webhookBurst),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := a.clock.Now().UTC()

	// A zero threshold disables the error-rate check.
	if a.cfg.ErrorRateThreshold > 0 && snap.ErrorRate > a.cfg.ErrorRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRecordErrorRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Record error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d rows in last %dh)",
				snap.ErrorRate*100, a.cfg.ErrorRateThreshold*100,
				snap.ErrorsTotal, snap.RowsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"error_rate": snap.ErrorRate,
				"threshold":  a.cfg.ErrorRateThreshold,
				"errors":     snap.ErrorsTotal,
				"rows":       snap.RowsTotal,
				"files":      snap.FilesTotal,
			},
			Timestamp: now,
		})
	}

	if snap.RunsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d ingest run(s) failed in last %dh",
				snap.RunsFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_count": snap.RunsFailed,
				"total_runs":   snap.RunsTotal,
				"run_ids":      snap.FailedRunIDs,
			},
			Timestamp: now,
		})
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
		if err := a.limiter.Wait(ctx); err != nil {
			zap.L().Warn("monitoring: alert delivery interrupted", zap.Error(err))
			break
		}
		err := a.retry.Do(ctx, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
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

	return resilience.StatusError(resp.StatusCode, "monitoring: webhook")
}
