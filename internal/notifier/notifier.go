package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

const alertRetention = 1000

// alertTitles maps anomaly types to the dashboard-facing alert title.
var alertTitles = map[models.AnomalyType]string{
	models.AnomalyExcessiveLoginFailures:  "Excessive Login Failures",
	models.AnomalyAPIRateLimitExceeded:    "API Rate Limit Exceeded",
	models.AnomalyExcessiveFailedRequests: "Excessive Failed Requests",
	models.AnomalyUnusualAccessTime:       "Unusual Access Time",
	models.AnomalySuspiciousEndpoint:      "Suspicious Endpoint Access",
	models.AnomalySQLInjectionAttempt:     "SQL Injection Attempt",
	models.AnomalyXSSAttempt:              "XSS Attempt",
}

// AlertProducer streams alert payloads onto the platform bus. Optional;
// the bus-less development setup runs without it.
type AlertProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte) error
}

// Notifier fans out one alert per finding: to every connected admin
// session (individually and via the shared admins channel), to the
// dashboard channel with the full originating event, and best effort onto
// the platform bus. It also retains the most recent alerts in memory for
// fast dashboard backfill.
type Notifier struct {
	hub         *Hub
	ring        *AlertRing
	producer    AlertProducer // may be nil
	alertsTopic string
	logger      *zap.Logger
}

func NewNotifier(hub *Hub, producer AlertProducer, alertsTopic string, logger *zap.Logger) *Notifier {
	return &Notifier{
		hub:         hub,
		ring:        NewAlertRing(alertRetention),
		producer:    producer,
		alertsTopic: alertsTopic,
		logger:      logger,
	}
}

// dashboardPayload carries the alert plus the full originating event for
// live-updating dashboard tables.
type dashboardPayload struct {
	Alert *models.Alert         `json:"alert"`
	Event *models.SecurityEvent `json:"event"`
}

// Broadcast builds the alert for a finding and delivers it exactly once
// per trigger: ring buffer, admin sessions, dashboard channel, bus.
func (n *Notifier) Broadcast(ctx context.Context, finding models.Finding, event *models.SecurityEvent) {
	title, ok := alertTitles[finding.Type]
	if !ok {
		title = "Security Alert"
	}

	alert := &models.Alert{
		ID:         uuid.New(),
		Title:      title,
		Type:       finding.Type,
		Severity:   finding.Severity,
		Message:    finding.Description,
		Suggestion: finding.Suggestion,
		LogID:      event.ID,
		UserID:     event.UserID,
		UserEmail:  event.UserEmail,
		IPAddress:  event.IPAddress,
		Timestamp:  time.Now().UTC(),
	}

	n.ring.Append(alert)

	n.hub.Publish(ChannelAdmins, "security_alert", alert)
	n.hub.Publish(ChannelDashboard, "security_alert", dashboardPayload{
		Alert: alert,
		Event: event,
	})

	n.publishToBus(ctx, alert)

	n.logger.Info("Security alert broadcast",
		util.String("alert_id", alert.ID.String()),
		util.String("type", string(alert.Type)),
		util.String("severity", string(alert.Severity)),
		util.String("log_id", alert.LogID.String()),
	)
}

// RecentAlerts returns up to limit alerts, newest first.
func (n *Notifier) RecentAlerts(limit int) []*models.Alert {
	return n.ring.Recent(limit)
}

// RetainedAlertCount reports how many alerts the ring currently holds.
func (n *Notifier) RetainedAlertCount() int {
	return n.ring.Len()
}

func (n *Notifier) publishToBus(ctx context.Context, alert *models.Alert) {
	if n.producer == nil {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("Failed to encode alert for bus", util.ErrorField(err))
		return
	}

	// Bounded: a slow broker must not stall the detection pipeline.
	busCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := n.producer.ProduceMessage(busCtx, n.alertsTopic, []byte(alert.Type), payload); err != nil {
		n.logger.Warn("Failed to publish alert to bus",
			util.String("alert_id", alert.ID.String()),
			util.ErrorField(err))
	}
}
