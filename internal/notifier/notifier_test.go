package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
)

type fakeProducer struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeProducer) ProduceMessage(_ context.Context, topic string, _, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, value)
	return nil
}

func triggeringEvent() *models.SecurityEvent {
	return &models.SecurityEvent{
		ID:        uuid.New(),
		UserID:    "user-1",
		UserEmail: "bob@example.com",
		IPAddress: "203.0.113.5",
		EventType: models.EventLoginFailed,
	}
}

func TestBroadcastRetainsAndPublishes(t *testing.T) {
	producer := &fakeProducer{}
	n := NewNotifier(NewHub(zap.NewNop()), producer, "security.alerts", zap.NewNop())
	event := triggeringEvent()

	finding := models.Finding{
		Type:        models.AnomalyExcessiveLoginFailures,
		Severity:    models.SeverityHigh,
		Description: "5 failed login attempts",
		Suggestion:  "verify the account owner",
		AutoFix:     models.FixTemporaryBlock,
	}
	n.Broadcast(context.Background(), finding, event)

	alerts := n.RecentAlerts(10)
	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, "Excessive Login Failures", alert.Title)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, event.ID, alert.LogID)
	assert.Equal(t, "bob@example.com", alert.UserEmail)
	assert.Equal(t, "203.0.113.5", alert.IPAddress)

	require.Len(t, producer.topics, 1)
	assert.Equal(t, "security.alerts", producer.topics[0])

	var published models.Alert
	require.NoError(t, json.Unmarshal(producer.payloads[0], &published))
	assert.Equal(t, alert.ID, published.ID)
}

func TestBroadcastUnknownTypeGetsFallbackTitle(t *testing.T) {
	n := NewNotifier(NewHub(zap.NewNop()), nil, "", zap.NewNop())

	n.Broadcast(context.Background(), models.Finding{
		Type:     models.AnomalyType("made_up"),
		Severity: models.SeverityLow,
	}, triggeringEvent())

	alerts := n.RecentAlerts(1)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Security Alert", alerts[0].Title)
}

func TestBroadcastSurvivesBusFailure(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	n := NewNotifier(NewHub(zap.NewNop()), producer, "security.alerts", zap.NewNop())

	n.Broadcast(context.Background(), models.Finding{
		Type:     models.AnomalySQLInjectionAttempt,
		Severity: models.SeverityCritical,
	}, triggeringEvent())

	// The alert is still retained locally even though the bus publish failed.
	assert.Equal(t, 1, n.RetainedAlertCount())
}
