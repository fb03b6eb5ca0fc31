package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
)

func TestSendPostsJSON(t *testing.T) {
	var got webhookMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, 5*time.Second, zap.NewNop())
	err := notifier.Send(context.Background(), port.Notification{
		Recipient: "ap-team@example.com",
		Subject:   "Invoice INV-001 posted",
		Body:      "posted as TXN-1",
		Kind:      "completion",
	})
	require.NoError(t, err)
	assert.Equal(t, "ap-team@example.com", got.Recipient)
	assert.Equal(t, "completion", got.Kind)
	assert.NotEmpty(t, got.SentAt)
}

func TestSendNoURLConfigured(t *testing.T) {
	notifier := NewWebhookNotifier("", time.Second, zap.NewNop())
	err := notifier.Send(context.Background(), port.Notification{Recipient: "x"})
	assert.NoError(t, err)
}

func TestSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, time.Second, zap.NewNop())
	err := notifier.Send(context.Background(), port.Notification{Recipient: "x"})
	assert.Error(t, err)
}
