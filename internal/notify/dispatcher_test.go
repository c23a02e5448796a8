package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-serial/internal/bookings"
	"github.com/wolfman30/clinic-serial/internal/clinic"
)

type staticSettings struct {
	settings *clinic.Settings
	err      error
}

func (s staticSettings) Settings(ctx context.Context) (*clinic.Settings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.settings.Clone(), nil
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (r *recordingEmail) Send(ctx context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

type webhookCall struct {
	url     string
	payload any
	headers map[string]string
}

type recordingWebhook struct {
	mu    sync.Mutex
	calls []webhookCall
	err   error
}

func (r *recordingWebhook) Post(ctx context.Context, url string, payload any, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, webhookCall{url: url, payload: payload, headers: headers})
	return r.err
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingMetrics) ObserveNotification(channel string, sent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	result := "failed"
	if sent {
		result = "sent"
	}
	c.counts[channel+":"+result]++
}

func sampleBooking() bookings.Booking {
	return bookings.Booking{
		ID:              7,
		Name:            "Rahim <b>",
		Age:             "34",
		Mobile:          "01700000000",
		Clinic:          "Dr. Khan",
		ClinicTimeRange: "5 PM - 9 PM",
		SerialDate:      "2025-11-03",
		SerialNo:        3,
		IsOldPatient:    true,
	}
}

func TestDispatcher_SendsBothChannels(t *testing.T) {
	email := &recordingEmail{}
	webhook := &recordingWebhook{}
	metrics := &countingMetrics{}
	d := NewDispatcher(DispatcherConfig{
		Settings: staticSettings{settings: &clinic.Settings{
			EmailRecipient:      "admin@example.com",
			WhatsAppPhone:       "8801700",
			WhatsAppAPIEndpoint: "https://gateway.example.com/send",
			WhatsAppAPIToken:    "secret",
		}},
		Email:   email,
		Webhook: webhook,
		Metrics: metrics,
	})

	delivery := d.NotifyBooking(context.Background(), sampleBooking())
	assert.Equal(t, bookings.Delivery{SentEmail: true, SentWhatsApp: true}, delivery)

	require.Len(t, email.sent, 1)
	msg := email.sent[0]
	assert.Equal(t, "admin@example.com", msg.To)
	assert.Equal(t, "New Appointment Submitted: #3", msg.Subject)
	assert.Contains(t, msg.HTML, "<li><strong>Patient Type:</strong> Old</li>")
	assert.Contains(t, msg.HTML, "Rahim &lt;b&gt;")

	require.Len(t, webhook.calls, 1)
	call := webhook.calls[0]
	assert.Equal(t, "https://gateway.example.com/send", call.url)
	assert.Equal(t, "Bearer secret", call.headers["Authorization"])
	payload := call.payload.(WhatsAppPayload)
	assert.Equal(t, "8801700", payload.Phone)
	assert.True(t, strings.HasPrefix(payload.Message, "New appointment\nName: Rahim <b>\nMobile: 01700000000"))
	assert.True(t, strings.HasSuffix(payload.Message, "Serial: 3\nTime: 5 PM - 9 PM\nPatient: Old"))

	assert.Equal(t, 1, metrics.counts["email:sent"])
	assert.Equal(t, 1, metrics.counts["whatsapp:sent"])
}

func TestDispatcher_SkipsUnconfiguredWhatsApp(t *testing.T) {
	tests := []struct {
		name     string
		settings *clinic.Settings
	}{
		{name: "no endpoint", settings: &clinic.Settings{WhatsAppPhone: "8801700"}},
		{name: "no phone", settings: &clinic.Settings{WhatsAppAPIEndpoint: "https://gateway.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			webhook := &recordingWebhook{}
			d := NewDispatcher(DispatcherConfig{
				Settings: staticSettings{settings: tt.settings},
				Email:    &recordingEmail{},
				Webhook:  webhook,
			})
			delivery := d.NotifyBooking(context.Background(), sampleBooking())
			assert.False(t, delivery.SentWhatsApp)
			assert.False(t, delivery.SentEmail)
			assert.Empty(t, webhook.calls)
		})
	}
}

func TestDispatcher_NoTokenNoAuthorization(t *testing.T) {
	webhook := &recordingWebhook{}
	d := NewDispatcher(DispatcherConfig{
		Settings: staticSettings{settings: &clinic.Settings{WhatsAppPhone: "1", WhatsAppAPIEndpoint: "https://gw"}},
		Webhook:  webhook,
	})
	assert.True(t, d.NotifyBooking(context.Background(), sampleBooking()).SentWhatsApp)
	require.Len(t, webhook.calls, 1)
	_, ok := webhook.calls[0].headers["Authorization"]
	assert.False(t, ok)
}

func TestDispatcher_FailuresAreIndependent(t *testing.T) {
	email := &recordingEmail{err: errors.New("smtp down")}
	webhook := &recordingWebhook{}
	metrics := &countingMetrics{}
	d := NewDispatcher(DispatcherConfig{
		Settings: staticSettings{settings: &clinic.Settings{
			WhatsAppPhone:       "8801700",
			WhatsAppAPIEndpoint: "https://gw",
		}},
		Email:            email,
		Webhook:          webhook,
		DefaultRecipient: "fallback@example.com",
		Metrics:          metrics,
	})

	delivery := d.NotifyBooking(context.Background(), sampleBooking())
	assert.False(t, delivery.SentEmail)
	assert.True(t, delivery.SentWhatsApp)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "fallback@example.com", email.sent[0].To)
	assert.Equal(t, 1, metrics.counts["email:failed"])
}

func TestDispatcher_IgnoresCallerCancellation(t *testing.T) {
	email := &recordingEmail{}
	d := NewDispatcher(DispatcherConfig{
		Settings: staticSettings{settings: &clinic.Settings{EmailRecipient: "admin@example.com"}},
		Email:    email,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seenErr error
	d.email = EmailSenderFunc(func(ctx context.Context, msg EmailMessage) error {
		seenErr = ctx.Err()
		return nil
	})
	assert.True(t, d.NotifyBooking(ctx, sampleBooking()).SentEmail)
	assert.NoError(t, seenErr)
}

func TestDispatcher_SettingsErrorStillReports(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		Settings:         staticSettings{err: errors.New("redis down")},
		Email:            &recordingEmail{},
		DefaultRecipient: "fallback@example.com",
	})
	delivery := d.NotifyBooking(context.Background(), sampleBooking())
	assert.True(t, delivery.SentEmail)
	assert.False(t, delivery.SentWhatsApp)
}
