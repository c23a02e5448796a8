// Package notify delivers new-booking notifications to clinic staff by
// email and WhatsApp webhook.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-serial/internal/bookings"
	"github.com/wolfman30/clinic-serial/internal/clinic"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// SettingsSource provides the admin-editable notification targets.
type SettingsSource interface {
	Settings(ctx context.Context) (*clinic.Settings, error)
}

// Webhook posts a JSON payload and reports whether it was accepted.
type Webhook interface {
	Post(ctx context.Context, url string, payload any, headers map[string]string) error
}

type notificationMetrics interface {
	ObserveNotification(channel string, sent bool)
}

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Settings         SettingsSource
	Email            EmailSender
	Webhook          Webhook
	DefaultRecipient string
	Timeout          time.Duration
	Metrics          notificationMetrics
	Logger           *logging.Logger
}

// Dispatcher sends the email and the WhatsApp webhook for a booking as two
// independent tasks. A failure in one never affects the other or the booking.
type Dispatcher struct {
	settings         SettingsSource
	email            EmailSender
	webhook          Webhook
	defaultRecipient string
	timeout          time.Duration
	metrics          notificationMetrics
	logger           *logging.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Settings == nil {
		panic("notify: settings source required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Email == nil {
		cfg.Email = NewStubEmailSender(cfg.Logger)
	}
	if cfg.Webhook == nil {
		cfg.Webhook = NewWebhookSender(nil, cfg.Timeout)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Dispatcher{
		settings:         cfg.Settings,
		email:            cfg.Email,
		webhook:          cfg.Webhook,
		defaultRecipient: strings.TrimSpace(cfg.DefaultRecipient),
		timeout:          cfg.Timeout,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
	}
}

// NotifyBooking sends both notifications and reports which succeeded. The
// caller's cancellation is ignored; the dispatch is bounded by the timeout.
func (d *Dispatcher) NotifyBooking(ctx context.Context, b bookings.Booking) bookings.Delivery {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	settings, err := d.settings.Settings(ctx)
	if err != nil {
		d.logger.Error("notify: failed to load settings", "booking_id", b.ID, "error", err)
		settings = clinic.DefaultSettings()
	}

	var (
		wg       sync.WaitGroup
		delivery bookings.Delivery
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		delivery.SentEmail = d.sendEmail(ctx, settings, b)
	}()
	go func() {
		defer wg.Done()
		delivery.SentWhatsApp = d.sendWhatsApp(ctx, settings, b)
	}()
	wg.Wait()

	d.logger.Info("booking notifications dispatched",
		"booking_id", b.ID, "clinic", b.Clinic, "serial_no", b.SerialNo,
		"sent_email", delivery.SentEmail, "sent_whatsapp", delivery.SentWhatsApp)
	return delivery
}

func (d *Dispatcher) sendEmail(ctx context.Context, settings *clinic.Settings, b bookings.Booking) bool {
	to := strings.TrimSpace(settings.EmailRecipient)
	if to == "" {
		to = d.defaultRecipient
	}
	if to == "" {
		return false
	}
	msg, err := BookingEmail(to, b)
	if err == nil {
		err = d.email.Send(ctx, msg)
	}
	if err != nil {
		d.logger.Warn("notify: booking email failed", "booking_id", b.ID, "error", err)
	}
	d.observe(ChannelEmail, err == nil)
	return err == nil
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, settings *clinic.Settings, b bookings.Booking) bool {
	if !settings.WhatsAppConfigured() {
		return false
	}
	headers := map[string]string{}
	if token := strings.TrimSpace(settings.WhatsAppAPIToken); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	payload := BookingWhatsApp(strings.TrimSpace(settings.WhatsAppPhone), b)
	err := d.webhook.Post(ctx, strings.TrimSpace(settings.WhatsAppAPIEndpoint), payload, headers)
	if err != nil {
		d.logger.Warn("notify: whatsapp webhook failed", "booking_id", b.ID, "error", err)
	}
	d.observe(ChannelWhatsApp, err == nil)
	return err == nil
}

func (d *Dispatcher) observe(channel string, sent bool) {
	if d.metrics != nil {
		d.metrics.ObserveNotification(channel, sent)
	}
}

var _ bookings.Notifier = (*Dispatcher)(nil)
