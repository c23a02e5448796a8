package bootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-serial/internal/bookings"
	appconfig "github.com/wolfman30/clinic-serial/internal/config"
	"github.com/wolfman30/clinic-serial/internal/events"
	"github.com/wolfman30/clinic-serial/internal/notify"
	"github.com/wolfman30/clinic-serial/internal/observability/metrics"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// BuildDispatcher wires the email and WhatsApp dispatcher. ses may be nil.
func BuildDispatcher(cfg *appconfig.Config, settings notify.SettingsSource, ses notify.SESAPI, m *metrics.BookingMetrics, logger *logging.Logger) *notify.Dispatcher {
	email := notify.NewEmailSender(notify.ProviderConfig{
		Provider:          cfg.EmailProvider,
		SendGridAPIKey:    cfg.SendGridAPIKey,
		SendGridFromEmail: cfg.SendGridFromEmail,
		SendGridFromName:  cfg.SendGridFromName,
		SESFromEmail:      cfg.SESFromEmail,
	}, ses, logger)

	return notify.NewDispatcher(notify.DispatcherConfig{
		Settings:         settings,
		Email:            email,
		Webhook:          notify.NewWebhookSender(nil, cfg.NotifyTimeout),
		DefaultRecipient: cfg.AdminEmail,
		Timeout:          cfg.NotifyTimeout,
		Metrics:          m,
		Logger:           logger,
	})
}

// Notifications is the notifier the booking engine uses plus the outbox
// deliverer to run when notifications are queued.
type Notifications struct {
	Notifier  bookings.Notifier
	Deliverer *events.Deliverer
	Mode      string
}

// BuildNotifications sends inline unless NOTIFY_MODE=outbox and Postgres is
// available. Queued events are delivered through the dispatcher and the
// appointment's notification flags are updated afterwards.
func BuildNotifications(cfg *appconfig.Config, pool *pgxpool.Pool, dispatcher *notify.Dispatcher, repo bookings.Repository, logger *logging.Logger) Notifications {
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.UsesOutbox() {
		return Notifications{Notifier: dispatcher, Mode: "inline"}
	}
	if pool == nil {
		logger.Warn("NOTIFY_MODE=outbox requires DATABASE_URL; sending inline")
		return Notifications{Notifier: dispatcher, Mode: "inline"}
	}

	store := events.NewOutboxStore(pool)
	handler := events.NewBookingNotificationHandler(dispatcher, repo, events.NewDeliveryLog(pool), logger)
	deliverer := events.NewDeliverer(store, handler, logger).WithInterval(cfg.OutboxInterval)
	return Notifications{
		Notifier:  events.NewOutboxNotifier(store, dispatcher, logger),
		Deliverer: deliverer,
		Mode:      "outbox",
	}
}
