package app

import (
	"github.com/go-faster/errors"

	"github.com/xenking/coursehub/internal/domain/enrollment"
	"github.com/xenking/coursehub/internal/notify"
)

// Notifiers fans enrollment events out to the configured channels: mail
// when a SendGrid key is set, the event exchange when a broker URL is set.
type Notifiers struct {
	enrollment.Notifier
	// Broker is the event publisher, nil when events are off.
	Broker *notify.RabbitPublisher
}

// NewNotifiers connects the configured notifiers.
func NewNotifiers(cfg *Config) (*Notifiers, error) {
	var (
		n     Notifiers
		multi notify.Multi
	)
	if cfg.Mail.SendGridKey != "" {
		multi = append(multi, notify.NewMailer(cfg.Mailer()))
	}
	if cfg.Events.AMQPURL != "" {
		pub, err := notify.NewRabbitPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return nil, errors.Wrap(err, "connect event broker")
		}
		n.Broker = pub
		multi = append(multi, notify.NewEvents(pub))
	}

	switch len(multi) {
	case 0:
		n.Notifier = notify.Nop{}
	case 1:
		n.Notifier = multi[0]
	default:
		n.Notifier = multi
	}
	return &n, nil
}

// Close releases the broker connection.
func (n *Notifiers) Close() {
	if n.Broker != nil {
		_ = n.Broker.Close()
	}
}
