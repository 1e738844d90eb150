package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/coursehub/internal/domain/enrollment"
)

// RoutingKeyEnrollmentCreated is the routing key of enrollment events.
const RoutingKeyEnrollmentCreated = "enrollment.created"

// Publisher publishes a message body under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Events publishes enrollment events for other services.
type Events struct {
	pub Publisher
}

var _ enrollment.Notifier = (*Events)(nil)

// NewEvents creates an Events notifier on top of pub.
func NewEvents(pub Publisher) *Events {
	return &Events{pub: pub}
}

// EnrollmentCreated implements enrollment.Notifier.
func (e *Events) EnrollmentCreated(ctx context.Context, ev enrollment.Event) error {
	if err := e.pub.Publish(ctx, RoutingKeyEnrollmentCreated, EncodeEvent(ev)); err != nil {
		return errors.Wrap(err, "publish enrollment event")
	}
	return nil
}

// EncodeEvent renders the wire form of an enrollment event.
func EncodeEvent(ev enrollment.Event) []byte {
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("enrollment_id")
	w.Str(ev.Enrollment.ID)
	w.FieldStart("user_id")
	w.Str(ev.Enrollment.UserID)
	w.FieldStart("course_id")
	w.Str(ev.Enrollment.CourseID)
	w.FieldStart("course_title")
	w.Str(ev.CourseTitle)
	w.FieldStart("status")
	w.Str(ev.Enrollment.Status)
	w.FieldStart("payment_id")
	if ev.Enrollment.PaymentID != nil {
		w.Str(*ev.Enrollment.PaymentID)
	} else {
		w.Null()
	}
	w.FieldStart("created_at")
	w.Str(ev.Enrollment.CreatedAt.UTC().Format(time.RFC3339Nano))
	w.ObjEnd()
	return w.Bytes()
}

// RabbitPublisher publishes to a durable fanout exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
}

var _ Publisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher connects to the broker and declares the exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}

	return &RabbitPublisher{conn: conn, exchange: exchange}, nil
}

// Publish sends a persistent JSON message.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close closes the broker connection.
func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}

// Ping reports whether the broker connection is still open.
func (p *RabbitPublisher) Ping(context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}
