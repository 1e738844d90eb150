package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/enrollment"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// MailConfig configures the SendGrid mailer.
type MailConfig struct {
	APIKey      string
	FromName    string
	FromAddress string
	// DashboardURL is linked from the message body.
	DashboardURL string
	// Host overrides the SendGrid API host.
	Host string
}

// Mailer sends the enrollment confirmation email through SendGrid.
type Mailer struct {
	key       string
	host      string
	from      *sgmail.Email
	dashboard string
}

var _ enrollment.Notifier = (*Mailer)(nil)

// NewMailer creates a Mailer.
func NewMailer(cfg MailConfig) *Mailer {
	host := cfg.Host
	if host == "" {
		host = sendgridHost
	}
	return &Mailer{
		key:       cfg.APIKey,
		host:      host,
		from:      sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		dashboard: cfg.DashboardURL,
	}
}

// EnrollmentCreated mails the purchaser. Events without an address, such as
// administrator grants, are skipped.
func (m *Mailer) EnrollmentCreated(ctx context.Context, ev enrollment.Event) error {
	if ev.Email == "" {
		zctx.From(ctx).Debug("No address for enrollment mail",
			zap.String("enrollment_id", ev.Enrollment.ID),
		)
		return nil
	}

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.message(ev))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return errors.Wrap(err, "send enrollment mail")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("send enrollment mail: sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (m *Mailer) message(ev enrollment.Event) *sgmail.SGMailV3 {
	title := ev.CourseTitle
	if title == "" {
		title = ev.Enrollment.CourseID
	}

	p := sgmail.NewPersonalization()
	p.Subject = "You're enrolled in " + title
	p.AddTos(sgmail.NewEmail("", ev.Email))

	var b strings.Builder
	fmt.Fprintf(&b, "Your payment was received and you now have access to %s.\n", title)
	if ev.Enrollment.PaymentID != nil {
		fmt.Fprintf(&b, "Order reference: %s\n", *ev.Enrollment.PaymentID)
	}
	if m.dashboard != "" {
		fmt.Fprintf(&b, "\nStart learning: %s\n", m.dashboard)
	}

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(sgmail.NewContent("text/plain", b.String()))
	return msg
}
