// Package gateway implements payment.Gateway over the provider's REST API.
package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/order"
	"github.com/xenking/coursehub/internal/domain/payment"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultAPIVersion = "2023-08-01"
	maxResponseBytes  = 1 << 20
	// minorUnitExp converts between major and minor currency units.
	minorUnitExp = 2
)

// Config holds provider credentials and callback locations.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	APIVersion   string
	Timeout      time.Duration
	// ReturnURL is where the hosted checkout sends the buyer. The provider
	// substitutes {order_id}.
	ReturnURL string
	// NotifyURL receives webhook deliveries.
	NotifyURL string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The configured timeout
// is not applied to it.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTelemetry instruments outgoing requests.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(cl *Client) {
		cl.http.Transport = otelhttp.NewTransport(cl.http.Transport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}

// Client talks to a Cashfree-style orders API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ payment.Gateway = (*Client)(nil)

// New creates a Client. Missing credentials are not an error here: every
// call then fails with payment.ErrGatewayUnavailable.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: http.DefaultTransport,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// BeginCheckout registers the order with the provider and returns the
// hosted checkout session.
func (c *Client) BeginCheckout(ctx context.Context, o *order.Order) (*payment.Checkout, error) {
	if !c.configured() {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, "gateway credentials not configured")
	}

	body := encodeCreateOrder(o, c.cfg.ReturnURL, c.cfg.NotifyURL)
	resp, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/orders", body)
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK && resp.code != http.StatusCreated {
		return nil, checkoutError(resp)
	}

	var (
		ck      payment.Checkout
		decoded providerOrder
	)
	if err := decoded.decode(resp.body); err != nil {
		return nil, errors.Wrap(payment.ErrGatewayRejected, err.Error())
	}
	ck.ProviderOrderID = decoded.orderID
	ck.SessionToken = decoded.sessionID
	ck.Status = decoded.status
	if ck.SessionToken == "" {
		return nil, errors.Wrap(payment.ErrGatewayRejected, "response has no payment_session_id")
	}
	if ck.ProviderOrderID == "" {
		ck.ProviderOrderID = o.ID
	}
	return &ck, nil
}

// FetchOrderStatus reads the provider's current view of an order.
func (c *Client) FetchOrderStatus(ctx context.Context, orderID string) (*payment.ProviderOrder, error) {
	if !c.configured() {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, "gateway credentials not configured")
	}

	resp, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, fetchError(resp)
	}

	var decoded providerOrder
	if err := decoded.decode(resp.body); err != nil {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, err.Error())
	}
	po := &payment.ProviderOrder{
		OrderID: decoded.orderID,
		Status:  decoded.status,
		Note:    decoded.note,
	}
	if po.OrderID == "" {
		po.OrderID = orderID
	}
	if decoded.amount != "" {
		minor, err := ToMinor(decoded.amount)
		if err != nil {
			zctx.From(ctx).Warn("Ignoring unparseable provider amount",
				zap.String("order_id", orderID),
				zap.String("amount", decoded.amount),
				zap.Error(err),
			)
		} else {
			po.Amount = minor
			po.AmountKnown = true
		}
	}
	return po, nil
}

type response struct {
	code int
	body []byte
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-client-id", c.cfg.ClientID)
	req.Header.Set("x-client-secret", c.cfg.ClientSecret)
	req.Header.Set("x-api-version", c.cfg.APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		// Timeouts and refused connections alike are transient.
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, err.Error())
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(payment.ErrGatewayUnavailable, err.Error())
	}
	return &response{code: res.StatusCode, body: data}, nil
}

func transient(code int) bool {
	return code >= 500 ||
		code == http.StatusUnauthorized ||
		code == http.StatusForbidden ||
		code == http.StatusTooManyRequests
}

func checkoutError(r *response) error {
	msg := providerMessage(r)
	if transient(r.code) {
		return errors.Wrap(payment.ErrGatewayUnavailable, msg)
	}
	return errors.Wrap(payment.ErrGatewayRejected, msg)
}

func fetchError(r *response) error {
	msg := providerMessage(r)
	if r.code == http.StatusNotFound || r.code == http.StatusBadRequest {
		return errors.Wrap(payment.ErrOrderNotFound, msg)
	}
	// Anything else may succeed on a later attempt.
	return errors.Wrap(payment.ErrGatewayUnavailable, msg)
}

// providerMessage extracts the provider's error message, falling back to
// the HTTP status text.
func providerMessage(r *response) string {
	prefix := "provider returned " + http.StatusText(r.code)
	msg := ""
	if len(r.body) > 0 {
		_ = jx.DecodeBytes(r.body).Obj(func(d *jx.Decoder, key string) error {
			if key != "message" || d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			msg = s
			return err
		})
	}
	if msg == "" {
		return prefix
	}
	return prefix + ": " + msg
}

// ToMinor converts a major-unit decimal amount ("154", "154.5") into minor
// units. Sub-minor precision is rounded half away from zero.
func ToMinor(major string) (int64, error) {
	d, err := decimal.NewFromString(major)
	if err != nil {
		return 0, errors.Wrapf(err, "parse amount %q", major)
	}
	return d.Shift(minorUnitExp).Round(0).IntPart(), nil
}

// ToMajor renders a minor-unit amount as a major-unit decimal.
func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExp)
}
