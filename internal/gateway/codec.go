package gateway

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coursehub/internal/domain/order"
)

func encodeCreateOrder(o *order.Order, returnURL, notifyURL string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("order_amount")
	e.Num(jx.Num(ToMajor(o.Amount).StringFixed(minorUnitExp)))
	e.FieldStart("order_currency")
	e.Str(o.Currency)
	e.FieldStart("order_note")
	e.Str(o.Note)

	e.FieldStart("customer_details")
	e.ObjStart()
	e.FieldStart("customer_id")
	e.Str(customerID(o.OwnerID))
	if o.CustomerEmail != "" {
		e.FieldStart("customer_email")
		e.Str(o.CustomerEmail)
	}
	e.ObjEnd()

	if returnURL != "" || notifyURL != "" {
		e.FieldStart("order_meta")
		e.ObjStart()
		if returnURL != "" {
			e.FieldStart("return_url")
			e.Str(returnURL)
		}
		if notifyURL != "" {
			e.FieldStart("notify_url")
			e.Str(notifyURL)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

// customerID keeps the characters the provider accepts in customer ids.
func customerID(owner string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, owner)
	if id == "" {
		return "guest"
	}
	return id
}

// providerOrder is the subset of the provider's order entity we read.
type providerOrder struct {
	orderID   string
	status    string
	note      string
	sessionID string
	// amount is the raw major-unit amount, empty when absent.
	amount string
}

func (p *providerOrder) decode(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty response body")
	}
	return jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_id":
			// cf_order_id is the provider's internal id and is not
			// addressable through /orders/<id>, so it is never adopted.
			p.orderID, err = decodeScalar(d)
		case "order_status":
			p.status, err = decodeScalar(d)
		case "order_note":
			p.note, err = decodeScalar(d)
		case "payment_session_id":
			p.sessionID, err = decodeScalar(d)
		case "order_amount":
			p.amount, err = decodeScalar(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %s", key)
		}
		return nil
	})
}

// decodeScalar reads a string, number or null as text.
func decodeScalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}
