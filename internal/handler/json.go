package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/coursehub/internal/domain/enrollment"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("malformed JSON body")

func writeJSON(w http.ResponseWriter, code int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("error")
		e.Str(msg)
		e.ObjEnd()
	})
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

// decodeFields reads a flat JSON object, passing every scalar field as text
// to set. Nested values are skipped.
func decodeFields(data []byte, set func(key, value string)) error {
	if len(data) == 0 {
		return errBadJSON
	}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		v, ok, err := readScalar(d)
		if err != nil {
			return err
		}
		if ok {
			set(key, v)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(errBadJSON, err.Error())
	}
	return nil
}

// readScalar reads a string or number as text. Other values are skipped and
// reported with ok=false.
func readScalar(d *jx.Decoder) (v string, ok bool, err error) {
	switch d.Next() {
	case jx.String:
		v, err = d.Str()
		return v, err == nil, err
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", false, err
		}
		return n.String(), true, nil
	default:
		return "", false, d.Skip()
	}
}

// validationMessage renders validator errors as "field: rule" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, lowerFirst(fe.Field())+": "+fe.Tag())
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func encodeEnrollment(e *jx.Encoder, en *enrollment.Enrollment) {
	if en == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("id")
	e.Str(en.ID)
	e.FieldStart("userId")
	e.Str(en.UserID)
	e.FieldStart("courseId")
	e.Str(en.CourseID)
	e.FieldStart("status")
	e.Str(en.Status)
	e.FieldStart("paymentId")
	if en.PaymentID != nil {
		e.Str(*en.PaymentID)
	} else {
		e.Null()
	}
	e.FieldStart("createdAt")
	e.Str(en.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
