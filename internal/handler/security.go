package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/coursehub/internal/auth"
)

var (
	errMissingSignature = errors.New("missing signature headers")
	errBadSignature     = errors.New("signature mismatch")
	errStaleTimestamp   = errors.New("timestamp outside tolerance")
)

// requireUser returns the authenticated principal or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

// Sign computes the webhook signature: base64(HMAC-SHA256(secret, timestamp+body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// verifyWebhook checks the signature and, when a tolerance is configured,
// the age of the timestamp.
func (h *Handler) verifyWebhook(r *http.Request, body []byte) error {
	sig := r.Header.Get("x-webhook-signature")
	ts := r.Header.Get("x-webhook-timestamp")
	if sig == "" || ts == "" || h.cfg.WebhookSecret == "" {
		return errMissingSignature
	}

	want := Sign(h.cfg.WebhookSecret, ts, body)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return errBadSignature
	}

	if h.cfg.WebhookTolerance > 0 {
		at, err := parseTimestamp(ts)
		if err != nil {
			return errors.Wrap(errStaleTimestamp, err.Error())
		}
		skew := h.now().Sub(at)
		if skew < 0 {
			skew = -skew
		}
		if skew > h.cfg.WebhookTolerance {
			return errors.Wrapf(errStaleTimestamp, "skew %s", skew)
		}
	}
	return nil
}

// parseTimestamp accepts unix seconds, unix milliseconds or RFC 3339.
func parseTimestamp(ts string) (time.Time, error) {
	if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", ts)
	}
	return t, nil
}
