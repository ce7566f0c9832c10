package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/commerce-engine/internal/domain/order"
	"github.com/xenking/commerce-engine/internal/domain/settings"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

// Event names sent in the "event" field.
const (
	EventOrderPlaced   = "order.placed"
	EventStatusChanged = "order.status_changed"
)

// SecretSource provides the decrypted webhook signing secret.
type SecretSource interface {
	Credentials(ctx context.Context) (settings.Credentials, error)
}

// WebhookConfig configures a Webhook.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration

	TracerProvider trace.TracerProvider
}

// Webhook POSTs order events as JSON to a fixed URL. When a webhook secret
// is configured the body is signed with it.
type Webhook struct {
	url     string
	secrets SecretSource
	http    *http.Client
	now     func() time.Time
}

var _ order.Notifier = (*Webhook)(nil)

// NewWebhook creates a Webhook.
func NewWebhook(cfg WebhookConfig, secrets SecretSource) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	return &Webhook{
		url:     cfg.URL,
		secrets: secrets,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
		now: time.Now,
	}
}

// OrderPlaced implements order.Notifier.
func (w *Webhook) OrderPlaced(ctx context.Context, o *order.Order) error {
	return w.send(ctx, encodeEvent(EventOrderPlaced, o, "", w.now()))
}

// StatusChanged implements order.Notifier.
func (w *Webhook) StatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	return w.send(ctx, encodeEvent(EventStatusChanged, o, from, w.now()))
}

func (w *Webhook) send(ctx context.Context, body []byte) error {
	creds, err := w.secrets.Credentials(ctx)
	if err != nil {
		return errors.Wrap(err, "load webhook secret")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(creds.WebhookSecret, body))
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func encodeEvent(event string, o *order.Order, from order.Status, at time.Time) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("event")
	e.Str(event)
	e.FieldStart("sent_at")
	e.Str(at.UTC().Format(time.RFC3339))
	e.FieldStart("order")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("number")
	e.Str(o.Number)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	if from != "" {
		e.FieldStart("previous_status")
		e.Str(string(from))
	}
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.StringFixed(2))
	e.FieldStart("shipping_cost")
	e.Str(o.ShippingCost.StringFixed(2))
	e.FieldStart("discount")
	e.Str(o.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	if o.CouponCode != "" {
		e.FieldStart("coupon_code")
		e.Str(o.CouponCode)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		e.Str(it.UnitPrice.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}
