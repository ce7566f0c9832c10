// Package exchange is an HTTP client for the public FX quote service.
package exchange

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/commerce-engine/internal/domain/currency"
)

var _ currency.Provider = (*Client)(nil)

// DefaultBaseURL is the public AwesomeAPI endpoint.
const DefaultBaseURL = "https://economia.awesomeapi.com.br"

// maxBody bounds the quote payload we are willing to read.
const maxBody = 64 << 10

// Config configures a Client.
type Config struct {
	BaseURL string
	// Pair is the quote pair, e.g. "USD-BRL".
	Pair    string
	Timeout time.Duration

	TracerProvider trace.TracerProvider
}

// Client fetches the last quote for a currency pair.
type Client struct {
	baseURL string
	pair    string
	key     string
	http    *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Pair == "" {
		cfg.Pair = "USD-BRL"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		pair:    cfg.Pair,
		// Response object is keyed by the pair without the dash: USDBRL.
		key: strings.ReplaceAll(cfg.Pair, "-", ""),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}
}

// FetchUSDToLocal returns the current bid for the configured pair.
func (c *Client) FetchUSDToLocal(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json/last/"+c.pair, http.NoBody)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read body")
	}
	return c.decodeBid(body)
}

func (c *Client) decodeBid(body []byte) (decimal.Decimal, error) {
	var (
		bid   string
		found bool
	)
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != c.key {
			return d.Skip()
		}
		found = true
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "bid" {
				return d.Skip()
			}
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				bid = s
				return err
			case jx.Number:
				n, err := d.Num()
				bid = n.String()
				return err
			default:
				return errors.New("bid is not a string or number")
			}
		})
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "decode quote")
	}
	if !found {
		return decimal.Zero, errors.Errorf("quote %s missing from response", c.key)
	}
	if bid == "" {
		return decimal.Zero, errors.New("quote has no bid")
	}
	rate, err := decimal.NewFromString(bid)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse bid %q", bid)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive bid %s", rate)
	}
	return rate, nil
}
