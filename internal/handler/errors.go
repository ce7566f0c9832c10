package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/order"
	"github.com/xenking/commerce-engine/internal/domain/pricing"
	"github.com/xenking/commerce-engine/internal/domain/product"
	"github.com/xenking/commerce-engine/internal/domain/settings"
	"github.com/xenking/commerce-engine/pkg/httpmiddleware"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var (
	errUnauthorized     = errors.New("missing or invalid api key")
	errForbidden        = errors.New("api key lacks the required scope")
	errNotFound         = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errUserRequired     = errors.New(UserIDHeader + " header is required")
)

// badRequestError marks a malformed request.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

// unprocessableError marks an otherwise not-found error that the client
// must fix in its request body.
type unprocessableError struct {
	err error
}

func (e *unprocessableError) Error() string { return e.err.Error() }

func (e *unprocessableError) Unwrap() error { return e.err }

// requestValidationError wraps validator failures with a readable message.
type requestValidationError struct {
	fields validator.ValidationErrors
}

func (e *requestValidationError) Error() string {
	msgs := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", jsonPath(f.Namespace()), f.Tag()))
	}
	return "invalid request: " + strings.Join(msgs, ", ")
}

// jsonPath drops the Go struct name from a validator namespace.
func jsonPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{err: errors.New("request body is empty")}
		}
		return &badRequestError{err: errors.Wrap(err, "decode request")}
	}
	if err := h.validate.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			return &requestValidationError{fields: fields}
		}
		return errors.Wrap(err, "validate request")
	}
	return nil
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	var (
		badReq        *badRequestError
		unprocessable *unprocessableError
		reqInvalid    *requestValidationError
		couponInvalid *coupon.InvalidError
		couponBad     *coupon.ValidationError
		settingsBad   *settings.ValidationError
		quantity      *order.InvalidQuantityError
		missing       *order.ProductNotFoundError
		unavailable   *order.ProductUnavailableError
		stock         *order.InsufficientStockError
		transition    *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, errUserRequired):
		return http.StatusBadRequest

	case errors.As(err, &unprocessable),
		errors.As(err, &reqInvalid),
		errors.As(err, &couponInvalid),
		errors.As(err, &couponBad),
		errors.As(err, &settingsBad),
		errors.As(err, &quantity),
		errors.As(err, &missing),
		errors.As(err, &unavailable),
		errors.As(err, &stock),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrAddressNotFound),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, pricing.ErrInvalidFeeRate),
		errors.Is(err, pricing.ErrNegativeInput),
		errors.Is(err, pricing.ErrDiscountTooLarge):
		return http.StatusUnprocessableEntity

	case errors.As(err, &transition),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, coupon.ErrDuplicateCode):
		return http.StatusConflict

	case errors.Is(err, errNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and writes the error body. Server errors
// are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := clientMessage(err)
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, code, msg)
}

// clientMessage returns the innermost domain message, without the wrapping
// context added on the way up.
func clientMessage(err error) string {
	var (
		couponInvalid *coupon.InvalidError
		stock         *order.InsufficientStockError
	)
	switch {
	case errors.As(err, &couponInvalid):
		return couponInvalid.Error()
	case errors.As(err, &stock):
		return stock.Error()
	}
	for _, sentinel := range []error{
		coupon.ErrNotFound, order.ErrNotFound, product.ErrNotFound, order.ErrAddressNotFound,
		order.ErrNotCancellable, coupon.ErrDuplicateCode,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
