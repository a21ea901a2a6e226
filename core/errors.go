package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput         = "IPN_BAD_INPUT"
	ErrorJobDecodeFailed  = "IPN_JOB_DECODE_FAILED"
	ErrorQueueUnavailable = "IPN_QUEUE_UNAVAILABLE"
	ErrorAuditFailed      = "IPN_AUDIT_FAILED"
	ErrorInvoiceNotFound  = "IPN_INVOICE_NOT_FOUND"
	ErrorInternal         = "IPN_INTERNAL_ERROR"
)

// NewError builds a categorized error carrying an IPN text code.
func NewError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

// WrapError attaches an IPN text code to an underlying failure.
func WrapError(err error, category goerrors.Category, textCode string, message string) *goerrors.Error {
	if err == nil {
		return nil
	}
	return ensureErrorEnvelope(
		goerrors.Wrap(err, category, message).
			WithTextCode(textCode),
	)
}

// MapError converts any error into the go-errors envelope used across the
// module.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "invoice") && strings.Contains(msg, "not found"):
		return NewError(err.Error(), goerrors.CategoryNotFound, ErrorInvoiceNotFound)
	case strings.Contains(msg, "decode"), strings.Contains(msg, "unmarshal"):
		return NewError(err.Error(), goerrors.CategoryBadInput, ErrorJobDecodeFailed)
	case strings.Contains(msg, "enqueue"), strings.Contains(msg, "queue"):
		return NewError(err.Error(), goerrors.CategoryOperation, ErrorQueueUnavailable)
	case strings.Contains(msg, "audit"):
		return NewError(err.Error(), goerrors.CategoryOperation, ErrorAuditFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return NewError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultErrorTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultErrorTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorInvoiceNotFound
	case goerrors.CategoryOperation:
		return ErrorQueueUnavailable
	default:
		return ErrorInternal
	}
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
