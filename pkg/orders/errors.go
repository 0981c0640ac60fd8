package orders

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation. The API layer maps kinds to HTTP
// status codes; callers never see partial state on a rejection.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindAuthorization
	KindPrecondition
	KindPaymentVerification
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindPrecondition:
		return "precondition"
	case KindPaymentVerification:
		return "payment_verification"
	default:
		return "internal"
	}
}

// Error is a typed rejection from the order lifecycle manager.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...interface{}) *Error {
	return errf(KindNotFound, format, args...)
}

func validationf(format string, args ...interface{}) *Error {
	return errf(KindValidation, format, args...)
}

func authorizationf(format string, args ...interface{}) *Error {
	return errf(KindAuthorization, format, args...)
}

func preconditionf(format string, args ...interface{}) *Error {
	return errf(KindPrecondition, format, args...)
}

func paymentf(format string, args ...interface{}) *Error {
	return errf(KindPaymentVerification, format, args...)
}

// KindOf extracts the classification of err, KindInternal when err carries
// no domain kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
