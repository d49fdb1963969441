// Package errors classifies routing failures and retries publishes.
//
// Handler failures never reach publishers. The router records them on the
// publish receipt as *HandlerError, reports panics as *PanicError and, when
// a retried publish still has failed deliveries, as *DeliveryFailedError.
// Retry decisions depend on a failure's Category.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category says whether another attempt can help.
type Category uint8

const (
	// Permanent failures repeat on every attempt: closed routers, bad
	// input, cancelled contexts and anything unrecognized.
	Permanent Category = iota

	// Transient failures may clear up: failed deliveries and deadlines.
	Transient
)

// String returns "transient" or "permanent".
func (c Category) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// retryable is implemented by failure types that know their category.
type retryable interface {
	Retryable() bool
}

// CategorizedError pins a category on an error, usually the last error of
// a retried operation.
type CategorizedError struct {
	Err      error
	Category Category

	// Attempts made before giving up. Zero when unknown.
	Attempts int

	// Op names the operation, such as "publish".
	Op string
}

func (e *CategorizedError) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("%s [%s, %d attempts]", msg, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s [%s]", msg, e.Category)
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// Retryable implements the retryable check used by Categorize.
func (e *CategorizedError) Retryable() bool { return e.Category == Transient }

// Mark attaches a category to err. Mark(nil, ...) returns nil.
func Mark(err error, c Category, op string) error {
	if err == nil {
		return nil
	}
	return &CategorizedError{Err: err, Category: c, Op: op}
}

// Categorize classifies err. The outermost error that declares its own
// retryability wins; a context deadline is transient; everything else,
// nil included, is permanent.
func Categorize(err error) Category {
	if err == nil {
		return Permanent
	}
	var r retryable
	if errors.As(err, &r) {
		if r.Retryable() {
			return Transient
		}
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Permanent
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return Categorize(err) == Transient
}
