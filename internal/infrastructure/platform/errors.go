// Package platform contains source and target adapters the migration
// orchestrator is wired to: a JSON export reader, a gorm staging target and
// retrying decorators for either side.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTransient marks failures worth retrying: timeouts, dropped connections,
// rate limiting. Adapters wrap such errors with MarkTransient.
var ErrTransient = errors.New("platform: transient failure")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// MarkTransient wraps err so that IsTransient reports true. A nil err stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying. Context cancellation
// never is, network timeouts always are.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func wrapOp(op, model string, err error) error {
	return fmt.Errorf("platform: %s %s: %w", op, model, err)
}
