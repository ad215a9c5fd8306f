// Package errorspkg provides common app errors.
package errorspkg

import "errors"

// ErrInternal indicates internal server error.
//
// Details of the underlying failure are logged, never returned to clients.
var ErrInternal = errors.New("internal")
