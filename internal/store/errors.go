package store

import "errors"

// ErrDisabled is returned by a nil Store.
var ErrDisabled = errors.New("submission ledger is not configured")
