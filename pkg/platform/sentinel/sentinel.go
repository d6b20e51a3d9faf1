package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, buses and channel
// senders return these (optionally wrapped) so callers can branch with
// errors.Is without knowing which backend produced them.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrClosed: component already shut down
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("closed")
)
