package ledger

import "errors"

var (
	// ErrAlreadyMarked signals a MarkProcessed call for a fingerprint that is
	// already in the ledger. Callers normally check IsProcessed first, so
	// seeing this error means two processors raced on the same event.
	ErrAlreadyMarked = errors.New("ledger: fingerprint already marked as processed")
)
