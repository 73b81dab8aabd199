package scan

import "errors"

var (
	// ErrResumeMismatch means the storage layer produced a row at or
	// before a position the checkpoint says was already consumed. That
	// is a checkpoint/replay bug; masking it would corrupt results, so
	// the scan aborts and the error sticks.
	ErrResumeMismatch = errors.New("resume position mismatch")

	// errBudget is the internal signal that the page budget expired
	// mid-row; it never escapes the cursor.
	errBudget = errors.New("page budget exceeded")
)
