package domain

import (
	"errors"
	"fmt"
)

// ErrNoAnchor means the account has no usable inspiration history: no
// inspiration accounts configured, or no posts/images found in the window.
// It is a normal, reportable state, not a fault.
var ErrNoAnchor = errors.New("no anchor configured")

// RetrievalError wraps a failure of the external nearest-neighbor search.
// An empty result set is a valid answer and is never turned into one of
// these; retries are a caller concern.
type RetrievalError struct {
	Cause error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Cause)
}

func (e *RetrievalError) Unwrap() error { return e.Cause }

// InsufficientCandidatesError means too few candidates survived the
// anchor-distance cut to fill the requested count.
type InsufficientCandidatesError struct {
	Have, Need int
}

func (e *InsufficientCandidatesError) Error() string {
	return fmt.Sprintf("insufficient candidates: have %d, need %d", e.Have, e.Need)
}

// DiversityError means there were enough on-aesthetic candidates, but the
// pairwise-distance constraint prevented filling the requested count.
type DiversityError struct {
	Have, Need int
}

func (e *DiversityError) Error() string {
	return fmt.Sprintf("diversity constraint unsatisfiable: selected %d, need %d", e.Have, e.Need)
}
