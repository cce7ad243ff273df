package loadtest

import (
	"errors"
	"fmt"
)

var (
	// ErrLostSaves means accepted saves never reached history.
	ErrLostSaves = errors.New("accepted saves missing from history")
	// ErrExtraSaves means history grew by more than was accepted, so a
	// retried key was written twice.
	ErrExtraSaves = errors.New("history grew past accepted saves")
	// ErrNothingAccepted means every request was refused.
	ErrNothingAccepted = errors.New("no save was accepted")
)

// verify checks that history grew by exactly the accepted saves.
func verify(stats *Stats) error {
	switch {
	case stats.Submitted > 0 && stats.Accepted == 0:
		return fmt.Errorf("%w: %d throttled, %d failed", ErrNothingAccepted, stats.Throttled, stats.Failed)
	case stats.After < stats.Expected:
		return fmt.Errorf("%w: want %d, have %d", ErrLostSaves, stats.Expected, stats.After)
	case stats.After > stats.Expected:
		return fmt.Errorf("%w: want %d, have %d", ErrExtraSaves, stats.Expected, stats.After)
	}
	return nil
}
