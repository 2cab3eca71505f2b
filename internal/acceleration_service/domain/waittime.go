package domain

import (
	"fmt"
	"time"
)

// FormatElapsed derives a coarse human bucket from the time a transaction
// has been waiting: sub-minute collapses to "just now", then whole minutes,
// then whole hours with no upper bound. Negative elapsed (clock skew) is
// clamped to zero; the function never fails.
func FormatElapsed(submittedAt, now time.Time) string {
	elapsed := now.Sub(submittedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm", int(elapsed.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(elapsed.Hours()))
	}
}
