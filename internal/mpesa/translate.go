package mpesa

import "strings"

// Human-readable translations for known provider failure codes.
const (
	reasonCancelled    = "You cancelled the M-Pesa request on your phone. Tap retry to send it again."
	reasonTimedOut     = "The M-Pesa prompt timed out before you responded. Tap retry to send it again."
	reasonNoFunds      = "Payment failed: insufficient M-Pesa balance. Top up and retry."
	reasonInFlight     = "A payment for this order is already in progress. Give it a moment before retrying."
	reasonUnknownError = "Payment could not be completed. Please try again."
)

// TranslateFailureReason maps a raw provider failure code/description to a
// human-readable message. Pure and total: every input, including the empty
// string, yields a non-empty message; unrecognized reasons pass through
// unchanged.
func TranslateFailureReason(raw string) string {
	if raw == "" {
		return reasonUnknownError
	}

	switch {
	case strings.Contains(raw, "1032"):
		return reasonCancelled
	case strings.Contains(raw, "1037"):
		return reasonTimedOut
	case strings.Contains(raw, "2001"):
		return reasonNoFunds
	case strings.Contains(strings.ToLower(raw), "already in process"):
		return reasonInFlight
	default:
		return raw
	}
}
