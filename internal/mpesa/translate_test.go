package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateFailureReason(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"cancelled by code", "Request cancelled by user (code 1032)", reasonCancelled},
		{"bare cancel code", "1032", reasonCancelled},
		{"timeout", "DS timeout user cannot be reached (code 1037)", reasonTimedOut},
		{"insufficient funds", "The balance is insufficient for the transaction (code 2001)", reasonNoFunds},
		{"in flight", "A transaction is already in process for the current subscriber", reasonInFlight},
		{"in flight mixed case", "Transaction Already In Process", reasonInFlight},
		{"empty falls back", "", reasonUnknownError},
		{"unknown passes through", "SMSC timeout while sending prompt", "SMSC timeout while sending prompt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TranslateFailureReason(tt.raw))
		})
	}
}

// Every input yields a non-empty message, and repeated calls agree.
func TestTranslateFailureReasonTotalAndDeterministic(t *testing.T) {
	inputs := []string{"", "1032", "1037", "2001", "already in process", "garbage", "0", "\n"}
	for _, raw := range inputs {
		first := TranslateFailureReason(raw)
		assert.NotEmpty(t, first)
		assert.Equal(t, first, TranslateFailureReason(raw))
	}
}
