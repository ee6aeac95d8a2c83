package enums

import "fmt"

// QuoteStatus tracks the lifecycle of a delivery quote. At most one quote
// per order may be selected or used at a time.
type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "pending"
	QuoteStatusSelected  QuoteStatus = "selected"
	QuoteStatusUsed      QuoteStatus = "used"
	QuoteStatusExpired   QuoteStatus = "expired"
	QuoteStatusCancelled QuoteStatus = "cancelled"
)

var validQuoteStatuses = []QuoteStatus{
	QuoteStatusPending,
	QuoteStatusSelected,
	QuoteStatusUsed,
	QuoteStatusExpired,
	QuoteStatusCancelled,
}

// String implements fmt.Stringer.
func (q QuoteStatus) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QuoteStatus.
func (q QuoteStatus) IsValid() bool {
	for _, candidate := range validQuoteStatuses {
		if candidate == q {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the quote can no longer change state.
func (q QuoteStatus) IsTerminal() bool {
	switch q {
	case QuoteStatusUsed, QuoteStatusExpired, QuoteStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseQuoteStatus converts raw input into a QuoteStatus.
func ParseQuoteStatus(value string) (QuoteStatus, error) {
	for _, candidate := range validQuoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote status %q", value)
}
