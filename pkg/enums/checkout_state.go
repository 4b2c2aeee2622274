package enums

import "fmt"

// CheckoutState is the step a checkout session is on.
type CheckoutState string

const (
	CheckoutStateReviewing        CheckoutState = "reviewing"
	CheckoutStateSelectingPayment CheckoutState = "selecting_payment"
	CheckoutStateConfirmed        CheckoutState = "confirmed"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateReviewing,
	CheckoutStateSelectingPayment,
	CheckoutStateConfirmed,
}

// allowedCheckoutTransitions is the full transition table; anything absent is refused.
var allowedCheckoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateReviewing:        {CheckoutStateReviewing, CheckoutStateSelectingPayment},
	CheckoutStateSelectingPayment: {CheckoutStateReviewing, CheckoutStateConfirmed},
}

// String implements fmt.Stringer.
func (s CheckoutState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutState.
func (s CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateConfirmed
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s CheckoutState) CanTransitionTo(next CheckoutState) bool {
	for _, candidate := range allowedCheckoutTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}
