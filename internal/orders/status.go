package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusFulfilled Status = "FULFILLED"
	StatusCanceled  Status = "CANCELED"
	StatusExpired   Status = "EXPIRED" // canceled by hold timeout
	StatusRefunded  Status = "REFUNDED"
)

type Trigger string

const (
	TriggerPaymentSucceeded Trigger = "payment_succeeded"
	TriggerCancel           Trigger = "cancel"
	TriggerHoldExpired      Trigger = "hold_expired"
	TriggerFulfill          Trigger = "fulfill"
	TriggerRefund           Trigger = "refund"
)

// Effect is what happens to the order's reservation in the same transaction
// as the status change.
type Effect int

const (
	EffectNone Effect = iota
	EffectCommit
	EffectRelease
)

type transition struct {
	to     Status
	effect Effect
}

var table = map[Status]map[Trigger]transition{
	StatusPending: {
		TriggerPaymentSucceeded: {StatusPaid, EffectCommit},
		TriggerCancel:           {StatusCanceled, EffectRelease},
		TriggerHoldExpired:      {StatusExpired, EffectRelease},
	},
	StatusPaid: {
		// stock is already committed; refunds and cancels do not restock
		TriggerCancel:  {StatusCanceled, EffectNone},
		TriggerFulfill: {StatusFulfilled, EffectNone},
		TriggerRefund:  {StatusRefunded, EffectNone},
	},
	StatusFulfilled: {},
	StatusCanceled:  {},
	StatusExpired:   {},
	StatusRefunded:  {},
}

// Next looks up the transition for trig fired in state from.
func Next(from Status, trig Trigger) (Status, Effect, error) {
	t, ok := table[from][trig]
	if !ok {
		return from, EffectNone, &InvalidTransitionError{From: from, Trigger: trig}
	}
	return t.to, t.effect, nil
}

func (s Status) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusCanceled, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// alreadyApplied reports whether an order in cur has already absorbed trig,
// which makes a repeated fire a no-op instead of an error.
func alreadyApplied(cur Status, trig Trigger) bool {
	switch trig {
	case TriggerPaymentSucceeded:
		return cur == StatusPaid || cur == StatusFulfilled || cur == StatusRefunded
	case TriggerCancel:
		return cur == StatusCanceled
	case TriggerHoldExpired:
		return cur == StatusExpired
	case TriggerFulfill:
		return cur == StatusFulfilled
	case TriggerRefund:
		return cur == StatusRefunded
	}
	return false
}

func ParseTrigger(s string) (Trigger, bool) {
	switch t := Trigger(s); t {
	case TriggerPaymentSucceeded, TriggerCancel, TriggerHoldExpired, TriggerFulfill, TriggerRefund:
		return t, true
	}
	return "", false
}
