package action

// Status is the lifecycle state of an action request
type Status string

const (
	StatusAwaitingPayment           Status = "AWAITING_PAYMENT"
	StatusSlipRejected              Status = "SLIP_REJECTED"
	StatusSlipVerified              Status = "SLIP_VERIFIED"
	StatusAwaitingSignature         Status = "AWAITING_SIGNATURE"
	StatusPendingInvestorApproval   Status = "PENDING_INVESTOR_APPROVAL"
	StatusInvestorApproved          Status = "INVESTOR_APPROVED"
	StatusInvestorRejected          Status = "INVESTOR_REJECTED"
	StatusAwaitingInvestorPayment   Status = "AWAITING_INVESTOR_PAYMENT"
	StatusInvestorSlipRejected      Status = "INVESTOR_SLIP_REJECTED"
	StatusInvestorSlipRejectedFinal Status = "INVESTOR_SLIP_REJECTED_FINAL"
	StatusInvestorTransferred       Status = "INVESTOR_TRANSFERRED"
	StatusAwaitingPawnerConfirm     Status = "AWAITING_PAWNER_CONFIRM"
	StatusCompleted                 Status = "COMPLETED"
	StatusVoided                    Status = "VOIDED"
)

// Event is an input to the action request state machine
type Event string

const (
	EventSlipAccepted              Event = "SLIP_ACCEPTED"
	EventSlipRejected              Event = "SLIP_REJECTED"
	EventSlipRejectedFinal         Event = "SLIP_REJECTED_FINAL"
	EventAwaitSignature            Event = "AWAIT_SIGNATURE"
	EventRequestInvestorApproval   Event = "REQUEST_INVESTOR_APPROVAL"
	EventInvestorApprove           Event = "INVESTOR_APPROVE"
	EventInvestorReject            Event = "INVESTOR_REJECT"
	EventAwaitInvestorPayment      Event = "AWAIT_INVESTOR_PAYMENT"
	EventInvestorSlipAccepted      Event = "INVESTOR_SLIP_ACCEPTED"
	EventInvestorSlipRejected      Event = "INVESTOR_SLIP_REJECTED"
	EventInvestorSlipRejectedFinal Event = "INVESTOR_SLIP_REJECTED_FINAL"
	EventAwaitPawnerConfirm        Event = "AWAIT_PAWNER_CONFIRM"
	EventSign                      Event = "SIGN"
	EventConfirm                   Event = "CONFIRM"
	EventCancel                    Event = "CANCEL"
)

// allStatuses fixes iteration order for derived tables.
var allStatuses = []Status{
	StatusAwaitingPayment,
	StatusSlipRejected,
	StatusSlipVerified,
	StatusAwaitingSignature,
	StatusPendingInvestorApproval,
	StatusInvestorApproved,
	StatusInvestorRejected,
	StatusAwaitingInvestorPayment,
	StatusInvestorSlipRejected,
	StatusInvestorSlipRejectedFinal,
	StatusInvestorTransferred,
	StatusAwaitingPawnerConfirm,
	StatusCompleted,
	StatusVoided,
}

var transitions = map[Status]map[Event]Status{
	StatusAwaitingPayment: {
		EventSlipAccepted:      StatusSlipVerified,
		EventSlipRejected:      StatusSlipRejected,
		EventSlipRejectedFinal: StatusVoided,
		EventCancel:            StatusVoided,
	},
	StatusSlipRejected: {
		EventSlipAccepted:      StatusSlipVerified,
		EventSlipRejected:      StatusSlipRejected,
		EventSlipRejectedFinal: StatusVoided,
		EventCancel:            StatusVoided,
	},
	StatusSlipVerified: {
		EventAwaitSignature:          StatusAwaitingSignature,
		EventRequestInvestorApproval: StatusPendingInvestorApproval,
	},
	StatusAwaitingSignature: {
		EventSign: StatusCompleted,
	},
	StatusPendingInvestorApproval: {
		EventInvestorApprove: StatusInvestorApproved,
		EventInvestorReject:  StatusInvestorRejected,
	},
	StatusInvestorApproved: {
		EventAwaitInvestorPayment: StatusAwaitingInvestorPayment,
	},
	StatusAwaitingInvestorPayment: {
		EventInvestorSlipAccepted:      StatusInvestorTransferred,
		EventInvestorSlipRejected:      StatusInvestorSlipRejected,
		EventInvestorSlipRejectedFinal: StatusInvestorSlipRejectedFinal,
	},
	StatusInvestorSlipRejected: {
		EventInvestorSlipAccepted:      StatusInvestorTransferred,
		EventInvestorSlipRejected:      StatusInvestorSlipRejected,
		EventInvestorSlipRejectedFinal: StatusInvestorSlipRejectedFinal,
	},
	StatusInvestorTransferred: {
		EventAwaitPawnerConfirm: StatusAwaitingPawnerConfirm,
	},
	StatusAwaitingPawnerConfirm: {
		EventConfirm: StatusCompleted,
	},
}

// passThrough names the event that leaves a status without caller input.
// SLIP_VERIFIED is resolved per action kind.
var passThrough = map[Status]Event{
	StatusInvestorApproved:    EventAwaitInvestorPayment,
	StatusInvestorTransferred: EventAwaitPawnerConfirm,
}

// Next returns the status reached by applying ev in from.
func Next(from Status, ev Event) (Status, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// Predecessors lists the statuses in which ev is accepted.
func Predecessors(ev Event) []Status {
	var out []Status
	for _, s := range allStatuses {
		if _, ok := transitions[s][ev]; ok {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether s accepts no further events.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// TerminalStatuses lists the statuses that accept no events.
func TerminalStatuses() []Status {
	var out []Status
	for _, s := range allStatuses {
		if IsTerminal(s) {
			out = append(out, s)
		}
	}
	return out
}

// Statuses returns every status in declaration order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// StatusStrings converts statuses for use as a text[] query parameter.
func StatusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
