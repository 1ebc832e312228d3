package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable_IsClosed(t *testing.T) {
	for from, events := range transitions {
		assert.True(t, from.Valid(), "unknown source status %s", from)
		for ev, to := range events {
			assert.True(t, to.Valid(), "%s --%s--> unknown status %s", from, ev, to)
		}
	}
}

func TestTransitionTable_EveryStatusIsReachableOrInitial(t *testing.T) {
	reached := map[Status]bool{StatusAwaitingPayment: true}
	for _, events := range transitions {
		for _, to := range events {
			reached[to] = true
		}
	}
	for _, s := range Statuses() {
		assert.True(t, reached[s], "status %s is unreachable", s)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.ElementsMatch(t, []Status{
		StatusCompleted,
		StatusVoided,
		StatusInvestorRejected,
		StatusInvestorSlipRejectedFinal,
	}, TerminalStatuses())
}

func TestPredecessors(t *testing.T) {
	assert.Equal(t, []Status{StatusAwaitingPayment, StatusSlipRejected}, Predecessors(EventSlipAccepted))
	assert.Equal(t, []Status{StatusAwaitingInvestorPayment, StatusInvestorSlipRejected}, Predecessors(EventInvestorSlipAccepted))
	assert.Equal(t, []Status{StatusAwaitingSignature}, Predecessors(EventSign))
	assert.Equal(t, []Status{StatusAwaitingPawnerConfirm}, Predecessors(EventConfirm))
	assert.Equal(t, []Status{StatusAwaitingPayment, StatusSlipRejected}, Predecessors(EventCancel))
}

func TestNext(t *testing.T) {
	to, ok := Next(StatusAwaitingPayment, EventSlipRejectedFinal)
	assert.True(t, ok)
	assert.Equal(t, StatusVoided, to)

	_, ok = Next(StatusCompleted, EventSlipAccepted)
	assert.False(t, ok)

	_, ok = Next(StatusAwaitingSignature, EventConfirm)
	assert.False(t, ok)
}

func TestPassThroughStatusesHaveTheirEvent(t *testing.T) {
	for s, ev := range passThrough {
		_, ok := Next(s, ev)
		assert.True(t, ok, "%s cannot leave via %s", s, ev)
	}
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, []string{"AWAITING_PAYMENT", "COMPLETED"}, StatusStrings([]Status{StatusAwaitingPayment, StatusCompleted}))
}
