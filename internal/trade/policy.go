// Package trade runs the broker-mediated buy and sell order workflow.
//
// The transition table below is the only place that says which status may
// follow which, and who may move it there. Settlement transitions are the
// single point where shares and money change hands.
package trade

import (
	"brokerage_system/internal/domain"
)

// party is a bit set of the roles an actor plays on one order
type party uint8

const (
	partyCustomer party = 1 << iota
	partyBroker
	partyAdmin

	anyParty = partyCustomer | partyBroker | partyAdmin
)

// Rule is one legal edge of the state machine
type Rule struct {
	From    domain.OrderStatus
	To      domain.OrderStatus
	who     party
	Settles bool // moves shares and money, then lands on completed
}

var table = map[domain.OrderType][]Rule{
	domain.OrderBuy: {
		{From: domain.StatusPendingBrokerApproval, To: domain.StatusPendingPayment, who: partyBroker | partyAdmin},
		{From: domain.StatusPendingPayment, To: domain.StatusPaymentConfirmed, who: partyCustomer | partyAdmin},
		{From: domain.StatusPaymentConfirmed, To: domain.StatusSharesReleased, who: partyBroker | partyAdmin, Settles: true},
	},
	domain.OrderSell: {
		{From: domain.StatusPendingBrokerApproval, To: domain.StatusPendingMarketListing, who: partyBroker | partyAdmin},
		{From: domain.StatusPendingMarketListing, To: domain.StatusListedOnMarket, who: partyBroker | partyAdmin, Settles: true},
	},
}

// partiesOf returns the roles the actor plays on the order
func partiesOf(actor domain.Actor, order *domain.TradeOrder) party {
	var p party
	if actor.IsAdmin() {
		p |= partyAdmin
	}
	if actor.UserID == order.CustomerID {
		p |= partyCustomer
	}
	if actor.Role == domain.RoleBroker && actor.UserID == order.BrokerID {
		p |= partyBroker
	}
	return p
}

// lookup finds the rule for moving order to `to`, including the edges every
// non-terminal state shares: cancel, reject and the admin override.
func lookup(order *domain.TradeOrder, to domain.OrderStatus) (Rule, bool) {
	if order.Status.Terminal() {
		return Rule{}, false
	}
	switch to {
	case domain.StatusCancelled, domain.StatusRejected:
		return Rule{From: order.Status, To: to, who: anyParty}, true
	case domain.StatusCompleted:
		return Rule{From: order.Status, To: to, who: partyAdmin}, true
	}
	for _, r := range table[order.Type] {
		if r.From == order.Status && r.To == to {
			return r, true
		}
	}
	return Rule{}, false
}

// Authorize decides whether actor may move order to `to`. It returns the
// matching rule, InvalidTransition when the edge does not exist (or is the
// admin-only override and the actor is not an admin), or Forbidden when the
// edge exists but the actor plays none of the roles allowed on it.
func Authorize(actor domain.Actor, order *domain.TradeOrder, to domain.OrderStatus) (Rule, error) {
	rule, ok := lookup(order, to)
	if !ok || (to == domain.StatusCompleted && !actor.IsAdmin()) {
		return Rule{}, domain.Errorf(domain.KindInvalidTransition, "%s order cannot move from %s to %s", order.Type, order.Status, to)
	}
	if partiesOf(actor, order)&rule.who == 0 {
		return Rule{}, domain.Errorf(domain.KindForbidden, "user %d may not move order %d to %s", actor.UserID, order.ID, to)
	}
	return rule, nil
}

// Next lists the statuses the actor could move the order to right now
func Next(actor domain.Actor, order *domain.TradeOrder) []domain.OrderStatus {
	var out []domain.OrderStatus
	candidates := []domain.OrderStatus{domain.StatusCancelled, domain.StatusRejected, domain.StatusCompleted}
	for _, r := range table[order.Type] {
		if r.From == order.Status {
			candidates = append([]domain.OrderStatus{r.To}, candidates...)
		}
	}
	for _, to := range candidates {
		if _, err := Authorize(actor, order, to); err == nil {
			out = append(out, to)
		}
	}
	return out
}
