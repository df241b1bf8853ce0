package domain

import "github.com/shopspring/decimal"

// LedgerAction is what the orchestrator should do after a ledger step
type LedgerAction int

const (
	// LedgerWait nothing to bill yet, or everything is already billed
	LedgerWait LedgerAction = iota
	// LedgerCreateOrder a new order for Amount must be created
	LedgerCreateOrder
	// LedgerCorrect orders overshoot the debt by -Amount
	LedgerCorrect
)

func (a LedgerAction) String() string {
	switch a {
	case LedgerWait:
		return "wait"
	case LedgerCreateOrder:
		return "create_order"
	case LedgerCorrect:
		return "correct"
	}
	return "unknown"
}

// LedgerDecision is the outcome of NextOrderSum
type LedgerDecision struct {
	Action LedgerAction
	Amount decimal.Decimal
}

// NextOrderSum computes the next order amount for a session.
//
// On a session the vendor has not completed yet, orders are deferred until
// the unbilled delta reaches maxClientDebt, and then capped at it. After
// vendor completion the full remaining delta is billed, and a negative
// delta means earlier orders overshoot the final debt.
func NextOrderSum(debt, ordered, maxClientDebt decimal.Decimal, completed bool) LedgerDecision {
	next := debt.Sub(ordered)

	if !completed {
		if next.GreaterThanOrEqual(maxClientDebt) {
			next = maxClientDebt
		} else {
			next = decimal.Zero
		}
	}

	switch {
	case IsNegligible(next):
		return LedgerDecision{Action: LedgerWait, Amount: decimal.Zero}
	case next.IsPositive():
		return LedgerDecision{Action: LedgerCreateOrder, Amount: next}
	case next.IsNegative():
		return LedgerDecision{Action: LedgerCorrect, Amount: next}
	default:
		return LedgerDecision{Action: LedgerWait, Amount: decimal.Zero}
	}
}
