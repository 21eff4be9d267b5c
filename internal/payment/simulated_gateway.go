package payment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Decline reasons reported by the simulated gateway.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonCardExpired       = "card_expired"
	ReasonFraudSuspected    = "fraud_suspected"
	ReasonLimitExceeded     = "limit_exceeded"
	ReasonInvalidCard       = "invalid_card"
	ReasonUnknown           = "unknown reason"
)

var declineReasons = []string{
	ReasonInsufficientFunds,
	ReasonCardExpired,
	ReasonFraudSuspected,
	ReasonLimitExceeded,
	ReasonInvalidCard,
}

// OutcomeSource decides how the simulated gateway answers.
type OutcomeSource interface {
	Outcome() (Outcome, string)
}

// RandomOutcome approves 95% of requests and declines the rest with a reason.
type RandomOutcome struct{}

func (RandomOutcome) Outcome() (Outcome, string) {
	return calcOutcome(rand.Intn(101)) // 101 because Intn is exclusive of the upper bound
}

func calcOutcome(randomInt int) (Outcome, string) {
	if randomInt < 95 {
		return OutcomeApproved, ""
	}
	known := randomInt - 95
	if known == 0 || known > len(declineReasons) {
		return OutcomeDeclined, ReasonUnknown
	}
	return OutcomeDeclined, declineReasons[known-1]
}

// FixedOutcome always answers the same way.
type FixedOutcome struct {
	Result Outcome
	Reason string
}

func (f FixedOutcome) Outcome() (Outcome, string) {
	return f.Result, f.Reason
}

// SimulatedGateway stands in for a real provider. Latency is applied before
// answering and honours the caller's deadline.
type SimulatedGateway struct {
	source  OutcomeSource
	latency time.Duration
}

func NewSimulatedGateway(source OutcomeSource, latency time.Duration) *SimulatedGateway {
	if source == nil {
		source = RandomOutcome{}
	}
	return &SimulatedGateway{source: source, latency: latency}
}

func (g *SimulatedGateway) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	if err := g.wait(ctx); err != nil {
		return AuthorizeResult{}, err
	}

	outcome, reason := g.source.Outcome()
	res := AuthorizeResult{Outcome: outcome, Reason: reason}
	if outcome == OutcomeApproved {
		res.TransactionID = fmt.Sprintf("TXN-%s", uuid.NewString())
	}
	return res, nil
}

// Refund is always success for this implementation.
func (g *SimulatedGateway) Refund(ctx context.Context, _ string, _ int64, _ string) error {
	return g.wait(ctx)
}

func (g *SimulatedGateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
