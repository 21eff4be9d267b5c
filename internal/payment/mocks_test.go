package payment

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/notify"
)

// step is one scripted gateway answer. Block makes the call wait for the
// caller's deadline.
type step struct {
	Result AuthorizeResult
	Err    error
	Block  bool
}

// ScriptedGateway answers Authorize from a script; the last step repeats.
type ScriptedGateway struct {
	mu        sync.Mutex
	Steps     []step
	Calls     int
	Keys      []string
	RefundErr   error
	RefundDelay time.Duration
	Refunds     []string
}

func (g *ScriptedGateway) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	g.mu.Lock()
	idx := g.Calls
	if idx >= len(g.Steps) {
		idx = len(g.Steps) - 1
	}
	s := g.Steps[idx]
	g.Calls++
	g.Keys = append(g.Keys, req.IdempotencyKey)
	g.mu.Unlock()

	if s.Block {
		<-ctx.Done()
		return AuthorizeResult{}, ctx.Err()
	}
	return s.Result, s.Err
}

func (g *ScriptedGateway) Refund(ctx context.Context, transactionID string, _ int64, _ string) error {
	if g.RefundDelay > 0 {
		select {
		case <-time.After(g.RefundDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return g.RefundErr
	}
	g.Refunds = append(g.Refunds, transactionID)
	return nil
}

type MockDispatcher struct {
	mu   sync.Mutex
	Sent []notify.Notification
}

func (m *MockDispatcher) Notify(_ context.Context, n notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
}

// FailingUpdateRepository loses every Update.
type FailingUpdateRepository struct {
	*MemoryRepository
	Err error
}

func (f *FailingUpdateRepository) Update(context.Context, *domain.Payment, domain.PaymentStatus) error {
	return f.Err
}

func approved(tx string) step {
	return step{Result: AuthorizeResult{Outcome: OutcomeApproved, TransactionID: tx}}
}
