package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
	refunds  map[uuid.UUID]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payments: make(map[uuid.UUID]*domain.Payment),
		refunds:  make(map[uuid.UUID]bool),
	}
}

func (r *MemoryRepository) Create(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.OrderID == payment.OrderID && p.Status.IsActive() {
			return domain.ErrActivePaymentExists
		}
	}
	r.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *MemoryRepository) GetActiveByOrderID(_ context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.OrderID == orderID && p.Status.IsActive() {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *MemoryRepository) ListByOrderID(_ context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var payments []*domain.Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			payments = append(payments, clonePayment(p))
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].InitiatedAt.Before(payments[j].InitiatedAt) })
	return payments, nil
}

func (r *MemoryRepository) Update(_ context.Context, payment *domain.Payment, from domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if stored.Status != from {
		return &domain.PaymentStateError{From: stored.Status, To: payment.Status}
	}
	r.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (r *MemoryRepository) ClaimRefund(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return false, domain.ErrPaymentNotFound
	}
	if p.Status != domain.PaymentStatusSuccess || r.refunds[id] {
		return false, nil
	}
	r.refunds[id] = true
	return true, nil
}

func (r *MemoryRepository) ReleaseRefundClaim(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[id]; !ok {
		return domain.ErrPaymentNotFound
	}
	if r.payments[id].Status == domain.PaymentStatusSuccess {
		delete(r.refunds, id)
	}
	return nil
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	c.ProcessedAt = cloneTime(p.ProcessedAt)
	c.RefundedAt = cloneTime(p.RefundedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
