package checkout

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"github.com/fjod/storefront/internal/reservation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultCurrency = "USD"

type CartStore interface {
	Snapshot(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error)
	ClearCart(ctx context.Context, owner domain.CartOwner) error
}

type Reserver interface {
	ReserveForCart(ctx context.Context, cart *domain.Cart) (*reservation.Ticket, error)
	ReleaseTicket(ctx context.Context, ticket *reservation.Ticket)
}

type Orders interface {
	Place(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	Transition(ctx context.Context, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error)
}

type Payments interface {
	ProcessPayment(ctx context.Context, order *domain.Order, method domain.PaymentMethod) (*domain.Payment, error)
	ProcessRefund(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
}

type Request struct {
	Owner domain.CartOwner
	// GuestEmail is required when Owner is a guest session.
	GuestEmail     string
	Method         domain.PaymentMethod
	IdempotencyKey string
}

type Result struct {
	Order   *domain.Order
	Payment *domain.Payment
	// Duplicate is set when the idempotency key matched an earlier checkout.
	Duplicate bool
}

// Orchestrator is the only component that moves more than one state machine
// in a single call. It keeps stock, order and payment consistent with each
// other when any step fails.
type Orchestrator struct {
	carts    CartStore
	reserver Reserver
	orders   Orders
	payments Payments
	currency string
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewOrchestrator(carts CartStore, reserver Reserver, orders Orders, payments Payments, currency string, logger *zap.Logger) *Orchestrator {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Orchestrator{
		carts:    carts,
		reserver: reserver,
		orders:   orders,
		payments: payments,
		currency: currency,
		logger:   observability.OrNop(logger),
		tracer:   observability.Tracer("checkout"),
		now:      time.Now,
	}
}
