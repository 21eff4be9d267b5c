package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/ledger"
	"github.com/fjod/storefront/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Ticket records the lines a single ReserveForCart call took from the ledger.
type Ticket struct {
	ID        uuid.UUID
	Lines     []domain.ReservedLine
	CreatedAt time.Time
}

// Engine reserves a whole cart against the ledger. The ledger is only atomic
// per product, so the engine sequences lines by ascending product id and keeps
// an explicit compensation stack that is unwound on the first failure.
type Engine struct {
	ledger ledger.Ledger
	logger *zap.Logger
	tracer trace.Tracer
}

func NewEngine(l ledger.Ledger, logger *zap.Logger) *Engine {
	return &Engine{
		ledger: l,
		logger: observability.OrNop(logger),
		tracer: observability.Tracer("reservation"),
	}
}

type compensation struct {
	productID int64
	quantity  int
}

func (e *Engine) ReserveForCart(ctx context.Context, cart *domain.Cart) (_ *Ticket, err error) {
	if cart == nil || cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	ctx, span := e.tracer.Start(ctx, "reservation.ReserveForCart",
		trace.WithAttributes(attribute.Int("cart.lines", len(cart.Lines))))
	defer func() { observability.EndSpan(span, err) }()

	lines := make([]domain.ReservedLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, domain.ReservedLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	stack := make([]compensation, 0, len(lines))
	for _, line := range lines {
		if errReserve := e.ledger.Reserve(ctx, line.ProductID, line.Quantity); errReserve != nil {
			e.compensate(ctx, stack)
			return nil, mapLedgerError(line.ProductID, errReserve)
		}
		stack = append(stack, compensation{productID: line.ProductID, quantity: line.Quantity})
	}

	return &Ticket{
		ID:        uuid.New(),
		Lines:     lines,
		CreatedAt: time.Now(),
	}, nil
}

// compensate releases in reverse order. It runs on a context detached from
// cancellation so a caller timeout cannot strand reserved stock.
func (e *Engine) compensate(ctx context.Context, stack []compensation) {
	ctx = context.WithoutCancel(ctx)
	for i := len(stack) - 1; i >= 0; i-- {
		c := stack[i]
		if err := e.ledger.Release(ctx, c.productID, c.quantity); err != nil {
			observability.WithTrace(ctx, e.logger).Error("compensating release failed",
				zap.Int64("product_id", c.productID),
				zap.Int("quantity", c.quantity),
				zap.Error(err))
		}
	}
}

// ReleaseTicket gives back a reservation that never became an order.
func (e *Engine) ReleaseTicket(ctx context.Context, ticket *Ticket) {
	if ticket == nil {
		return
	}
	e.releaseLines(ctx, ticket.Lines, zap.String("ticket_id", ticket.ID.String()))
}

// ReleaseForOrder returns every order line to the ledger. A line that cannot
// be released is logged and skipped; the remaining lines are still released.
func (e *Engine) ReleaseForOrder(ctx context.Context, order *domain.Order) error {
	ctx, span := e.tracer.Start(ctx, "reservation.ReleaseForOrder",
		trace.WithAttributes(attribute.String("order.id", order.ID.String())))
	defer span.End()

	e.releaseLines(ctx, order.ReservedLines(), zap.String("order_id", order.ID.String()))
	return nil
}

func (e *Engine) releaseLines(ctx context.Context, lines []domain.ReservedLine, owner zap.Field) {
	ctx = context.WithoutCancel(ctx)
	logger := observability.WithTrace(ctx, e.logger)
	for _, line := range lines {
		if err := e.ledger.Release(ctx, line.ProductID, line.Quantity); err != nil {
			logger.Warn("stock release failed, inventory drift",
				owner,
				zap.Int64("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
		}
	}
}

func mapLedgerError(productID int64, err error) error {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return insufficient
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrProductUnavailable):
		return &domain.ProductUnavailableError{ProductID: productID, Cause: err}
	default:
		return fmt.Errorf("reserve product %d: %w", productID, err)
	}
}
