package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/ledger"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/reservation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyboard int64 = 1
	mouse    int64 = 2
	webcam   int64 = 5
)

type testServer struct {
	handler http.Handler
	ledger  *ledger.MemoryLedger
}

func newTestServer(t *testing.T, outcome payment.FixedOutcome) *testServer {
	t.Helper()
	ctx := context.Background()

	products, err := catalog.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { products.Close() })
	require.NoError(t, products.RunMigrations("../catalog/migrations"))

	l := ledger.NewMemoryLedger()
	require.NoError(t, l.SetStock(ctx, keyboard, 10, true))
	require.NoError(t, l.SetStock(ctx, mouse, 2, true))
	require.NoError(t, l.SetStock(ctx, webcam, 10, false))

	carts := cart.NewService(cart.NewMemoryRepository(), nil, products, l, nil)
	engine := reservation.NewEngine(l, nil)
	orders := order.NewService(order.NewMemoryRepository(), engine, nil, nil)
	policy := payment.RetryPolicy{MaxAttempts: 1, AttemptTimeout: 50 * time.Millisecond}
	payments := payment.NewService(payment.NewMemoryRepository(), payment.NewSimulatedGateway(outcome, 0), policy, nil, nil)
	orchestrator := checkout.NewOrchestrator(carts, engine, orders, payments, "", nil)

	timeout := 5 * time.Second
	h := Handlers{
		Products: NewProductHandler(products, timeout, nil),
		Cart:     NewCartHandler(carts, timeout, nil),
		Checkout: NewCheckoutHandler(orchestrator, timeout, nil),
		Orders:   NewOrdersHandler(orders, payments, timeout, nil),
	}
	return &testServer{
		handler: NewRouter(h, RouterConfig{RequestTimeout: 10 * time.Second, MaxRequestBodySize: 1 << 20}, nil),
		ledger:  l,
	}
}

func approving() payment.FixedOutcome {
	return payment.FixedOutcome{Result: payment.OutcomeApproved}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func (s *testServer) checkout(t *testing.T, userID string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/v1/checkout", userID, CheckoutRequestDTO{
		PaymentMethod:  "card",
		IdempotencyKey: uuid.NewString(),
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, approving())

	rec := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestRequestID_Echoed(t *testing.T) {
	s := newTestServer(t, approving())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get(HeaderRequestID))
}

func TestProducts(t *testing.T) {
	s := newTestServer(t, approving())

	rec := s.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ProductsResponse](t, rec)
	assert.Len(t, list.Products, 5)

	rec = s.do(t, http.MethodGet, "/api/v1/products/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Wireless Mouse", decode[catalog.Product](t, rec).Name)

	rec = s.do(t, http.MethodGet, "/api/v1/products/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCart_RequiresOwner(t *testing.T) {
	s := newTestServer(t, approving())

	rec := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[ErrorResponse](t, rec).Code)
}

func TestCart_Lifecycle(t *testing.T) {
	s := newTestServer(t, approving())

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "alice", AddItemRequestDTO{ProductID: keyboard, Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[CartResponseDTO](t, rec)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, int64(2*12999), c.Total)

	rec = s.do(t, http.MethodPut, "/api/v1/cart/items/1", "alice", UpdateQuantityRequestDTO{Quantity: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[CartResponseDTO](t, rec).Lines[0].Quantity)

	rec = s.do(t, http.MethodGet, "/api/v1/cart/availability", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[AvailabilityResponseDTO](t, rec).Available)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart/items/1", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[CartResponseDTO](t, rec).Lines)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart", "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCart_AddItemErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "invalid product id", body: AddItemRequestDTO{ProductID: 0, Quantity: 1}, wantStatus: http.StatusBadRequest, wantCode: "invalid_product_id"},
		{name: "zero quantity", body: AddItemRequestDTO{ProductID: keyboard, Quantity: 0}, wantStatus: http.StatusBadRequest, wantCode: "invalid_argument"},
		{name: "unknown product", body: AddItemRequestDTO{ProductID: 999, Quantity: 1}, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "inactive product", body: AddItemRequestDTO{ProductID: webcam, Quantity: 1}, wantStatus: http.StatusConflict, wantCode: "product_unavailable"},
		{name: "more than in stock", body: AddItemRequestDTO{ProductID: mouse, Quantity: 3}, wantStatus: http.StatusConflict, wantCode: "insufficient_stock"},
		{name: "malformed body", body: "not an object", wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, approving())

			rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "alice", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCheckout_Success(t *testing.T) {
	s := newTestServer(t, approving())
	s.do(t, http.MethodPost, "/api/v1/cart/items", "alice", AddItemRequestDTO{ProductID: mouse, Quantity: 2})

	rec := s.checkout(t, "alice")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[CheckoutResponseDTO](t, rec)
	require.NotNil(t, res.Order)
	require.NotNil(t, res.Payment)
	assert.Equal(t, "CONFIRMED", res.Order.Status)
	assert.Equal(t, "SUCCESS", res.Payment.Status)
	assert.Equal(t, int64(2*4999), res.Order.TotalAmount)
	assert.Nil(t, res.Error)

	entry, err := s.ledger.Stock(context.Background(), mouse)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Available)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", "alice", nil)
	assert.Empty(t, decode[CartResponseDTO](t, rec).Lines)
}

func TestCheckout_IdempotencyKeyHeader(t *testing.T) {
	s := newTestServer(t, approving())
	s.do(t, http.MethodPost, "/api/v1/cart/items", "alice", AddItemRequestDTO{ProductID: keyboard, Quantity: 1})

	send := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(CheckoutRequestDTO{PaymentMethod: "card"}))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", &buf)
		req.Header.Set(HeaderUserID, "alice")
		req.Header.Set(HeaderIdempotencyKey, "key-1")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	a := decode[CheckoutResponseDTO](t, first)
	b := decode[CheckoutResponseDTO](t, second)
	assert.Equal(t, a.Order.ID, b.Order.ID)
	assert.True(t, b.Duplicate)
}

func TestCheckout_Declined(t *testing.T) {
	s := newTestServer(t, payment.FixedOutcome{Result: payment.OutcomeDeclined, Reason: payment.ReasonInsufficientFunds})
	s.do(t, http.MethodPost, "/api/v1/cart/items", "alice", AddItemRequestDTO{ProductID: keyboard, Quantity: 4})

	rec := s.checkout(t, "alice")

	require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
	res := decode[CheckoutResponseDTO](t, rec)
	require.NotNil(t, res.Order)
	require.NotNil(t, res.Payment)
	require.NotNil(t, res.Error)
	assert.Equal(t, "CANCELLED", res.Order.Status)
	assert.Equal(t, "FAILED", res.Payment.Status)
	assert.Equal(t, payment.ReasonInsufficientFunds, res.Payment.FailureReason)
	assert.Equal(t, "payment_declined", res.Error.Code)

	entry, err := s.ledger.Stock(context.Background(), keyboard)
	require.NoError(t, err)
	assert.Equal(t, 10, entry.Available)
}

func TestCheckout_EmptyCart(t *testing.T) {
	s := newTestServer(t, approving())

	rec := s.checkout(t, "alice")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_FullLifecycle(t *testing.T) {
	s := newTestServer(t, approving())
	s.do(t, http.MethodPost, "/api/v1/cart/items", "alice", AddItemRequestDTO{ProductID: keyboard, Quantity: 1})
	placed := decode[CheckoutResponseDTO](t, s.checkout(t, "alice"))
	orderPath := "/api/v1/orders/" + placed.Order.ID

	rec := s.do(t, http.MethodGet, "/api/v1/orders", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]OrderResponseDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, orderPath, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, orderPath, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, orderPath+"/refund", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "refund before delivery")

	rec = s.do(t, http.MethodPost, orderPath+"/ship", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SHIPPED", decode[OrderResponseDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, orderPath+"/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "cannot cancel a shipped order")

	rec = s.do(t, http.MethodPost, orderPath+"/deliver", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[OrderResponseDTO](t, rec).DeliveredAt)

	rec = s.do(t, http.MethodPost, "/api/v1/payments/"+placed.Payment.ID+"/refund", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refunded := decode[CheckoutResponseDTO](t, rec)
	assert.Equal(t, "REFUNDED", refunded.Order.Status)
	assert.Equal(t, "REFUNDED", refunded.Payment.Status)

	rec = s.do(t, http.MethodGet, "/api/v1/payments/"+placed.Payment.ID+"/verify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[VerifyPaymentResponseDTO](t, rec).Verified)

	rec = s.do(t, http.MethodGet, orderPath+"/payments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PaymentResponseDTO](t, rec), 1)
}

func TestOrders_CancelConfirmedRefunds(t *testing.T) {
	s := newTestServer(t, approving())
	s.do(t, http.MethodPost, "/api/v1/cart/items", "alice", AddItemRequestDTO{ProductID: mouse, Quantity: 1})
	placed := decode[CheckoutResponseDTO](t, s.checkout(t, "alice"))

	rec := s.do(t, http.MethodPost, "/api/v1/orders/"+placed.Order.ID+"/cancel", "alice", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[CheckoutResponseDTO](t, rec)
	assert.Equal(t, "CANCELLED", res.Order.Status)
	assert.Equal(t, "REFUNDED", res.Payment.Status)

	entry, err := s.ledger.Stock(context.Background(), mouse)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Available)
}

func TestOrders_BadIdentifiers(t *testing.T) {
	s := newTestServer(t, approving())

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "order id not a uuid", method: http.MethodGet, path: "/api/v1/orders/42", wantStatus: http.StatusBadRequest},
		{name: "unknown order", method: http.MethodGet, path: "/api/v1/orders/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "ship unknown order", method: http.MethodPost, path: "/api/v1/orders/" + uuid.NewString() + "/ship", wantStatus: http.StatusNotFound},
		{name: "unknown payment", method: http.MethodGet, path: "/api/v1/payments/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "payment id not a uuid", method: http.MethodPost, path: "/api/v1/payments/xyz/refund", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, "alice", nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestOrders_ListRequiresUser(t *testing.T) {
	s := newTestServer(t, approving())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set(HeaderSessionID, "guest-1")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
