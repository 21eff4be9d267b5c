package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/observability"
	"go.uber.org/zap"
)

type ProductHandler struct {
	products catalog.Store
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProductHandler(products catalog.Store, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
		logger:   observability.OrNop(logger),
	}
}

type ProductsResponse struct {
	Products []*catalog.Product `json:"products"`
}

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.ListProducts(ctx)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if products == nil {
		products = []*catalog.Product{}
	}
	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(ctx, productID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}
